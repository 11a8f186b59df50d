package patient

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinicflow/internal/platform/apperror"
	"github.com/clinicflow/clinicflow/internal/platform/notify"
	"github.com/clinicflow/clinicflow/pkg/datewindow"
)

type mockRepo struct {
	byPhone map[string]*Patient
	// conflictsLeft makes the next N Update calls fail with Conflict to
	// exercise the retry path.
	conflictsLeft int
}

func newMockRepo() *mockRepo {
	return &mockRepo{byPhone: make(map[string]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	if _, ok := m.byPhone[p.PatientID]; ok {
		return apperror.New(apperror.Conflict, "patient %s already registered", p.PatientID)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.VersionID = 1
	p.CreatedAt = time.Now()
	cp := *p
	m.byPhone[p.PatientID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	for _, p := range m.byPhone {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperror.New(apperror.NotFound, "patient not found")
}

func (m *mockRepo) GetByPatientID(_ context.Context, patientID string) (*Patient, error) {
	p, ok := m.byPhone[patientID]
	if !ok {
		return nil, apperror.New(apperror.NotFound, "patient not found")
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	if m.conflictsLeft > 0 {
		m.conflictsLeft--
		return apperror.New(apperror.Conflict, "patient %s was modified concurrently", p.PatientID)
	}
	cur, ok := m.byPhone[p.PatientID]
	if !ok {
		return apperror.New(apperror.NotFound, "patient not found")
	}
	if cur.VersionID != p.VersionID {
		return apperror.New(apperror.Conflict, "patient %s was modified concurrently", p.PatientID)
	}
	p.VersionID++
	p.UpdatedAt = time.Now()
	cp := *p
	m.byPhone[p.PatientID] = &cp
	return nil
}

func (m *mockRepo) List(_ context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	var items []*Patient
	for _, p := range m.byPhone {
		if st, ok := params["status"]; ok && string(p.WorkflowStatus) != st {
			continue
		}
		cp := *p
		items = append(items, &cp)
	}
	return items, len(items), nil
}

func (m *mockRepo) StatusCounts(_ context.Context, _ *time.Time) (map[WorkflowStatus]int, error) {
	counts := make(map[WorkflowStatus]int)
	for _, p := range m.byPhone {
		counts[p.WorkflowStatus]++
	}
	return counts, nil
}

func newTestService(repo *mockRepo) *Service {
	return NewService(repo, datewindow.New(330), notify.Nop{}, zerolog.Nop())
}

func TestRegister_CreatesNewPatient(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	p, created, err := svc.Register(context.Background(), RegisterInput{
		Phone: "+91 98765-43210",
		Name:  "Asha Verma",
	}, "clinic-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected created=true")
	}
	if p.PatientID != "9876543210" {
		t.Errorf("expected normalized phone key, got %q", p.PatientID)
	}
	if p.WorkflowStatus != StatusNew {
		t.Errorf("expected New, got %q", p.WorkflowStatus)
	}
	if p.CurrentVisitID == nil {
		t.Error("expected a visit id")
	}
}

func TestRegister_InvalidPhone(t *testing.T) {
	svc := newTestService(newMockRepo())
	if _, _, err := svc.Register(context.Background(), RegisterInput{Phone: "12345", Name: "X"}, "clinic-1"); !apperror.Is(err, apperror.InvalidInput) {
		t.Errorf("expected InvalidInput, got %v", err)
	}
}

func TestRegister_MergesExistingPatient(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	first, _, err := svc.Register(ctx, RegisterInput{
		Phone:        "9876543210",
		Name:         "Asha Verma",
		PersonalInfo: map[string]interface{}{"age": 34, "gender": "F"},
	}, "clinic-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, created, err := svc.Register(ctx, RegisterInput{
		Phone:        "98765 43210",
		PersonalInfo: map[string]interface{}{"age": 35},
		ContactInfo:  map[string]interface{}{"city": "Pune"},
	}, "clinic-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("expected merge, not create")
	}
	if second.ID != first.ID {
		t.Error("expected the same patient row")
	}
	if second.Name != "Asha Verma" {
		t.Error("blank name must not erase the existing one")
	}
	if second.PersonalInfo["age"] != 35 {
		t.Error("expected incoming leaf to win")
	}
	if second.PersonalInfo["gender"] != "F" {
		t.Error("expected untouched leaf to survive")
	}
	if second.ContactInfo["city"] != "Pune" {
		t.Error("expected new section to be added")
	}
}

func TestRegister_RevisitAfterReported(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	p, _, _ := svc.Register(ctx, RegisterInput{Phone: "9876543210", Name: "Asha Verma"}, "clinic-1")
	p.WorkflowStatus = StatusReported
	p.Assignment = &Assignment{DoctorID: uuid.New(), DoctorName: "Dr. Rao"}
	repo.byPhone[p.PatientID] = p

	got, _, err := svc.Register(ctx, RegisterInput{Phone: "9876543210"}, "clinic-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.WorkflowStatus != StatusRevisited {
		t.Errorf("expected Revisited, got %q", got.WorkflowStatus)
	}
	if got.Assignment != nil {
		t.Error("expected assignment cleared for the new episode")
	}
}

func TestRegister_MidEpisodeKeepsStatus(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	p, _, _ := svc.Register(ctx, RegisterInput{Phone: "9876543210", Name: "Asha Verma"}, "clinic-1")
	p.WorkflowStatus = StatusDoctorOpened
	repo.byPhone[p.PatientID] = p

	got, _, err := svc.Register(ctx, RegisterInput{Phone: "9876543210"}, "clinic-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.WorkflowStatus != StatusDoctorOpened {
		t.Errorf("expected status to survive mid-episode re-registration, got %q", got.WorkflowStatus)
	}
}

func TestApply_RetriesOnConflict(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	svc.Register(ctx, RegisterInput{Phone: "9876543210", Name: "Asha Verma"}, "clinic-1")
	repo.conflictsLeft = 2

	if err := svc.Apply(ctx, "9876543210", EventDoctorAssigned); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	p, _ := svc.Get(ctx, "9876543210")
	if p.WorkflowStatus != StatusAssigned {
		t.Errorf("expected Assigned, got %q", p.WorkflowStatus)
	}
}

func TestApply_GivesUpAfterRepeatedConflicts(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	svc.Register(ctx, RegisterInput{Phone: "9876543210", Name: "Asha Verma"}, "clinic-1")
	repo.conflictsLeft = 10

	if err := svc.Apply(ctx, "9876543210", EventDoctorAssigned); !apperror.Is(err, apperror.Conflict) {
		t.Errorf("expected Conflict after exhausted retries, got %v", err)
	}
}

func TestUpdateAppointmentRef_SelfHealsMissingRef(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	svc.Register(ctx, RegisterInput{Phone: "9876543210", Name: "Asha Verma"}, "clinic-1")

	if err := svc.UpdateAppointmentRef(ctx, "9876543210", "CLI-20260831-0001", "Completed", nil, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ := svc.Get(ctx, "9876543210")
	if len(p.AppointmentRefs) != 1 || p.AppointmentRefs[0].Status != "Completed" {
		t.Errorf("expected self-healed ref, got %+v", p.AppointmentRefs)
	}
}

func TestAppendPrescriptionRef_Dedupes(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	svc.Register(ctx, RegisterInput{Phone: "9876543210", Name: "Asha Verma"}, "clinic-1")
	ref := PrescriptionRef{PrescriptionID: "RX-20260831-0001", DoctorID: uuid.New()}

	svc.AppendPrescriptionRef(ctx, "9876543210", ref)
	svc.AppendPrescriptionRef(ctx, "9876543210", ref)

	p, _ := svc.Get(ctx, "9876543210")
	if len(p.PrescriptionRefs) != 1 {
		t.Errorf("expected one ref, got %d", len(p.PrescriptionRefs))
	}
}

func TestMarkCompleted(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	svc.Register(ctx, RegisterInput{Phone: "9876543210", Name: "Asha Verma"}, "clinic-1")
	p, err := svc.MarkCompleted(ctx, "9876543210", "dr-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.WorkflowStatus != StatusCompleted {
		t.Errorf("expected Completed, got %q", p.WorkflowStatus)
	}
}

func TestStatusBuckets(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	for i, st := range []WorkflowStatus{StatusNew, StatusAssigned, StatusDoctorOpened, StatusReported, StatusCompleted} {
		phone := "987654321" + string(rune('0'+i))
		p, _, _ := svc.Register(ctx, RegisterInput{Phone: phone, Name: "P"}, "clinic-1")
		p.WorkflowStatus = st
		repo.byPhone[p.PatientID] = p
	}

	b, err := svc.StatusBuckets(ctx, "all")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Pending != 2 || b.InProgress != 1 || b.Completed != 2 {
		t.Errorf("unexpected buckets: %+v", b)
	}

	if _, err := svc.StatusBuckets(ctx, "fortnight"); !apperror.Is(err, apperror.InvalidInput) {
		t.Errorf("expected InvalidInput for unknown window, got %v", err)
	}
}

func TestRemoveDocument_NotFound(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	svc.Register(ctx, RegisterInput{Phone: "9876543210", Name: "Asha Verma"}, "clinic-1")
	if _, err := svc.RemoveDocument(ctx, "9876543210", "nope"); !apperror.Is(err, apperror.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

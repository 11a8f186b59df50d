package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinicflow/internal/domain/appointment"
	"github.com/clinicflow/clinicflow/internal/domain/directory"
	"github.com/clinicflow/clinicflow/internal/domain/patient"
	"github.com/clinicflow/clinicflow/internal/platform/apperror"
	"github.com/clinicflow/clinicflow/internal/platform/auth"
	"github.com/clinicflow/clinicflow/internal/platform/notify"
	"github.com/clinicflow/clinicflow/pkg/datewindow"
)

type fakePatientRepo struct {
	byPhone map[string]*patient.Patient
}

func newFakePatientRepo() *fakePatientRepo {
	return &fakePatientRepo{byPhone: make(map[string]*patient.Patient)}
}

func (m *fakePatientRepo) Create(_ context.Context, p *patient.Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.VersionID = 1
	cp := *p
	m.byPhone[p.PatientID] = &cp
	return nil
}

func (m *fakePatientRepo) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	for _, p := range m.byPhone {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperror.New(apperror.NotFound, "patient not found")
}

func (m *fakePatientRepo) GetByPatientID(_ context.Context, patientID string) (*patient.Patient, error) {
	p, ok := m.byPhone[patientID]
	if !ok {
		return nil, apperror.New(apperror.NotFound, "patient not found")
	}
	cp := *p
	return &cp, nil
}

func (m *fakePatientRepo) Update(_ context.Context, p *patient.Patient) error {
	cur, ok := m.byPhone[p.PatientID]
	if !ok {
		return apperror.New(apperror.NotFound, "patient not found")
	}
	if cur.VersionID != p.VersionID {
		return apperror.New(apperror.Conflict, "patient %s was modified concurrently", p.PatientID)
	}
	p.VersionID++
	cp := *p
	m.byPhone[p.PatientID] = &cp
	return nil
}

func (m *fakePatientRepo) List(_ context.Context, _ map[string]string, _, _ int) ([]*patient.Patient, int, error) {
	return nil, 0, nil
}

func (m *fakePatientRepo) StatusCounts(_ context.Context, _ *time.Time) (map[patient.WorkflowStatus]int, error) {
	return map[patient.WorkflowStatus]int{}, nil
}

type fakeApptRepo struct {
	// recentCount is what CountForPatientSince reports, standing in for
	// appointments inside the look-back window that still carry a doctor.
	recentCount int
}

func (m *fakeApptRepo) Create(_ context.Context, _ *appointment.Appointment) error { return nil }

func (m *fakeApptRepo) GetByID(_ context.Context, _ uuid.UUID) (*appointment.Appointment, error) {
	return nil, apperror.New(apperror.NotFound, "appointment not found")
}

func (m *fakeApptRepo) GetByAppointmentID(_ context.Context, _ string) (*appointment.Appointment, error) {
	return nil, apperror.New(apperror.NotFound, "appointment not found")
}

func (m *fakeApptRepo) Update(_ context.Context, _ *appointment.Appointment) error { return nil }

func (m *fakeApptRepo) List(_ context.Context, _ map[string]string, _, _ int) ([]*appointment.Appointment, int, error) {
	return nil, 0, nil
}

func (m *fakeApptRepo) ListByPatient(_ context.Context, _ string) ([]*appointment.Appointment, error) {
	return nil, nil
}

func (m *fakeApptRepo) NextSequence(_ context.Context, _ uuid.UUID, _ string) (int, error) {
	return 1, nil
}

func (m *fakeApptRepo) CountForPatientSince(_ context.Context, _ string, _ time.Time) (int, error) {
	return m.recentCount, nil
}

type fakeDirRepo struct {
	users map[uuid.UUID]*directory.User
}

func (m *fakeDirRepo) GetUser(_ context.Context, id uuid.UUID) (*directory.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.New(apperror.NotFound, "user not found")
	}
	return u, nil
}

func (m *fakeDirRepo) ListUsersByRole(_ context.Context, _ string) ([]*directory.User, error) {
	return nil, nil
}

func (m *fakeDirRepo) GetLab(_ context.Context, _ uuid.UUID) (*directory.Lab, error) {
	return nil, apperror.New(apperror.NotFound, "lab not found")
}

func (m *fakeDirRepo) GetLabByCode(_ context.Context, _ string) (*directory.Lab, error) {
	return nil, apperror.New(apperror.NotFound, "lab not found")
}

type fixture struct {
	svc      *Service
	patients *patient.Service
	pRepo    *fakePatientRepo
	apptRepo *fakeApptRepo
	dRepo    *fakeDirRepo
	doctor   *directory.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pRepo := newFakePatientRepo()
	apptRepo := &fakeApptRepo{}
	doctor := &directory.User{ID: uuid.New(), Name: "Dr. Rao", Role: auth.RoleDoctor, IsActive: true}
	dRepo := &fakeDirRepo{users: map[uuid.UUID]*directory.User{doctor.ID: doctor}}

	dir := directory.NewService(dRepo)
	patients := patient.NewService(pRepo, datewindow.New(330), notify.Nop{}, zerolog.Nop())
	appts := appointment.NewService(apptRepo, patients, dir, notify.Nop{}, zerolog.Nop())
	svc := NewService(patients, appts, dir, notify.Nop{}, 30, zerolog.Nop())

	if _, _, err := patients.Register(context.Background(), patient.RegisterInput{Phone: "9876543210", Name: "Asha Verma"}, "clinic-1"); err != nil {
		t.Fatalf("seed patient: %v", err)
	}
	return &fixture{svc: svc, patients: patients, pRepo: pRepo, apptRepo: apptRepo, dRepo: dRepo, doctor: doctor}
}

func TestAssignPatient(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.AssignPatient(context.Background(), "9876543210", &f.doctor.ID, "first visit", "assigner-1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if p.WorkflowStatus != patient.StatusAssigned {
		t.Errorf("expected Assigned, got %q", p.WorkflowStatus)
	}
	if p.Assignment == nil || p.Assignment.DoctorName != "Dr. Rao" || p.Assignment.AssignedBy != "assigner-1" {
		t.Errorf("unexpected assignment %+v", p.Assignment)
	}
}

func TestAssignPatient_InvalidDoctor(t *testing.T) {
	f := newFixture(t)
	bogus := uuid.New()
	if _, err := f.svc.AssignPatient(context.Background(), "9876543210", &bogus, "", "assigner-1"); !apperror.Is(err, apperror.InvalidInput) {
		t.Errorf("expected InvalidInput, got %v", err)
	}
	p, _ := f.patients.Get(context.Background(), "9876543210")
	if p.Assignment != nil || p.WorkflowStatus != patient.StatusNew {
		t.Error("failed assignment must leave the patient untouched")
	}
}

func TestAssignPatient_ReassignmentKeepsProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.AssignPatient(ctx, "9876543210", &f.doctor.ID, "", "assigner-1")
	f.patients.Apply(ctx, "9876543210", patient.EventAssessmentStarted)

	other := &directory.User{ID: uuid.New(), Name: "Dr. Iyer", Role: auth.RoleDoctor, IsActive: true}
	f.dRepo.users[other.ID] = other

	p, err := f.svc.AssignPatient(ctx, "9876543210", &other.ID, "", "assigner-1")
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if p.Assignment.DoctorName != "Dr. Iyer" {
		t.Errorf("expected new doctor, got %q", p.Assignment.DoctorName)
	}
	if p.WorkflowStatus != patient.StatusDoctorOpened {
		t.Errorf("reassignment must not regress status, got %q", p.WorkflowStatus)
	}
}

func TestUnassign_NoRecentActivityDemotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.AssignPatient(ctx, "9876543210", &f.doctor.ID, "", "assigner-1")
	f.apptRepo.recentCount = 0

	p, err := f.svc.AssignPatient(ctx, "9876543210", nil, "", "assigner-1")
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if p.Assignment != nil {
		t.Error("expected assignment cleared")
	}
	if p.WorkflowStatus != patient.StatusNew {
		t.Errorf("expected demotion to New, got %q", p.WorkflowStatus)
	}
}

func TestUnassign_RecentActivityKeepsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.AssignPatient(ctx, "9876543210", &f.doctor.ID, "", "assigner-1")
	f.apptRepo.recentCount = 1

	p, err := f.svc.AssignPatient(ctx, "9876543210", nil, "", "assigner-1")
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if p.Assignment != nil {
		t.Error("expected assignment cleared")
	}
	if p.WorkflowStatus != patient.StatusAssigned {
		t.Errorf("look-back guard must keep status, got %q", p.WorkflowStatus)
	}
}

func TestUnassign_ReportedPatientKeepsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.AssignPatient(ctx, "9876543210", &f.doctor.ID, "", "assigner-1")
	f.patients.Apply(ctx, "9876543210", patient.EventPrescriptionIssued)
	f.apptRepo.recentCount = 0

	p, err := f.svc.AssignPatient(ctx, "9876543210", nil, "", "assigner-1")
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if p.WorkflowStatus != patient.StatusReported {
		t.Errorf("Reported must survive unassignment, got %q", p.WorkflowStatus)
	}
}

package patient

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinicflow/internal/platform/apperror"
	"github.com/clinicflow/clinicflow/internal/platform/notify"
	"github.com/clinicflow/clinicflow/pkg/datewindow"
)

type Service struct {
	repo     Repository
	windows  datewindow.Calculator
	notifier notify.Notifier
	logger   zerolog.Logger
}

func NewService(repo Repository, windows datewindow.Calculator, notifier notify.Notifier, logger zerolog.Logger) *Service {
	return &Service{repo: repo, windows: windows, notifier: notifier, logger: logger}
}

// mutate runs a read-modify-write cycle against the patient row, retrying
// a few times when the conditional update loses a version race.
func (s *Service) mutate(ctx context.Context, patientID string, fn func(p *Patient) error) (*Patient, error) {
	var out *Patient
	err := retry.Do(
		func() error {
			p, err := s.repo.GetByPatientID(ctx, patientID)
			if err != nil {
				return err
			}
			if err := fn(p); err != nil {
				return err
			}
			if err := s.repo.Update(ctx, p); err != nil {
				return err
			}
			out = p
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(20*time.Millisecond),
		retry.RetryIf(func(err error) bool { return apperror.Is(err, apperror.Conflict) }),
		retry.LastErrorOnly(true),
	)
	return out, err
}

type RegisterInput struct {
	Phone            string                 `json:"phone"`
	Name             string                 `json:"name"`
	PersonalInfo     map[string]interface{} `json:"personal_info"`
	ContactInfo      map[string]interface{} `json:"contact_info"`
	EmergencyContact map[string]interface{} `json:"emergency_contact"`
	MedicalHistory   map[string]interface{} `json:"medical_history"`
	PhotoURL         *string                `json:"photo_url"`
}

// Register creates a patient keyed by phone, or merges into the existing
// row and opens a new episode when the phone is already known. The second
// return value reports whether a new row was created.
func (s *Service) Register(ctx context.Context, in RegisterInput, actor string) (*Patient, bool, error) {
	phone, err := NormalizePhone(in.Phone)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.repo.GetByPatientID(ctx, phone)
	if err != nil && !apperror.Is(err, apperror.NotFound) {
		return nil, false, err
	}
	if existing != nil {
		p, err := s.mutate(ctx, phone, func(p *Patient) error {
			mergeProfile(p, in)
			openEpisode(p)
			return nil
		})
		if err == nil {
			s.logger.Info().Str("patient_id", phone).Msg("registration merged into existing patient")
		}
		return p, false, err
	}

	if in.Name == "" {
		return nil, false, apperror.New(apperror.InvalidInput, "name is required")
	}
	visit := newVisitID()
	p := &Patient{
		PatientID:        phone,
		Name:             in.Name,
		PersonalInfo:     in.PersonalInfo,
		ContactInfo:      in.ContactInfo,
		EmergencyContact: in.EmergencyContact,
		MedicalHistory:   in.MedicalHistory,
		PhotoURL:         in.PhotoURL,
		WorkflowStatus:   StatusNew,
		CurrentVisitID:   &visit,
		RegisteredBy:     actor,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		// Lost a registration race: fall back to the merge path.
		if apperror.Is(err, apperror.Conflict) {
			merged, mErr := s.mutate(ctx, phone, func(p *Patient) error {
				mergeProfile(p, in)
				openEpisode(p)
				return nil
			})
			return merged, false, mErr
		}
		return nil, false, err
	}
	return p, true, nil
}

// UpdateProfile merges demographic fields without touching the episode.
func (s *Service) UpdateProfile(ctx context.Context, patientID string, in RegisterInput) (*Patient, error) {
	return s.mutate(ctx, patientID, func(p *Patient) error {
		mergeProfile(p, in)
		return nil
	})
}

// StartNewEpisode resets the workflow for a returning patient. Patients
// whose previous episode reached Reported or Completed come back as
// Revisited; an episode still in flight keeps its status.
func (s *Service) StartNewEpisode(ctx context.Context, patientID string) (*Patient, error) {
	return s.mutate(ctx, patientID, func(p *Patient) error {
		openEpisode(p)
		return nil
	})
}

// MarkCompleted closes the current episode. Completion is always an
// explicit action; issuing a prescription only moves the patient to
// Reported.
func (s *Service) MarkCompleted(ctx context.Context, patientID, actor string) (*Patient, error) {
	p, err := s.mutate(ctx, patientID, func(p *Patient) error {
		p.WorkflowStatus = Project(p.WorkflowStatus, EventEpisodeClosed)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(ctx, notify.Event{
		Type:      notify.EventEpisodeCompleted,
		PatientID: patientID,
		Actor:     actor,
	})
	return p, nil
}

// Apply routes a workflow event through the projector and persists the
// resulting status. This is the only writer of workflow_status.
func (s *Service) Apply(ctx context.Context, patientID string, ev Event) error {
	_, err := s.mutate(ctx, patientID, func(p *Patient) error {
		p.WorkflowStatus = Project(p.WorkflowStatus, ev)
		return nil
	})
	return err
}

// SetAssignment installs or clears the patient's owning doctor. Status is
// not touched here; callers apply the matching workflow event separately.
func (s *Service) SetAssignment(ctx context.Context, patientID string, a *Assignment) (*Patient, error) {
	return s.mutate(ctx, patientID, func(p *Patient) error {
		p.Assignment = a
		return nil
	})
}

func (s *Service) AppendAppointmentRef(ctx context.Context, patientID string, ref AppointmentRef) error {
	_, err := s.mutate(ctx, patientID, func(p *Patient) error {
		for i := range p.AppointmentRefs {
			if p.AppointmentRefs[i].AppointmentID == ref.AppointmentID {
				p.AppointmentRefs[i] = ref
				return nil
			}
		}
		p.AppointmentRefs = append(p.AppointmentRefs, ref)
		return nil
	})
	return err
}

// UpdateAppointmentRef syncs the cached status and doctor for one
// appointment. A missing ref is self-healed by appending it.
func (s *Service) UpdateAppointmentRef(ctx context.Context, patientID, appointmentID, status string, doctorID *uuid.UUID, doctorName string) error {
	_, err := s.mutate(ctx, patientID, func(p *Patient) error {
		for i := range p.AppointmentRefs {
			if p.AppointmentRefs[i].AppointmentID == appointmentID {
				p.AppointmentRefs[i].Status = status
				if doctorID != nil {
					p.AppointmentRefs[i].DoctorID = doctorID
					p.AppointmentRefs[i].DoctorName = doctorName
				}
				return nil
			}
		}
		p.AppointmentRefs = append(p.AppointmentRefs, AppointmentRef{
			AppointmentID: appointmentID,
			Status:        status,
			DoctorID:      doctorID,
			DoctorName:    doctorName,
		})
		return nil
	})
	return err
}

func (s *Service) AppendPrescriptionRef(ctx context.Context, patientID string, ref PrescriptionRef) error {
	_, err := s.mutate(ctx, patientID, func(p *Patient) error {
		for _, existing := range p.PrescriptionRefs {
			if existing.PrescriptionID == ref.PrescriptionID {
				return nil
			}
		}
		p.PrescriptionRefs = append(p.PrescriptionRefs, ref)
		return nil
	})
	return err
}

// ReplaceRefs overwrites both denormalized lists from authoritative data.
// Used by reconciliation.
func (s *Service) ReplaceRefs(ctx context.Context, patientID string, appts []AppointmentRef, rxs []PrescriptionRef) error {
	_, err := s.mutate(ctx, patientID, func(p *Patient) error {
		p.AppointmentRefs = appts
		p.PrescriptionRefs = rxs
		return nil
	})
	return err
}

func (s *Service) AddDocument(ctx context.Context, patientID string, doc Document, actor string) (*Patient, error) {
	if doc.Name == "" || doc.URL == "" {
		return nil, apperror.New(apperror.InvalidInput, "document name and url are required")
	}
	doc.ID = uuid.NewString()
	doc.UploadedBy = actor
	doc.UploadedAt = time.Now().UTC()
	return s.mutate(ctx, patientID, func(p *Patient) error {
		p.Documents = append(p.Documents, doc)
		return nil
	})
}

func (s *Service) RemoveDocument(ctx context.Context, patientID, docID string) (*Patient, error) {
	return s.mutate(ctx, patientID, func(p *Patient) error {
		for i, d := range p.Documents {
			if d.ID == docID {
				p.Documents = append(p.Documents[:i], p.Documents[i+1:]...)
				return nil
			}
		}
		return apperror.New(apperror.NotFound, "document %s not found", docID)
	})
}

func (s *Service) Get(ctx context.Context, patientID string) (*Patient, error) {
	return s.repo.GetByPatientID(ctx, patientID)
}

func (s *Service) GetByUID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, params, limit, offset)
}

// Buckets groups patients into queue buckets for the dashboard, optionally
// restricted to rows touched within the clinic-local day, week, or month.
type Buckets struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

func (s *Service) StatusBuckets(ctx context.Context, window string) (*Buckets, error) {
	var since *time.Time
	now := time.Now()
	switch window {
	case "", "all":
	case "day":
		w := s.windows.Day(now)
		since = &w.Start
	case "week":
		w := s.windows.Week(now)
		since = &w.Start
	case "month":
		w := s.windows.Month(now)
		since = &w.Start
	default:
		return nil, apperror.New(apperror.InvalidInput, "invalid window %q", window)
	}

	counts, err := s.repo.StatusCounts(ctx, since)
	if err != nil {
		return nil, err
	}
	return &Buckets{
		Pending:    counts[StatusNew] + counts[StatusRevisited] + counts[StatusAssigned],
		InProgress: counts[StatusDoctorOpened] + counts[StatusInProgress],
		Completed:  counts[StatusReported] + counts[StatusCompleted],
	}, nil
}

func mergeProfile(p *Patient, in RegisterInput) {
	if in.Name != "" {
		p.Name = in.Name
	}
	if in.PhotoURL != nil {
		p.PhotoURL = in.PhotoURL
	}
	p.PersonalInfo = mergeFields(p.PersonalInfo, in.PersonalInfo)
	p.ContactInfo = mergeFields(p.ContactInfo, in.ContactInfo)
	p.EmergencyContact = mergeFields(p.EmergencyContact, in.EmergencyContact)
	p.MedicalHistory = mergeFields(p.MedicalHistory, in.MedicalHistory)
}

// mergeFields overlays src onto dst leaf by leaf. Nested objects merge
// recursively; scalar and array values from src win.
func mergeFields(dst, src map[string]interface{}) map[string]interface{} {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}
	for k, v := range src {
		if sub, ok := v.(map[string]interface{}); ok {
			if cur, ok := dst[k].(map[string]interface{}); ok {
				dst[k] = mergeFields(cur, sub)
				continue
			}
		}
		dst[k] = v
	}
	return dst
}

func openEpisode(p *Patient) {
	if statusRank[p.WorkflowStatus] >= statusRank[StatusReported] {
		p.WorkflowStatus = StatusRevisited
		p.Assignment = nil
	}
	visit := newVisitID()
	p.CurrentVisitID = &visit
}

func newVisitID() string {
	return "V-" + uuid.NewString()[:8]
}

package prescription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinicflow/internal/domain/appointment"
	"github.com/clinicflow/clinicflow/internal/domain/directory"
	"github.com/clinicflow/clinicflow/internal/domain/patient"
	"github.com/clinicflow/clinicflow/internal/platform/apperror"
	"github.com/clinicflow/clinicflow/internal/platform/notify"
	"github.com/clinicflow/clinicflow/pkg/datewindow"
)

type Service struct {
	repo         Repository
	patients     *patient.Service
	appointments *appointment.Service
	dir          *directory.Service
	windows      datewindow.Calculator
	notifier     notify.Notifier
	logger       zerolog.Logger
}

func NewService(repo Repository, patients *patient.Service, appointments *appointment.Service, dir *directory.Service, windows datewindow.Calculator, notifier notify.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		patients:     patients,
		appointments: appointments,
		dir:          dir,
		windows:      windows,
		notifier:     notifier,
		logger:       logger,
	}
}

type CreateInput struct {
	PatientID     string     `json:"patient_id"`
	AppointmentID string     `json:"appointment_id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	Diagnosis     string     `json:"diagnosis"`
	Medicines     []Medicine `json:"medicines"`
	Tests         []LabTest  `json:"tests"`
	Advice        string     `json:"advice"`
	FollowUpDate  *string    `json:"follow_up_date"`
}

// Create issues a prescription and runs the completion cascade. The
// prescription row is the durable anchor: once it is inserted, the call
// succeeds even if downstream steps fail. Those steps are idempotent and
// logged for the reconciler to finish later.
func (s *Service) Create(ctx context.Context, in CreateInput, actor string) (*Prescription, error) {
	if in.PatientID == "" {
		return nil, apperror.New(apperror.InvalidInput, "patient_id is required")
	}
	if len(in.Medicines) == 0 && len(in.Tests) == 0 && in.Diagnosis == "" {
		return nil, apperror.New(apperror.InvalidInput, "prescription must carry a diagnosis, medicines, or tests")
	}
	for _, med := range in.Medicines {
		if med.Name == "" {
			return nil, apperror.New(apperror.InvalidInput, "medicine name is required")
		}
	}

	doc, err := s.dir.ActivePrescriber(ctx, in.DoctorID)
	if err != nil {
		return nil, err
	}
	p, err := s.patients.Get(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	if in.AppointmentID != "" {
		a, err := s.appointments.Get(ctx, in.AppointmentID)
		if err != nil {
			return nil, err
		}
		if a.PatientID != p.PatientID {
			return nil, apperror.New(apperror.InvalidInput, "appointment %s belongs to another patient", in.AppointmentID)
		}
	}

	now := time.Now().UTC()
	issuedDate := s.windows.Day(now).Start.Format("2006-01-02")
	seq, err := s.repo.NextSequence(ctx, issuedDate)
	if err != nil {
		return nil, err
	}

	rx := &Prescription{
		PrescriptionID:   fmt.Sprintf("RX-%s-%04d", strings.ReplaceAll(issuedDate, "-", ""), seq),
		PrescriptionCode: newCode(),
		PatientID:        p.PatientID,
		PatientName:      p.Name,
		AppointmentID:    in.AppointmentID,
		DoctorID:         doc.ID,
		DoctorName:       doc.Name,
		Diagnosis:        in.Diagnosis,
		Medicines:        in.Medicines,
		Tests:            in.Tests,
		Advice:           in.Advice,
		FollowUpDate:     in.FollowUpDate,
		IssuedAt:         now,
	}
	if err := s.repo.Create(ctx, rx); err != nil {
		return nil, err
	}

	s.cascade(ctx, rx, actor)

	s.notifier.Publish(ctx, notify.Event{
		Type:          notify.EventPrescriptionIssued,
		PatientID:     rx.PatientID,
		AppointmentID: rx.AppointmentID,
		Actor:         actor,
	})
	return rx, nil
}

// cascade runs the post-insert legs of prescription issuance. Every leg is
// idempotent; a failed leg is logged as a partial cascade and left for
// reconciliation, never surfaced to the prescriber.
func (s *Service) cascade(ctx context.Context, rx *Prescription, actor string) {
	if rx.AppointmentID != "" {
		_, err := s.appointments.CompleteForPrescription(ctx, rx.AppointmentID, appointment.PrescriptionRef{
			PrescriptionID:   rx.PrescriptionID,
			PrescriptionCode: rx.PrescriptionCode,
			IssuedBy:         actor,
			IssuedAt:         rx.IssuedAt,
		}, actor)
		if err != nil {
			s.logCascade(rx, "complete appointment", err)
		} else if err := s.patients.UpdateAppointmentRef(ctx, rx.PatientID, rx.AppointmentID, string(appointment.StatusCompleted), nil, ""); err != nil {
			s.logCascade(rx, "sync appointment ref", err)
		}
	}

	if err := s.patients.AppendPrescriptionRef(ctx, rx.PatientID, patient.PrescriptionRef{
		PrescriptionID:   rx.PrescriptionID,
		PrescriptionCode: rx.PrescriptionCode,
		AppointmentID:    rx.AppointmentID,
		DoctorID:         rx.DoctorID,
		DoctorName:       rx.DoctorName,
		IssuedAt:         rx.IssuedAt,
	}); err != nil {
		s.logCascade(rx, "append prescription ref", err)
	}

	if err := s.patients.Apply(ctx, rx.PatientID, patient.EventPrescriptionIssued); err != nil {
		s.logCascade(rx, "project patient status", err)
	}
}

func (s *Service) logCascade(rx *Prescription, step string, err error) {
	wrapped := apperror.Wrap(apperror.PartialCascade, err, step)
	s.logger.Error().Err(wrapped).
		Str("prescription_id", rx.PrescriptionID).
		Str("patient_id", rx.PatientID).
		Str("appointment_id", rx.AppointmentID).
		Msg("prescription cascade leg failed")
}

func (s *Service) Get(ctx context.Context, prescriptionID string) (*Prescription, error) {
	return s.repo.GetByPrescriptionID(ctx, prescriptionID)
}

func (s *Service) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Prescription, int, error) {
	return s.repo.List(ctx, params, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID string) ([]*Prescription, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

// RecordDownload appends download metadata and returns the prescription.
func (s *Service) RecordDownload(ctx context.Context, prescriptionID, actor string) (*Prescription, error) {
	if err := s.repo.AppendDownload(ctx, prescriptionID, Download{By: actor, At: time.Now().UTC()}); err != nil {
		return nil, err
	}
	return s.repo.GetByPrescriptionID(ctx, prescriptionID)
}

func newCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
}

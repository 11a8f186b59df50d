package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinicflow/internal/domain/directory"
	"github.com/clinicflow/clinicflow/internal/domain/patient"
	"github.com/clinicflow/clinicflow/internal/platform/apperror"
	"github.com/clinicflow/clinicflow/internal/platform/notify"
)

type Service struct {
	repo     Repository
	patients *patient.Service
	dir      *directory.Service
	notifier notify.Notifier
	logger   zerolog.Logger
}

func NewService(repo Repository, patients *patient.Service, dir *directory.Service, notifier notify.Notifier, logger zerolog.Logger) *Service {
	return &Service{repo: repo, patients: patients, dir: dir, notifier: notifier, logger: logger}
}

func (s *Service) mutate(ctx context.Context, appointmentID string, fn func(a *Appointment) error) (*Appointment, error) {
	var out *Appointment
	err := retry.Do(
		func() error {
			a, err := s.repo.GetByAppointmentID(ctx, appointmentID)
			if err != nil {
				return err
			}
			if err := fn(a); err != nil {
				return err
			}
			if err := s.repo.Update(ctx, a); err != nil {
				return err
			}
			out = a
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

type ScheduleInput struct {
	PatientID     string     `json:"patient_id"`
	LabID         uuid.UUID  `json:"lab_id"`
	DoctorID      *uuid.UUID `json:"doctor_id"`
	ScheduledDate string     `json:"scheduled_date"`
	ScheduledTime string     `json:"scheduled_time"`
	Reason        string     `json:"reason"`
	Notes         string     `json:"notes"`
}

// Schedule books a new appointment for a registered patient and mirrors it
// into the patient's timeline.
func (s *Service) Schedule(ctx context.Context, in ScheduleInput, actor string) (*Appointment, error) {
	if in.PatientID == "" {
		return nil, apperror.New(apperror.InvalidInput, "patient_id is required")
	}
	if in.LabID == uuid.Nil {
		return nil, apperror.New(apperror.InvalidInput, "lab_id is required")
	}
	if _, err := time.Parse("2006-01-02", in.ScheduledDate); err != nil {
		return nil, apperror.New(apperror.InvalidInput, "scheduled_date must be YYYY-MM-DD")
	}

	p, err := s.patients.Get(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	lab, err := s.dir.GetLab(ctx, in.LabID)
	if err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:     p.PatientID,
		PatientName:   p.Name,
		LabID:         in.LabID,
		Status:        StatusScheduled,
		Phase:         PhaseRegistered,
		ScheduledDate: in.ScheduledDate,
		ScheduledTime: in.ScheduledTime,
		Reason:        in.Reason,
		Notes:         in.Notes,
		Completion:    CompletionStatus{},
		CreatedBy:     actor,
	}
	a.Completion.Mark(StepClinicRegistration, actor, time.Now().UTC())

	if in.DoctorID != nil {
		doc, err := s.dir.ActiveDoctor(ctx, *in.DoctorID)
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		a.DoctorID = in.DoctorID
		a.DoctorName = doc.Name
		a.AssignedAt = &now
		a.AssignedBy = actor
		a.Phase = PhaseAssigned
	}

	seq, err := s.repo.NextSequence(ctx, in.LabID, in.ScheduledDate)
	if err != nil {
		return nil, err
	}
	a.AppointmentID = buildAppointmentID(lab.Code, in.ScheduledDate, seq)

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	if err := s.patients.AppendAppointmentRef(ctx, p.PatientID, patientRef(a)); err != nil {
		s.logger.Warn().Err(err).
			Str("appointment_id", a.AppointmentID).
			Str("patient_id", p.PatientID).
			Msg("failed to mirror appointment onto patient timeline")
	}
	return a, nil
}

// AssignDoctor sets or clears the doctor on one appointment. Assigning the
// doctor already on the appointment is a no-op; switching doctors is plain
// reassignment, not a state change.
func (s *Service) AssignDoctor(ctx context.Context, appointmentID string, doctorID *uuid.UUID, actor string) (*Appointment, error) {
	var doctorName string
	if doctorID != nil {
		doc, err := s.dir.ActiveDoctor(ctx, *doctorID)
		if err != nil {
			return nil, err
		}
		doctorName = doc.Name
	}

	a, err := s.mutate(ctx, appointmentID, func(a *Appointment) error {
		if IsTerminal(a.Status) {
			return apperror.New(apperror.InvalidTransition, "appointment %s is %s", a.AppointmentID, a.Status)
		}
		a.DoctorID = doctorID
		a.DoctorName = doctorName
		if doctorID != nil {
			now := time.Now().UTC()
			a.AssignedAt = &now
			a.AssignedBy = actor
			a.Phase = advancePhase(a.Phase, PhaseAssigned)
		} else {
			a.AssignedAt = nil
			a.AssignedBy = ""
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.syncPatientRef(ctx, a)
	return a, nil
}

// UpdateStatus moves the appointment through its state machine.
func (s *Service) UpdateStatus(ctx context.Context, appointmentID string, newStatus Status, reason, actor string) (*Appointment, error) {
	a, err := s.mutate(ctx, appointmentID, func(a *Appointment) error {
		if err := checkTransition(a.Status, newStatus); err != nil {
			return err
		}
		a.Status = newStatus
		switch newStatus {
		case StatusCompleted:
			now := time.Now().UTC()
			a.CompletedAt = &now
			a.Phase = advancePhase(a.Phase, PhaseCompleted)
		case StatusCancelled:
			a.CancelledReason = reason
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.syncPatientRef(ctx, a)
	return a, nil
}

type AssessmentInput struct {
	Vitals         map[string]interface{} `json:"vitals,omitempty"`
	Complaints     map[string]interface{} `json:"complaints,omitempty"`
	Examination    map[string]interface{} `json:"examination,omitempty"`
	Diagnosis      map[string]interface{} `json:"diagnosis,omitempty"`
	Investigations map[string]interface{} `json:"investigations,omitempty"`
	TreatmentPlan  map[string]interface{} `json:"treatment_plan,omitempty"`
	FollowUp       map[string]interface{} `json:"follow_up,omitempty"`
}

func (in AssessmentInput) sections() map[string]map[string]interface{} {
	out := map[string]map[string]interface{}{}
	if len(in.Vitals) > 0 {
		out[SectionVitals] = in.Vitals
	}
	if len(in.Complaints) > 0 {
		out[SectionComplaints] = in.Complaints
	}
	if len(in.Examination) > 0 {
		out[SectionExamination] = in.Examination
	}
	if len(in.Diagnosis) > 0 {
		out[SectionDiagnosis] = in.Diagnosis
	}
	if len(in.Investigations) > 0 {
		out[SectionInvestigations] = in.Investigations
	}
	if len(in.TreatmentPlan) > 0 {
		out[SectionTreatmentPlan] = in.TreatmentPlan
	}
	if len(in.FollowUp) > 0 {
		out[SectionFollowUp] = in.FollowUp
	}
	return out
}

// RecordAssessment merges the submitted sections into the appointment's
// clinical record. Writes are leaf-level: sending only vitals leaves an
// earlier diagnosis untouched. Each touched section is restamped with the
// recording doctor and time, the matching workflow steps are marked, and
// the patient projection advances.
func (s *Service) RecordAssessment(ctx context.Context, appointmentID string, in AssessmentInput, actor string) (*Appointment, error) {
	sections := in.sections()
	if len(sections) == 0 {
		return nil, apperror.New(apperror.InvalidInput, "assessment is empty")
	}

	now := time.Now().UTC()
	a, err := s.mutate(ctx, appointmentID, func(a *Appointment) error {
		if IsTerminal(a.Status) && a.Status != StatusCompleted {
			return apperror.New(apperror.InvalidTransition, "appointment %s is %s", a.AppointmentID, a.Status)
		}
		if a.Assessment == nil {
			a.Assessment = map[string]interface{}{}
		}
		for name, section := range sections {
			merged := mergeSection(a.Assessment[name], section)
			merged["recorded_at"] = now.Format(time.RFC3339)
			merged["recorded_by"] = actor
			a.Assessment[name] = merged
		}
		if a.Completion == nil {
			a.Completion = CompletionStatus{}
		}
		_, hasVitals := sections[SectionVitals]
		_, hasComplaints := sections[SectionComplaints]
		if hasVitals || hasComplaints {
			a.Completion.Mark(StepVitalsRecorded, actor, now)
			a.Completion.Mark(StepDoctorAssessment, actor, now)
		}
		a.Phase = advancePhase(a.Phase, PhaseInAssessment)
		if _, ok := sections[SectionDiagnosis]; ok {
			a.Completion.Mark(StepDiagnosisCompleted, actor, now)
			a.Phase = advancePhase(a.Phase, PhaseDiagnosed)
		}
		if a.Status == StatusScheduled || a.Status == StatusConfirmed {
			a.Status = StatusInProgress
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.syncPatientRef(ctx, a)
	if err := s.patients.Apply(ctx, a.PatientID, patient.EventAssessmentStarted); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", a.PatientID).Msg("failed to project assessment start")
	}
	if _, ok := sections[SectionDiagnosis]; ok {
		if err := s.patients.Apply(ctx, a.PatientID, patient.EventDiagnosisRecorded); err != nil {
			s.logger.Warn().Err(err).Str("patient_id", a.PatientID).Msg("failed to project diagnosis")
		}
	}
	s.notifier.Publish(ctx, notify.Event{
		Type:          notify.EventAssessmentRecorded,
		PatientID:     a.PatientID,
		AppointmentID: a.AppointmentID,
		Actor:         actor,
	})
	return a, nil
}

// CompleteForPrescription is the appointment leg of the prescription
// cascade. It is idempotent: re-running it for the same prescription only
// re-asserts state that is already there. An appointment that was cancelled
// before the prescription landed is completed anyway and logged, because
// the issued prescription is the stronger fact.
func (s *Service) CompleteForPrescription(ctx context.Context, appointmentID string, ref PrescriptionRef, actor string) (*Appointment, error) {
	now := time.Now().UTC()
	return s.mutate(ctx, appointmentID, func(a *Appointment) error {
		if a.Status != StatusCompleted && IsTerminal(a.Status) {
			s.logger.Warn().
				Str("appointment_id", a.AppointmentID).
				Str("status", string(a.Status)).
				Msg("completing terminal appointment for issued prescription")
		}
		if a.Status != StatusCompleted {
			a.Status = StatusCompleted
			a.CompletedAt = &now
		}
		a.Phase = advancePhase(a.Phase, PhasePrescribed)
		if a.Completion == nil {
			a.Completion = CompletionStatus{}
		}
		a.Completion.Mark(StepPrescriptionIssued, actor, now)
		for _, existing := range a.Prescriptions {
			if existing.PrescriptionID == ref.PrescriptionID {
				return nil
			}
		}
		a.Prescriptions = append(a.Prescriptions, ref)
		return nil
	})
}

func (s *Service) AddDocument(ctx context.Context, appointmentID string, doc Document, actor string) (*Appointment, error) {
	if doc.Name == "" || doc.URL == "" {
		return nil, apperror.New(apperror.InvalidInput, "document name and url are required")
	}
	doc.ID = uuid.NewString()
	doc.UploadedBy = actor
	doc.UploadedAt = time.Now().UTC()
	return s.mutate(ctx, appointmentID, func(a *Appointment) error {
		a.Documents = append(a.Documents, doc)
		return nil
	})
}

// UpdateDocument replaces the name/url/category of an existing document
// in place. Upload metadata is preserved.
func (s *Service) UpdateDocument(ctx context.Context, appointmentID, docID string, doc Document) (*Appointment, error) {
	if doc.Name == "" || doc.URL == "" {
		return nil, apperror.New(apperror.InvalidInput, "document name and url are required")
	}
	return s.mutate(ctx, appointmentID, func(a *Appointment) error {
		for i, d := range a.Documents {
			if d.ID == docID {
				d.Name = doc.Name
				d.URL = doc.URL
				d.Category = doc.Category
				a.Documents[i] = d
				return nil
			}
		}
		return apperror.New(apperror.NotFound, "document %s not found", docID)
	})
}

func (s *Service) RemoveDocument(ctx context.Context, appointmentID, docID string) (*Appointment, error) {
	return s.mutate(ctx, appointmentID, func(a *Appointment) error {
		for i, d := range a.Documents {
			if d.ID == docID {
				a.Documents = append(a.Documents[:i], a.Documents[i+1:]...)
				return nil
			}
		}
		return apperror.New(apperror.NotFound, "document %s not found", docID)
	})
}

func (s *Service) Get(ctx context.Context, appointmentID string) (*Appointment, error) {
	return s.repo.GetByAppointmentID(ctx, appointmentID)
}

func (s *Service) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.List(ctx, params, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID string) ([]*Appointment, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

// HasActivitySince reports whether the patient has any live appointment
// with a doctor still on it created on or after the cutoff. Used as the
// look-back guard before a patient-level unassignment demotes the
// workflow status.
func (s *Service) HasActivitySince(ctx context.Context, patientID string, since time.Time) (bool, error) {
	n, err := s.repo.CountForPatientSince(ctx, patientID, since)
	return n > 0, err
}

// syncPatientRef mirrors the appointment's current status and doctor onto
// the patient's timeline. The mirror is best-effort; the reconciler mops up
// anything missed here.
func (s *Service) syncPatientRef(ctx context.Context, a *Appointment) {
	if err := s.patients.UpdateAppointmentRef(ctx, a.PatientID, a.AppointmentID, string(a.Status), a.DoctorID, a.DoctorName); err != nil {
		s.logger.Warn().Err(err).
			Str("appointment_id", a.AppointmentID).
			Str("patient_id", a.PatientID).
			Msg("failed to sync appointment ref onto patient")
	}
}

func patientRef(a *Appointment) patient.AppointmentRef {
	return patient.AppointmentRef{
		AppointmentID: a.AppointmentID,
		UID:           a.ID,
		DoctorID:      a.DoctorID,
		DoctorName:    a.DoctorName,
		Status:        string(a.Status),
		ScheduledDate: a.ScheduledDate,
		ScheduledTime: a.ScheduledTime,
	}
}

func buildAppointmentID(labCode, scheduledDate string, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", strings.ToUpper(labCode), strings.ReplaceAll(scheduledDate, "-", ""), seq)
}

// mergeSection overlays src onto the existing section value leaf by leaf.
func mergeSection(existing interface{}, src map[string]interface{}) map[string]interface{} {
	cur, _ := existing.(map[string]interface{})
	if cur == nil {
		cur = map[string]interface{}{}
	}
	for k, v := range src {
		if sub, ok := v.(map[string]interface{}); ok {
			cur[k] = mergeSection(cur[k], sub)
			continue
		}
		cur[k] = v
	}
	return cur
}

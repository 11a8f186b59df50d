package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Status is the appointment-level state machine. Valid moves live in
// statemachine.go; everything else is rejected.
type Status string

const (
	StatusScheduled   Status = "Scheduled"
	StatusConfirmed   Status = "Confirmed"
	StatusInProgress  Status = "In-Progress"
	StatusCompleted   Status = "Completed"
	StatusCancelled   Status = "Cancelled"
	StatusNoShow      Status = "No-Show"
	StatusRescheduled Status = "Rescheduled"
)

// Phase tracks how far clinical work on the appointment has progressed.
// It only ever moves forward.
type Phase string

const (
	PhaseRegistered   Phase = "registered"
	PhaseAssigned     Phase = "assigned"
	PhaseInAssessment Phase = "in-assessment"
	PhaseDiagnosed    Phase = "diagnosed"
	PhasePrescribed   Phase = "prescribed"
	PhaseCompleted    Phase = "completed"
)

var phaseRank = map[Phase]int{
	PhaseRegistered:   0,
	PhaseAssigned:     1,
	PhaseInAssessment: 2,
	PhaseDiagnosed:    3,
	PhasePrescribed:   4,
	PhaseCompleted:    5,
}

// advancePhase moves to target unless the appointment is already further.
func advancePhase(current, target Phase) Phase {
	if current == "" {
		return target
	}
	if phaseRank[target] > phaseRank[current] {
		return target
	}
	return current
}

// Workflow step keys tracked in completion_status.
const (
	StepClinicRegistration = "clinicRegistration"
	StepDoctorAssessment   = "doctorAssessment"
	StepVitalsRecorded     = "vitalsRecorded"
	StepDiagnosisCompleted = "diagnosisCompleted"
	StepPrescriptionIssued = "prescriptionIssued"
)

type CompletionMark struct {
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CompletedBy string     `json:"completed_by,omitempty"`
}

// CompletionStatus records which workflow steps have happened. Marks are
// sticky: once a step is completed it stays completed, keeping the original
// timestamp and actor.
type CompletionStatus map[string]CompletionMark

func (cs CompletionStatus) Mark(step, by string, at time.Time) {
	if m, ok := cs[step]; ok && m.Completed {
		return
	}
	cs[step] = CompletionMark{Completed: true, CompletedAt: &at, CompletedBy: by}
}

func (cs CompletionStatus) Done(step string) bool {
	return cs[step].Completed
}

// Assessment section keys. Each section is a free-form object stamped with
// recorded_at and recorded_by on every write.
const (
	SectionVitals         = "vitals"
	SectionComplaints     = "complaints"
	SectionExamination    = "examination"
	SectionDiagnosis      = "diagnosis"
	SectionInvestigations = "investigations"
	SectionTreatmentPlan  = "treatmentPlan"
	SectionFollowUp       = "followUp"
)

type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Category   string    `json:"category,omitempty"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// PrescriptionRef is the appointment-side pointer to an issued
// prescription. The prescription table is authoritative.
type PrescriptionRef struct {
	PrescriptionID   string    `json:"prescription_id"`
	PrescriptionCode string    `json:"prescription_code"`
	IssuedBy         string    `json:"issued_by,omitempty"`
	IssuedAt         time.Time `json:"issued_at"`
}

type Appointment struct {
	ID              uuid.UUID              `json:"id"`
	AppointmentID   string                 `json:"appointment_id"`
	PatientID       string                 `json:"patient_id"`
	PatientName     string                 `json:"patient_name,omitempty"`
	LabID           uuid.UUID              `json:"lab_id"`
	DoctorID        *uuid.UUID             `json:"doctor_id,omitempty"`
	DoctorName      string                 `json:"doctor_name,omitempty"`
	AssignedAt      *time.Time             `json:"assigned_at,omitempty"`
	AssignedBy      string                 `json:"assigned_by,omitempty"`
	Status          Status                 `json:"status"`
	Phase           Phase                  `json:"phase"`
	ScheduledDate   string                 `json:"scheduled_date"`
	ScheduledTime   string                 `json:"scheduled_time,omitempty"`
	Reason          string                 `json:"reason,omitempty"`
	Notes           string                 `json:"notes,omitempty"`
	Assessment      map[string]interface{} `json:"assessment,omitempty"`
	Completion      CompletionStatus       `json:"completion_status"`
	Documents       []Document             `json:"documents,omitempty"`
	Prescriptions   []PrescriptionRef      `json:"prescriptions,omitempty"`
	CancelledReason string                 `json:"cancelled_reason,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	CreatedBy       string                 `json:"created_by,omitempty"`
	VersionID       int64                  `json:"version_id"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/clinicflow/internal/platform/apperror"
)

// WorkflowStatus is the patient-level projection of where the current
// episode of care stands. It is written only through the projector.
type WorkflowStatus string

const (
	StatusNew          WorkflowStatus = "New"
	StatusAssigned     WorkflowStatus = "Assigned"
	StatusDoctorOpened WorkflowStatus = "Doctor Opened"
	StatusInProgress   WorkflowStatus = "In Progress"
	StatusReported     WorkflowStatus = "Reported"
	StatusCompleted    WorkflowStatus = "Completed"
	StatusRevisited    WorkflowStatus = "Revisited"
)

// statusRank orders statuses by episode progress. Revisited ranks with New:
// both mean a fresh episode with no doctor activity yet.
var statusRank = map[WorkflowStatus]int{
	StatusNew:          0,
	StatusRevisited:    0,
	StatusAssigned:     1,
	StatusDoctorOpened: 2,
	StatusInProgress:   3,
	StatusReported:     4,
	StatusCompleted:    5,
}

// Assignment records which doctor currently owns the patient.
type Assignment struct {
	DoctorID   uuid.UUID `json:"doctor_id"`
	DoctorName string    `json:"doctor_name"`
	AssignedBy string    `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
	Notes      string    `json:"notes,omitempty"`
}

// AppointmentRef is a denormalized pointer into the appointment table,
// kept on the patient for cheap timeline reads. The appointment row is
// authoritative; refs are repairable caches.
type AppointmentRef struct {
	AppointmentID string     `json:"appointment_id"`
	UID           uuid.UUID  `json:"uid"`
	DoctorID      *uuid.UUID `json:"doctor_id,omitempty"`
	DoctorName    string     `json:"doctor_name,omitempty"`
	Status        string     `json:"status"`
	ScheduledDate string     `json:"scheduled_date"`
	ScheduledTime string     `json:"scheduled_time,omitempty"`
}

// PrescriptionRef is the denormalized counterpart for prescriptions.
type PrescriptionRef struct {
	PrescriptionID   string    `json:"prescription_id"`
	PrescriptionCode string    `json:"prescription_code"`
	AppointmentID    string    `json:"appointment_id,omitempty"`
	DoctorID         uuid.UUID `json:"doctor_id"`
	DoctorName       string    `json:"doctor_name,omitempty"`
	IssuedAt         time.Time `json:"issued_at"`
}

type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Category   string    `json:"category,omitempty"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Patient is one person, keyed by normalized phone number. Registering the
// same phone again merges into the existing row instead of duplicating it.
type Patient struct {
	ID               uuid.UUID              `json:"id"`
	PatientID        string                 `json:"patient_id"`
	Name             string                 `json:"name"`
	PersonalInfo     map[string]interface{} `json:"personal_info,omitempty"`
	ContactInfo      map[string]interface{} `json:"contact_info,omitempty"`
	EmergencyContact map[string]interface{} `json:"emergency_contact,omitempty"`
	MedicalHistory   map[string]interface{} `json:"medical_history,omitempty"`
	PhotoURL         *string                `json:"photo_url,omitempty"`
	Documents        []Document             `json:"documents,omitempty"`
	WorkflowStatus   WorkflowStatus         `json:"workflow_status"`
	Assignment       *Assignment            `json:"assignment,omitempty"`
	AppointmentRefs  []AppointmentRef       `json:"appointment_refs,omitempty"`
	PrescriptionRefs []PrescriptionRef      `json:"prescription_refs,omitempty"`
	CurrentVisitID   *string                `json:"current_visit_id,omitempty"`
	VersionID        int64                  `json:"version_id"`
	RegisteredBy     string                 `json:"registered_by,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// NormalizePhone strips formatting and country prefixes down to the
// ten-digit subscriber number used as the patient key.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	if len(digits) != 10 {
		return "", apperror.New(apperror.InvalidInput, "phone must contain 10 digits")
	}
	return digits, nil
}

package prescription

import (
	"time"

	"github.com/google/uuid"
)

type Medicine struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage,omitempty"`
	Frequency    string `json:"frequency,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type LabTest struct {
	Name  string `json:"name"`
	Notes string `json:"notes,omitempty"`
}

// Download records that someone pulled the rendered prescription. Only
// metadata; the document itself is generated on demand.
type Download struct {
	By string    `json:"by"`
	At time.Time `json:"at"`
}

// Prescription is immutable once issued. Corrections are new
// prescriptions; only the download log grows afterwards.
type Prescription struct {
	ID               uuid.UUID  `json:"id"`
	PrescriptionID   string     `json:"prescription_id"`
	PrescriptionCode string     `json:"prescription_code"`
	PatientID        string     `json:"patient_id"`
	PatientName      string     `json:"patient_name,omitempty"`
	AppointmentID    string     `json:"appointment_id,omitempty"`
	DoctorID         uuid.UUID  `json:"doctor_id"`
	DoctorName       string     `json:"doctor_name,omitempty"`
	Diagnosis        string     `json:"diagnosis,omitempty"`
	Medicines        []Medicine `json:"medicines,omitempty"`
	Tests            []LabTest  `json:"tests,omitempty"`
	Advice           string     `json:"advice,omitempty"`
	FollowUpDate     *string    `json:"follow_up_date,omitempty"`
	Downloads        []Download `json:"downloads,omitempty"`
	IssuedAt         time.Time  `json:"issued_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

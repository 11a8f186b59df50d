package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetByAppointmentID(ctx context.Context, appointmentID string) (*Appointment, error)
	// Update is conditional on the version the caller read; a lost race
	// yields a Conflict error.
	Update(ctx context.Context, a *Appointment) error
	List(ctx context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error)
	ListByPatient(ctx context.Context, patientID string) ([]*Appointment, error)
	// NextSequence reserves the next per-lab, per-day counter used in
	// human-readable appointment ids.
	NextSequence(ctx context.Context, labID uuid.UUID, scheduledDate string) (int, error)
	CountForPatientSince(ctx context.Context, patientID string, since time.Time) (int, error)
}

package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByPatientID(ctx context.Context, patientID string) (*Patient, error)
	// Update persists all mutable fields. The write is conditional on the
	// version the caller read; a lost race yields a Conflict error.
	Update(ctx context.Context, p *Patient) error
	List(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error)
	StatusCounts(ctx context.Context, since *time.Time) (map[WorkflowStatus]int, error)
}

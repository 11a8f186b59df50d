package prescription

import "context"

type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByPrescriptionID(ctx context.Context, prescriptionID string) (*Prescription, error)
	List(ctx context.Context, params map[string]string, limit, offset int) ([]*Prescription, int, error)
	ListByPatient(ctx context.Context, patientID string) ([]*Prescription, error)
	AppendDownload(ctx context.Context, prescriptionID string, d Download) error
	// NextSequence reserves the next per-day counter used in prescription
	// ids.
	NextSequence(ctx context.Context, issuedDate string) (int, error)
}

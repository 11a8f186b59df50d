package prescription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinicflow/internal/platform/apperror"
	"github.com/clinicflow/clinicflow/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const rxCols = `id, prescription_id, prescription_code, patient_id, patient_name, appointment_id,
	doctor_id, doctor_name, diagnosis, medicines, tests, advice, follow_up_date,
	downloads, issued_at, created_at`

func scanRx(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PrescriptionID, &p.PrescriptionCode, &p.PatientID, &p.PatientName, &p.AppointmentID,
		&p.DoctorID, &p.DoctorName, &p.Diagnosis, &p.Medicines, &p.Tests, &p.Advice, &p.FollowUpDate,
		&p.Downloads, &p.IssuedAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "prescription not found")
	}
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescription (id, prescription_id, prescription_code, patient_id, patient_name,
			appointment_id, doctor_id, doctor_name, diagnosis, medicines, tests, advice,
			follow_up_date, downloads, issued_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		p.ID, p.PrescriptionID, p.PrescriptionCode, p.PatientID, p.PatientName,
		p.AppointmentID, p.DoctorID, p.DoctorName, p.Diagnosis, p.Medicines, p.Tests, p.Advice,
		p.FollowUpDate, p.Downloads, p.IssuedAt)
	return err
}

func (r *repoPG) GetByPrescriptionID(ctx context.Context, prescriptionID string) (*Prescription, error) {
	return scanRx(r.conn(ctx).QueryRow(ctx, `SELECT `+rxCols+` FROM prescription WHERE prescription_id = $1`, prescriptionID))
}

func (r *repoPG) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Prescription, int, error) {
	query := `SELECT ` + rxCols + ` FROM prescription WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM prescription WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["patient"]; ok {
		query += fmt.Sprintf(` AND patient_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["doctor"]; ok {
		query += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["appointment"]; ok {
		query += fmt.Sprintf(` AND appointment_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND appointment_id = $%d`, idx)
		args = append(args, p)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY issued_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		p, err := scanRx(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID string) ([]*Prescription, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+rxCols+` FROM prescription WHERE patient_id = $1 ORDER BY issued_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		p, err := scanRx(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *repoPG) AppendDownload(ctx context.Context, prescriptionID string, d Download) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescription
		SET downloads = COALESCE(downloads, '[]'::jsonb) || $2
		WHERE prescription_id = $1`,
		prescriptionID, []Download{d})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.New(apperror.NotFound, "prescription not found")
	}
	return nil
}

func (r *repoPG) NextSequence(ctx context.Context, issuedDate string) (int, error) {
	var seq int
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription_seq (issued_date, next_seq)
		VALUES ($1, 2)
		ON CONFLICT (issued_date)
		DO UPDATE SET next_seq = prescription_seq.next_seq + 1
		RETURNING next_seq - 1`,
		issuedDate).Scan(&seq)
	return seq, err
}

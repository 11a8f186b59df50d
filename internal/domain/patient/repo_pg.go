package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

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

const patientCols = `id, patient_id, name, personal_info, contact_info, emergency_contact,
	medical_history, photo_url, documents, workflow_status, assignment,
	appointment_refs, prescription_refs, current_visit_id, version_id,
	registered_by, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.PatientID, &p.Name, &p.PersonalInfo, &p.ContactInfo, &p.EmergencyContact,
		&p.MedicalHistory, &p.PhotoURL, &p.Documents, &p.WorkflowStatus, &p.Assignment,
		&p.AppointmentRefs, &p.PrescriptionRefs, &p.CurrentVisitID, &p.VersionID,
		&p.RegisteredBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "patient not found")
	}
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.VersionID = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (id, patient_id, name, personal_info, contact_info, emergency_contact,
			medical_history, photo_url, documents, workflow_status, assignment,
			appointment_refs, prescription_refs, current_visit_id, version_id, registered_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		p.ID, p.PatientID, p.Name, p.PersonalInfo, p.ContactInfo, p.EmergencyContact,
		p.MedicalHistory, p.PhotoURL, p.Documents, p.WorkflowStatus, p.Assignment,
		p.AppointmentRefs, p.PrescriptionRefs, p.CurrentVisitID, p.VersionID, p.RegisteredBy)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperror.New(apperror.Conflict, "patient %s already registered", p.PatientID)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) GetByPatientID(ctx context.Context, patientID string) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE patient_id = $1`, patientID))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET name=$2, personal_info=$3, contact_info=$4, emergency_contact=$5,
			medical_history=$6, photo_url=$7, documents=$8, workflow_status=$9, assignment=$10,
			appointment_refs=$11, prescription_refs=$12, current_visit_id=$13,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $14`,
		p.ID, p.Name, p.PersonalInfo, p.ContactInfo, p.EmergencyContact,
		p.MedicalHistory, p.PhotoURL, p.Documents, p.WorkflowStatus, p.Assignment,
		p.AppointmentRefs, p.PrescriptionRefs, p.CurrentVisitID, p.VersionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.New(apperror.Conflict, "patient %s was modified concurrently", p.PatientID)
	}
	p.VersionID++
	return nil
}

func (r *repoPG) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	query := `SELECT ` + patientCols + ` FROM patient WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM patient WHERE 1=1`
	var args []interface{}
	idx := 1

	if p, ok := params["status"]; ok {
		query += fmt.Sprintf(` AND workflow_status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND workflow_status = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["doctor"]; ok {
		query += fmt.Sprintf(` AND assignment->>'doctor_id' = $%d`, idx)
		countQuery += fmt.Sprintf(` AND assignment->>'doctor_id' = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["name"]; ok {
		query += fmt.Sprintf(` AND name ILIKE $%d`, idx)
		countQuery += fmt.Sprintf(` AND name ILIKE $%d`, idx)
		args = append(args, "%"+p+"%")
		idx++
	}
	if p, ok := params["phone"]; ok {
		query += fmt.Sprintf(` AND patient_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, p)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) StatusCounts(ctx context.Context, since *time.Time) (map[WorkflowStatus]int, error) {
	query := `SELECT workflow_status, COUNT(*) FROM patient`
	var args []interface{}
	if since != nil {
		query += ` WHERE updated_at >= $1`
		args = append(args, *since)
	}
	query += ` GROUP BY workflow_status`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[WorkflowStatus]int)
	for rows.Next() {
		var st WorkflowStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

package appointment

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

const apptCols = `id, appointment_id, patient_id, patient_name, lab_id, doctor_id, doctor_name,
	assigned_at, assigned_by, status, phase, scheduled_date, scheduled_time, reason, notes,
	assessment, completion_status, documents, prescriptions, cancelled_reason, completed_at,
	created_by, version_id, created_at, updated_at`

func scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.AppointmentID, &a.PatientID, &a.PatientName, &a.LabID, &a.DoctorID, &a.DoctorName,
		&a.AssignedAt, &a.AssignedBy, &a.Status, &a.Phase, &a.ScheduledDate, &a.ScheduledTime, &a.Reason, &a.Notes,
		&a.Assessment, &a.Completion, &a.Documents, &a.Prescriptions, &a.CancelledReason, &a.CompletedAt,
		&a.CreatedBy, &a.VersionID, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "appointment not found")
	}
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.VersionID = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment (id, appointment_id, patient_id, patient_name, lab_id, doctor_id, doctor_name,
			assigned_at, assigned_by, status, phase, scheduled_date, scheduled_time, reason, notes,
			assessment, completion_status, documents, prescriptions, cancelled_reason, completed_at, created_by, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		a.ID, a.AppointmentID, a.PatientID, a.PatientName, a.LabID, a.DoctorID, a.DoctorName,
		a.AssignedAt, a.AssignedBy, a.Status, a.Phase, a.ScheduledDate, a.ScheduledTime, a.Reason, a.Notes,
		a.Assessment, a.Completion, a.Documents, a.Prescriptions, a.CancelledReason, a.CompletedAt, a.CreatedBy, a.VersionID)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *repoPG) GetByAppointmentID(ctx context.Context, appointmentID string) (*Appointment, error) {
	return scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE appointment_id = $1`, appointmentID))
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET patient_name=$2, doctor_id=$3, doctor_name=$4, assigned_at=$5, assigned_by=$6,
			status=$7, phase=$8, scheduled_date=$9, scheduled_time=$10, reason=$11, notes=$12,
			assessment=$13, completion_status=$14, documents=$15, prescriptions=$16, cancelled_reason=$17,
			completed_at=$18, version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $19`,
		a.ID, a.PatientName, a.DoctorID, a.DoctorName, a.AssignedAt, a.AssignedBy,
		a.Status, a.Phase, a.ScheduledDate, a.ScheduledTime, a.Reason, a.Notes,
		a.Assessment, a.Completion, a.Documents, a.Prescriptions, a.CancelledReason,
		a.CompletedAt, a.VersionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.New(apperror.Conflict, "appointment %s was modified concurrently", a.AppointmentID)
	}
	a.VersionID++
	return nil
}

func (r *repoPG) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error) {
	query := `SELECT ` + apptCols + ` FROM appointment WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM appointment WHERE 1=1`
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
	if p, ok := params["status"]; ok {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["date"]; ok {
		query += fmt.Sprintf(` AND scheduled_date = $%d`, idx)
		countQuery += fmt.Sprintf(` AND scheduled_date = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["lab"]; ok {
		query += fmt.Sprintf(` AND lab_id = $%d`, idx)
		countQuery += fmt.Sprintf(` AND lab_id = $%d`, idx)
		args = append(args, p)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY scheduled_date DESC, created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID string) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointment WHERE patient_id = $1 ORDER BY scheduled_date DESC, created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) NextSequence(ctx context.Context, labID uuid.UUID, scheduledDate string) (int, error) {
	var seq int
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment_seq (lab_id, scheduled_date, next_seq)
		VALUES ($1, $2, 2)
		ON CONFLICT (lab_id, scheduled_date)
		DO UPDATE SET next_seq = appointment_seq.next_seq + 1
		RETURNING next_seq - 1`,
		labID, scheduledDate).Scan(&seq)
	return seq, err
}

func (r *repoPG) CountForPatientSince(ctx context.Context, patientID string, since time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM appointment
		WHERE patient_id = $1 AND created_at >= $2 AND doctor_id IS NOT NULL AND status NOT IN ($3, $4)`,
		patientID, since, StatusCancelled, StatusNoShow).Scan(&n)
	return n, err
}

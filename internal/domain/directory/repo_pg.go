package directory

import (
	"context"
	"errors"

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

const userCols = `id, name, role, lab_id, is_active, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Role, &u.LabID, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "user not found")
	}
	return &u, err
}

func (r *repoPG) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM app_user WHERE id = $1`, id))
}

func (r *repoPG) ListUsersByRole(ctx context.Context, role string) ([]*User, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+userCols+` FROM app_user WHERE role = $1 AND is_active ORDER BY name ASC`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &u.LabID, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &u)
	}
	return items, rows.Err()
}

const labCols = `id, code, name, created_at`

func scanLab(row pgx.Row) (*Lab, error) {
	var l Lab
	err := row.Scan(&l.ID, &l.Code, &l.Name, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "lab not found")
	}
	return &l, err
}

func (r *repoPG) GetLab(ctx context.Context, id uuid.UUID) (*Lab, error) {
	return scanLab(r.conn(ctx).QueryRow(ctx, `SELECT `+labCols+` FROM lab WHERE id = $1`, id))
}

func (r *repoPG) GetLabByCode(ctx context.Context, code string) (*Lab, error) {
	return scanLab(r.conn(ctx).QueryRow(ctx, `SELECT `+labCols+` FROM lab WHERE code = $1`, code))
}

package directory

import (
	"time"

	"github.com/google/uuid"
)

// User maps to the app_user table. Read-only from the workflow engine's
// point of view; accounts are provisioned out of band.
type User struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Role      string     `db:"role" json:"role"`
	LabID     *uuid.UUID `db:"lab_id" json:"lab_id,omitempty"`
	IsActive  bool       `db:"is_active" json:"is_active"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Lab maps to the lab table.
type Lab struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

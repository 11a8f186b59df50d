package directory

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	ListUsersByRole(ctx context.Context, role string) ([]*User, error)
	GetLab(ctx context.Context, id uuid.UUID) (*Lab, error)
	GetLabByCode(ctx context.Context, code string) (*Lab, error)
}

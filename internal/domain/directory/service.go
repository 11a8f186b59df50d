package directory

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicflow/clinicflow/internal/platform/apperror"
	"github.com/clinicflow/clinicflow/internal/platform/auth"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetUser(ctx, id)
}

// ActiveDoctor resolves a doctor id to an active user with the doctor role.
// Used everywhere an assignment or prescription references a doctor.
func (s *Service) ActiveDoctor(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		if apperror.Is(err, apperror.NotFound) {
			return nil, apperror.New(apperror.InvalidInput, "doctor %s does not exist", id)
		}
		return nil, err
	}
	if u.Role != auth.RoleDoctor {
		return nil, apperror.New(apperror.InvalidInput, "user %s is not a doctor", id)
	}
	if !u.IsActive {
		return nil, apperror.New(apperror.InvalidInput, "doctor %s is inactive", id)
	}
	return u, nil
}

// ActivePrescriber is like ActiveDoctor but also admits junior doctors,
// who may issue prescriptions but cannot hold patient assignments.
func (s *Service) ActivePrescriber(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		if apperror.Is(err, apperror.NotFound) {
			return nil, apperror.New(apperror.InvalidInput, "prescriber %s does not exist", id)
		}
		return nil, err
	}
	if u.Role != auth.RoleDoctor && u.Role != auth.RoleJrDoctor {
		return nil, apperror.New(apperror.InvalidInput, "user %s cannot issue prescriptions", id)
	}
	if !u.IsActive {
		return nil, apperror.New(apperror.InvalidInput, "prescriber %s is inactive", id)
	}
	return u, nil
}

func (s *Service) ListDoctors(ctx context.Context) ([]*User, error) {
	return s.repo.ListUsersByRole(ctx, auth.RoleDoctor)
}

func (s *Service) GetLab(ctx context.Context, id uuid.UUID) (*Lab, error) {
	return s.repo.GetLab(ctx, id)
}

func (s *Service) GetLabByCode(ctx context.Context, code string) (*Lab, error) {
	return s.repo.GetLabByCode(ctx, code)
}

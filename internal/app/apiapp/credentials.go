package apiapp

import (
	"context"
	"errors"

	"github.com/KishorKumarParoi/KTube-backend/internal/domain/model"
	authsvc "github.com/KishorKumarParoi/KTube-backend/internal/services/auth"
	userssvc "github.com/KishorKumarParoi/KTube-backend/internal/services/users"
)

// credentialStore adapts the users service to the auth service's credential
// interface, translating user-domain errors into auth-domain sentinels.
type credentialStore struct {
	users *userssvc.Service
}

func newCredentialStore(users *userssvc.Service) *credentialStore {
	return &credentialStore{users: users}
}

func (s *credentialStore) FindByLogin(ctx context.Context, login string) (model.User, error) {
	user, err := s.users.FindByLogin(ctx, login)
	if err != nil {
		return model.User{}, translateUserError(err)
	}
	return user, nil
}

func (s *credentialStore) FindByID(ctx context.Context, userID int64) (model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.User{}, translateUserError(err)
	}
	return user, nil
}

func (s *credentialStore) VerifyPassword(ctx context.Context, userID int64, password string) error {
	if err := s.users.VerifyPassword(ctx, userID, password); err != nil {
		return translateUserError(err)
	}
	return nil
}

func (s *credentialStore) UpdatePassword(ctx context.Context, userID int64, newPassword string) error {
	if err := s.users.UpdatePassword(ctx, userID, newPassword); err != nil {
		return translateUserError(err)
	}
	return nil
}

func translateUserError(err error) error {
	switch {
	case errors.Is(err, userssvc.ErrUserNotFound):
		return authsvc.ErrNotFound
	case errors.Is(err, userssvc.ErrInvalidPassword):
		return authsvc.ErrInvalidCredentials
	case errors.Is(err, userssvc.ErrValidation):
		return authsvc.ErrInvalidInput
	default:
		return err
	}
}

package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/KishorKumarParoi/KTube-backend/internal/domain/model"
	"github.com/KishorKumarParoi/KTube-backend/internal/pkg/validate"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrUserExists      = errors.New("user already exists")
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
)

const signedURLTTL = 15 * time.Minute

// Store is the persistence contract for account rows. The password hash and
// image object keys never leave this package in client-facing views.
type Store interface {
	Create(ctx context.Context, user NewUser) (UserRecord, error)
	FindByLogin(ctx context.Context, usernameOrEmail string) (UserRecord, error)
	FindByID(ctx context.Context, userID int64) (UserRecord, error)
	UpdateAccount(ctx context.Context, userID int64, patch AccountPatch) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID int64, passwordHash string) error
}

// URLSigner turns a stored object key into a short-lived GET URL. A nil signer
// leaves image URLs empty.
type URLSigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type NewUser struct {
	Username     string
	Email        string
	FullName     string
	PasswordHash string
}

type AccountPatch struct {
	FullName string
	Username string
	Email    string
}

type UserRecord struct {
	ID           int64
	Username     string
	Email        string
	FullName     string
	PasswordHash string
	AvatarKey    string
	CoverKey     string
	RefreshToken string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type RegisterInput struct {
	Username string
	Email    string
	FullName string
	Password string
}

type Service struct {
	store  Store
	signer URLSigner
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// AttachURLSigner enables presigned image URLs in returned views. Without it
// the service still works, image URLs are just empty.
func (s *Service) AttachURLSigner(signer URLSigner) {
	s.signer = signer
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (model.User, error) {
	if !validate.Required(input.Username) || !validate.Required(input.FullName) || input.Password == "" {
		return model.User{}, ErrValidation
	}
	if !validate.Email(input.Email) {
		return model.User{}, fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if len(input.Password) < 8 {
		return model.User{}, fmt.Errorf("%w: password too short", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	record, err := s.store.Create(ctx, NewUser{
		Username:     strings.ToLower(strings.TrimSpace(input.Username)),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		FullName:     strings.TrimSpace(input.FullName),
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return model.User{}, ErrUserExists
		}
		return model.User{}, fmt.Errorf("create user: %w", err)
	}

	return s.toUser(ctx, record), nil
}

func (s *Service) FindByLogin(ctx context.Context, usernameOrEmail string) (model.User, error) {
	if !validate.Required(usernameOrEmail) {
		return model.User{}, ErrValidation
	}

	record, err := s.store.FindByLogin(ctx, strings.ToLower(strings.TrimSpace(usernameOrEmail)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("find user by login: %w", err)
	}

	return s.toUser(ctx, record), nil
}

func (s *Service) FindByID(ctx context.Context, userID int64) (model.User, error) {
	if userID <= 0 {
		return model.User{}, ErrValidation
	}

	record, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("find user by id: %w", err)
	}

	return s.toUser(ctx, record), nil
}

// VerifyPassword checks a plaintext password against the stored bcrypt hash.
func (s *Service) VerifyPassword(ctx context.Context, userID int64, password string) error {
	if userID <= 0 || password == "" {
		return ErrInvalidPassword
	}

	record, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("find user by id: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidPassword
	}

	return nil
}

func (s *Service) UpdatePassword(ctx context.Context, userID int64, newPassword string) error {
	if userID <= 0 {
		return ErrValidation
	}
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password too short", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.store.UpdatePasswordHash(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}

	return nil
}

// UpdateAccount applies a partial profile update. At least one field must be
// set.
func (s *Service) UpdateAccount(ctx context.Context, userID int64, patch AccountPatch) (model.User, error) {
	if userID <= 0 {
		return model.User{}, ErrValidation
	}

	patch.FullName = strings.TrimSpace(patch.FullName)
	patch.Username = strings.ToLower(strings.TrimSpace(patch.Username))
	patch.Email = strings.ToLower(strings.TrimSpace(patch.Email))
	if patch.FullName == "" && patch.Username == "" && patch.Email == "" {
		return model.User{}, fmt.Errorf("%w: at least one field is required", ErrValidation)
	}
	if patch.Email != "" && !validate.Email(patch.Email) {
		return model.User{}, fmt.Errorf("%w: invalid email", ErrValidation)
	}

	record, err := s.store.UpdateAccount(ctx, userID, patch)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			return model.User{}, ErrUserNotFound
		case errors.Is(err, ErrUserExists):
			return model.User{}, ErrUserExists
		}
		return model.User{}, fmt.Errorf("update account: %w", err)
	}

	return s.toUser(ctx, record), nil
}

func (s *Service) toUser(ctx context.Context, record UserRecord) model.User {
	user := model.User{
		ID:        record.ID,
		Username:  record.Username,
		Email:     record.Email,
		FullName:  record.FullName,
		Avatar:    model.Image{Key: record.AvatarKey},
		CoverImage: model.Image{
			Key: record.CoverKey,
		},
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}

	if s.signer != nil {
		if record.AvatarKey != "" {
			if url, err := s.signer.PresignGet(ctx, record.AvatarKey, signedURLTTL); err == nil {
				user.Avatar.URL = url
			}
		}
		if record.CoverKey != "" {
			if url, err := s.signer.PresignGet(ctx, record.CoverKey, signedURLTTL); err == nil {
				user.CoverImage.URL = url
			}
		}
	}

	return user
}

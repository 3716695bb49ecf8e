package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/KishorKumarParoi/KTube-backend/internal/domain/model"
)

// RefreshStore holds the single live refresh token per user. Implementations
// must make ReplaceRefreshToken a conditional swap: the write happens only if
// the stored value still equals old, otherwise ErrRefreshMismatch.
type RefreshStore interface {
	GetRefreshToken(ctx context.Context, userID int64) (string, error)
	SetRefreshToken(ctx context.Context, userID int64, token string) error
	ReplaceRefreshToken(ctx context.Context, userID int64, old, new string) error
	ClearRefreshToken(ctx context.Context, userID int64) error
}

// CredentialStore is the external account capability the token service
// delegates to. It owns password hashing and user persistence.
type CredentialStore interface {
	FindByLogin(ctx context.Context, usernameOrEmail string) (model.User, error)
	FindByID(ctx context.Context, userID int64) (model.User, error)
	VerifyPassword(ctx context.Context, userID int64, password string) error
	UpdatePassword(ctx context.Context, userID int64, newPassword string) error
}

// LoginLimiter throttles credential-guessing. A nil limiter disables
// throttling entirely.
type LoginLimiter interface {
	AllowLogin(ctx context.Context, key string) (retryAfterSec int64, ok bool, err error)
}

type Service struct {
	tokens      *TokenManager
	refreshSlot RefreshStore
	credentials CredentialStore
	limiter     LoginLimiter
}

func NewService(tokens *TokenManager, refreshSlot RefreshStore, credentials CredentialStore) *Service {
	return &Service{
		tokens:      tokens,
		refreshSlot: refreshSlot,
		credentials: credentials,
	}
}

// AttachRateLimiter enables login throttling. Safe to skip when redis is not
// available; login then runs unthrottled.
func (s *Service) AttachRateLimiter(limiter LoginLimiter) {
	s.limiter = limiter
}

// Login verifies credentials and starts a fresh session. Any refresh token
// issued by a previous session for this user stops working the moment the new
// one is persisted.
func (s *Service) Login(ctx context.Context, login, password string) (LoginResult, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return LoginResult{}, ErrInvalidInput
	}

	if s.limiter != nil {
		retryAfter, ok, err := s.limiter.AllowLogin(ctx, strings.ToLower(login))
		if err != nil {
			return LoginResult{}, fmt.Errorf("login rate check: %w", err)
		}
		if !ok {
			return LoginResult{}, &TooManyAttemptsError{RetryAfterSec: retryAfter}
		}
	}

	user, err := s.credentials.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrNotFound
		}
		return LoginResult{}, fmt.Errorf("find account: %w", err)
	}

	if err := s.credentials.VerifyPassword(ctx, user.ID, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("verify password: %w", err)
	}

	pair, err := s.issuePair(user.ID, user.Username)
	if err != nil {
		return LoginResult{}, err
	}

	if err := s.refreshSlot.SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return LoginResult{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return LoginResult{Tokens: pair, User: user}, nil
}

// Refresh rotates the refresh token: the presented token must match the stored
// live value byte for byte, and a successful call replaces it so the presented
// token can never be used again.
func (s *Service) Refresh(ctx context.Context, presented string) (LoginResult, error) {
	if strings.TrimSpace(presented) == "" {
		return LoginResult{}, fmt.Errorf("%w: missing refresh token", ErrUnauthorized)
	}

	identity, err := s.tokens.Verify(presented, KindRefresh)
	if err != nil {
		return LoginResult{}, fmt.Errorf("%w: refresh token rejected: %v", ErrUnauthorized, err)
	}

	user, err := s.credentials.FindByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrNotFound
		}
		return LoginResult{}, fmt.Errorf("find account: %w", err)
	}

	pair, err := s.issuePair(user.ID, user.Username)
	if err != nil {
		return LoginResult{}, err
	}

	// The conditional swap is the replay defense: once rotated, the old token
	// fails here even though it is still cryptographically valid.
	if err := s.refreshSlot.ReplaceRefreshToken(ctx, user.ID, presented, pair.RefreshToken); err != nil {
		if errors.Is(err, ErrRefreshMismatch) {
			return LoginResult{}, fmt.Errorf("%w: refresh token reused or superseded", ErrUnauthorized)
		}
		return LoginResult{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	return LoginResult{Tokens: pair, User: user}, nil
}

// Logout clears the live refresh token. Clearing an already-empty slot is not
// an error.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return ErrInvalidInput
	}
	if err := s.refreshSlot.ClearRefreshToken(ctx, userID); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

// ChangePassword rotates the password. The live refresh token stays valid;
// logout is the revocation path.
func (s *Service) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword, confirm string) error {
	if userID <= 0 || oldPassword == "" || newPassword == "" {
		return ErrInvalidInput
	}
	if newPassword != confirm {
		return fmt.Errorf("%w: password confirmation does not match", ErrInvalidInput)
	}

	if err := s.credentials.VerifyPassword(ctx, userID, oldPassword); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("verify old password: %w", err)
	}

	if err := s.credentials.UpdatePassword(ctx, userID, newPassword); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return nil
}

// ValidateAccessToken is the middleware entrypoint: pure token verification
// plus an existence check on the account.
func (s *Service) ValidateAccessToken(ctx context.Context, accessToken string) (Identity, error) {
	identity, err := s.tokens.Verify(accessToken, KindAccess)
	if err != nil {
		return Identity{}, ErrUnauthorized
	}

	user, err := s.credentials.FindByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, ErrUnauthorized
		}
		return Identity{}, fmt.Errorf("find account: %w", err)
	}

	return Identity{UserID: user.ID, Username: user.Username}, nil
}

func (s *Service) issuePair(userID int64, username string) (TokenPair, error) {
	access, accessExpires, err := s.tokens.Issue(userID, username, KindAccess)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshExpires, err := s.tokens.Issue(userID, username, KindRefresh)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:    access,
		RefreshToken:   refresh,
		AccessExpires:  accessExpires,
		RefreshExpires: refreshExpires,
	}, nil
}

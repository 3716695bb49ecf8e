package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/KishorKumarParoi/KTube-backend/internal/domain/model"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("account not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTooManyAttempts    = errors.New("too many login attempts")

	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenInvalid   = errors.New("token invalid")

	ErrRefreshMismatch = errors.New("refresh token reused or superseded")
)

// TooManyAttemptsError carries the retry window for throttled logins.
type TooManyAttemptsError struct {
	RetryAfterSec int64
}

func (e *TooManyAttemptsError) Error() string {
	return fmt.Sprintf("too many login attempts, retry after %ds", e.RetryAfterSec)
}

func (e *TooManyAttemptsError) Unwrap() error {
	return ErrTooManyAttempts
}

// TokenKind selects which secret/TTL pair signs and verifies a token. A token
// issued under one kind never verifies under the other.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// TokenIdentity is the subject a verified token proves.
type TokenIdentity struct {
	UserID    int64
	Username  string
	ExpiresAt time.Time
}

type TokenPair struct {
	AccessToken    string
	RefreshToken   string
	AccessExpires  time.Time
	RefreshExpires time.Time
}

type LoginResult struct {
	Tokens TokenPair
	User   model.User
}

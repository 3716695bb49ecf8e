package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager signs and verifies the two token kinds. Access and refresh use
// independent secrets so a stolen access token can never be replayed on the
// refresh endpoint.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

type tokenClaims struct {
	Username string `json:"username"`
	Kind     string `json:"kind"`
	jwt.RegisteredClaims
}

func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 10 * 24 * time.Hour
	}

	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (m *TokenManager) Issue(userID int64, username string, kind TokenKind) (string, time.Time, error) {
	secret, ttl, err := m.kindConfig(kind)
	if err != nil {
		return "", time.Time{}, err
	}
	if userID <= 0 {
		return "", time.Time{}, fmt.Errorf("invalid token payload")
	}

	now := m.now().UTC()
	expiresAt := now.Add(ttl)
	claims := tokenClaims{
		Username: username,
		Kind:     string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}

	return signed, expiresAt, nil
}

func (m *TokenManager) Verify(raw string, kind TokenKind) (TokenIdentity, error) {
	secret, _, err := m.kindConfig(kind)
	if err != nil {
		return TokenIdentity{}, err
	}
	if strings.TrimSpace(raw) == "" {
		return TokenIdentity{}, ErrTokenMalformed
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return TokenIdentity{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return TokenIdentity{}, ErrTokenMalformed
		default:
			return TokenIdentity{}, ErrTokenInvalid
		}
	}
	if token == nil || !token.Valid {
		return TokenIdentity{}, ErrTokenInvalid
	}
	if claims.Kind != string(kind) {
		return TokenIdentity{}, ErrTokenInvalid
	}

	userID, parseErr := strconv.ParseInt(claims.Subject, 10, 64)
	if parseErr != nil || userID <= 0 {
		return TokenIdentity{}, ErrTokenInvalid
	}
	if claims.ExpiresAt == nil {
		return TokenIdentity{}, ErrTokenInvalid
	}

	return TokenIdentity{
		UserID:    userID,
		Username:  claims.Username,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (m *TokenManager) AccessTTL() time.Duration {
	return m.accessTTL
}

func (m *TokenManager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

func (m *TokenManager) kindConfig(kind TokenKind) ([]byte, time.Duration, error) {
	switch kind {
	case KindAccess:
		if len(m.accessSecret) == 0 {
			return nil, 0, fmt.Errorf("access token secret is empty")
		}
		return m.accessSecret, m.accessTTL, nil
	case KindRefresh:
		if len(m.refreshSecret) == 0 {
			return nil, 0, fmt.Errorf("refresh token secret is empty")
		}
		return m.refreshSecret, m.refreshTTL, nil
	default:
		return nil, 0, fmt.Errorf("unknown token kind %q", kind)
	}
}

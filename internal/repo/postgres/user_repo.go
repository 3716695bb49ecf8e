package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	authsvc "github.com/KishorKumarParoi/KTube-backend/internal/services/auth"
	userssvc "github.com/KishorKumarParoi/KTube-backend/internal/services/users"
)

const uniqueViolation = "23505"

// UserRepo owns the users table: credential rows, image object keys, and the
// single-slot refresh token. It implements users.Store, auth.RefreshStore and
// media.Store.
type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, username, email, full_name, password_hash, avatar_key, cover_key, refresh_token, created_at, updated_at`

func (r *UserRepo) Create(ctx context.Context, user userssvc.NewUser) (userssvc.UserRecord, error) {
	if r.pool == nil {
		return userssvc.UserRecord{}, fmt.Errorf("postgres pool is nil")
	}

	var record userssvc.UserRecord
	err := r.pool.QueryRow(ctx, `
INSERT INTO users (username, email, full_name, password_hash, avatar_key, cover_key, refresh_token, created_at, updated_at)
VALUES ($1, $2, $3, $4, '', '', '', NOW(), NOW())
RETURNING `+userColumns+`
`, user.Username, user.Email, user.FullName, user.PasswordHash).Scan(
		&record.ID, &record.Username, &record.Email, &record.FullName, &record.PasswordHash,
		&record.AvatarKey, &record.CoverKey, &record.RefreshToken, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return userssvc.UserRecord{}, userssvc.ErrUserExists
		}
		return userssvc.UserRecord{}, fmt.Errorf("insert user: %w", err)
	}

	return record, nil
}

func (r *UserRepo) FindByLogin(ctx context.Context, usernameOrEmail string) (userssvc.UserRecord, error) {
	if r.pool == nil {
		return userssvc.UserRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(usernameOrEmail) == "" {
		return userssvc.UserRecord{}, userssvc.ErrUserNotFound
	}

	return r.scanOne(r.pool.QueryRow(ctx, `
SELECT `+userColumns+`
FROM users
WHERE username = $1 OR email = $1
`, usernameOrEmail))
}

func (r *UserRepo) FindByID(ctx context.Context, userID int64) (userssvc.UserRecord, error) {
	if r.pool == nil {
		return userssvc.UserRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return userssvc.UserRecord{}, userssvc.ErrUserNotFound
	}

	return r.scanOne(r.pool.QueryRow(ctx, `
SELECT `+userColumns+`
FROM users
WHERE id = $1
`, userID))
}

func (r *UserRepo) UpdateAccount(ctx context.Context, userID int64, patch userssvc.AccountPatch) (userssvc.UserRecord, error) {
	if r.pool == nil {
		return userssvc.UserRecord{}, fmt.Errorf("postgres pool is nil")
	}

	record, err := r.scanOne(r.pool.QueryRow(ctx, `
UPDATE users
SET full_name = COALESCE(NULLIF($2, ''), full_name),
	username  = COALESCE(NULLIF($3, ''), username),
	email     = COALESCE(NULLIF($4, ''), email),
	updated_at = NOW()
WHERE id = $1
RETURNING `+userColumns+`
`, userID, patch.FullName, patch.Username, patch.Email))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return userssvc.UserRecord{}, userssvc.ErrUserExists
		}
		return userssvc.UserRecord{}, err
	}

	return record, nil
}

func (r *UserRepo) UpdatePasswordHash(ctx context.Context, userID int64, passwordHash string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE users
SET password_hash = $2, updated_at = NOW()
WHERE id = $1
`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return userssvc.ErrUserNotFound
	}

	return nil
}

// Refresh-token slot. An empty string means no live token.

func (r *UserRepo) GetRefreshToken(ctx context.Context, userID int64) (string, error) {
	if r.pool == nil {
		return "", fmt.Errorf("postgres pool is nil")
	}

	var token string
	err := r.pool.QueryRow(ctx, `
SELECT refresh_token
FROM users
WHERE id = $1
`, userID).Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", userssvc.ErrUserNotFound
		}
		return "", fmt.Errorf("get refresh token: %w", err)
	}

	return token, nil
}

func (r *UserRepo) SetRefreshToken(ctx context.Context, userID int64, token string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE users
SET refresh_token = $2, updated_at = NOW()
WHERE id = $1
`, userID, token)
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return userssvc.ErrUserNotFound
	}

	return nil
}

// ReplaceRefreshToken is the rotation compare-and-swap: the row-level
// conditional update keeps two concurrent rotations of the same token from
// both succeeding, without any in-process lock.
func (r *UserRepo) ReplaceRefreshToken(ctx context.Context, userID int64, old, new string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE users
SET refresh_token = $3, updated_at = NOW()
WHERE id = $1 AND refresh_token = $2
`, userID, old, new)
	if err != nil {
		return fmt.Errorf("replace refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authsvc.ErrRefreshMismatch
	}

	return nil
}

func (r *UserRepo) ClearRefreshToken(ctx context.Context, userID int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE users
SET refresh_token = '', updated_at = NOW()
WHERE id = $1
`, userID); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}

	return nil
}

// Image slots for the media service.

func (r *UserRepo) UpdateAvatarKey(ctx context.Context, userID int64, key string) (string, error) {
	return r.swapImageKey(ctx, userID, "avatar_key", key)
}

func (r *UserRepo) UpdateCoverKey(ctx context.Context, userID int64, key string) (string, error) {
	return r.swapImageKey(ctx, userID, "cover_key", key)
}

func (r *UserRepo) swapImageKey(ctx context.Context, userID int64, column, key string) (string, error) {
	if r.pool == nil {
		return "", fmt.Errorf("postgres pool is nil")
	}

	var oldKey string
	err := r.pool.QueryRow(ctx, `
UPDATE users u
SET `+column+` = $2, updated_at = NOW()
FROM (SELECT id, `+column+` AS old_key FROM users WHERE id = $1 FOR UPDATE) prev
WHERE u.id = prev.id
RETURNING prev.old_key
`, userID, key).Scan(&oldKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", userssvc.ErrUserNotFound
		}
		return "", fmt.Errorf("update %s: %w", column, err)
	}

	return oldKey, nil
}

func (r *UserRepo) scanOne(row pgx.Row) (userssvc.UserRecord, error) {
	var record userssvc.UserRecord
	err := row.Scan(
		&record.ID, &record.Username, &record.Email, &record.FullName, &record.PasswordHash,
		&record.AvatarKey, &record.CoverKey, &record.RefreshToken, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return userssvc.UserRecord{}, userssvc.ErrUserNotFound
		}
		return userssvc.UserRecord{}, fmt.Errorf("scan user row: %w", err)
	}

	return record, nil
}

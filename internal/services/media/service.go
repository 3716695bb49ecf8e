package media

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/KishorKumarParoi/KTube-backend/internal/domain/model"
)

var ErrValidation = errors.New("validation error")

const (
	signedURLTTL  = 15 * time.Minute
	maxUploadSize = 8 << 20
)

type imageSlot string

const (
	slotAvatar imageSlot = "avatar"
	slotCover  imageSlot = "cover"
)

// Store records which object key currently backs a user's image slot and
// reports the key it replaced.
type Store interface {
	UpdateAvatarKey(ctx context.Context, userID int64, key string) (oldKey string, err error)
	UpdateCoverKey(ctx context.Context, userID int64, key string) (oldKey string, err error)
}

type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

type Service struct {
	store   Store
	storage ObjectStorage
}

func NewService(store Store, storage ObjectStorage) *Service {
	return &Service{
		store:   store,
		storage: storage,
	}
}

func (s *Service) UploadAvatar(ctx context.Context, userID int64, fileName, contentType string, body io.Reader, size int64) (model.Image, error) {
	return s.upload(ctx, userID, slotAvatar, fileName, contentType, body, size)
}

func (s *Service) UploadCoverImage(ctx context.Context, userID int64, fileName, contentType string, body io.Reader, size int64) (model.Image, error) {
	return s.upload(ctx, userID, slotCover, fileName, contentType, body, size)
}

func (s *Service) upload(ctx context.Context, userID int64, slot imageSlot, fileName, contentType string, body io.Reader, size int64) (model.Image, error) {
	if userID <= 0 || body == nil || size <= 0 || size > maxUploadSize {
		return model.Image{}, ErrValidation
	}
	if s.store == nil || s.storage == nil {
		return model.Image{}, fmt.Errorf("media dependencies are not configured")
	}

	if err := s.storage.EnsureBucket(ctx); err != nil {
		return model.Image{}, fmt.Errorf("ensure bucket: %w", err)
	}

	key, err := buildObjectKey(userID, slot, fileName)
	if err != nil {
		return model.Image{}, fmt.Errorf("build object key: %w", err)
	}

	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}

	if err := s.storage.Put(ctx, key, body, size, contentType); err != nil {
		return model.Image{}, fmt.Errorf("put object: %w", err)
	}

	var oldKey string
	switch slot {
	case slotAvatar:
		oldKey, err = s.store.UpdateAvatarKey(ctx, userID, key)
	case slotCover:
		oldKey, err = s.store.UpdateCoverKey(ctx, userID, key)
	}
	if err != nil {
		_ = s.storage.Delete(ctx, key)
		return model.Image{}, fmt.Errorf("record %s key: %w", slot, err)
	}

	// The superseded object is unreachable once the row points elsewhere.
	if oldKey != "" && oldKey != key {
		_ = s.storage.Delete(ctx, oldKey)
	}

	url, err := s.storage.PresignGet(ctx, key, signedURLTTL)
	if err != nil {
		return model.Image{}, fmt.Errorf("presign %s url: %w", slot, err)
	}

	return model.Image{Key: key, URL: url}, nil
}

func buildObjectKey(userID int64, slot imageSlot, fileName string) (string, error) {
	rnd := make([]byte, 8)
	if _, err := rand.Read(rnd); err != nil {
		return "", err
	}

	ext := strings.ToLower(path.Ext(strings.TrimSpace(fileName)))
	if ext == "" {
		ext = ".bin"
	}

	stamp := time.Now().UTC().Format("20060102T150405")
	return fmt.Sprintf("users/%d/%s/%s_%s%s", userID, slot, stamp, hex.EncodeToString(rnd), ext), nil
}

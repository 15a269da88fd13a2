// Package avatar validates profile pictures and keeps them in object storage
package avatar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"feedboard-backend/internal/apperr"
	"feedboard-backend/internal/models"
	"feedboard-backend/internal/storage"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

const (
	MaxSize = 2 << 20

	TypePNG  = "image/png"
	TypeJPEG = "image/jpeg"
)

var signatures = map[string][]byte{
	TypePNG:  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	TypeJPEG: {0xFF, 0xD8, 0xFF},
}

var aliases = map[string]string{
	"image/png":   TypePNG,
	"image/x-png": TypePNG,
	"image/jpeg":  TypeJPEG,
	"image/jpg":   TypeJPEG,
	"image/pjpeg": TypeJPEG,
}

// NormalizeMIME maps a declared content type onto one of the accepted
// types, ignoring case and parameters.
func NormalizeMIME(declared string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(declared))
	}
	if normalized, ok := aliases[mediaType]; ok {
		return normalized, nil
	}
	return "", apperr.Validation("avatar_invalid_type", "Avatars must be PNG or JPEG images")
}

// Validate checks an upload against its declared type and returns the
// normalized type. Size is checked before the signature.
func Validate(declared string, data []byte) (string, error) {
	contentType, err := NormalizeMIME(declared)
	if err != nil {
		return "", err
	}
	if len(data) > MaxSize {
		return "", apperr.Validation("avatar_too_large", "Avatars can be at most 2 MB")
	}
	if !bytes.HasPrefix(data, signatures[contentType]) {
		return "", apperr.Validation("avatar_signature_mismatch", "The file content doesn't match its declared type")
	}
	return contentType, nil
}

// Path is where a user's avatar is stored
func Path(userID string) string {
	return "avatars/" + userID
}

// URL is the proxy address the avatar is served from
func URL(userID string) string {
	return "/api/avatars/" + userID
}

type Service struct {
	db     *gorm.DB
	store  storage.ObjectStore
	logger echo.Logger
}

func NewService(db *gorm.DB, store storage.ObjectStore, logger echo.Logger) *Service {
	return &Service{db: db, store: store, logger: logger}
}

// Upload validates and stores the user's avatar, replacing any previous
// one, and returns its proxy URL.
func (s *Service) Upload(ctx context.Context, userID, declared string, r io.Reader) (string, error) {
	// Read one byte past the limit so oversized files are detected without
	// buffering them whole
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return "", apperr.Validation("avatar_unreadable", "Could not read the uploaded file")
	}

	contentType, err := Validate(declared, data)
	if err != nil {
		return "", err
	}

	if s.store == nil {
		return "", apperr.Upstream("upload avatar", errors.New("object storage not configured"))
	}
	if err := s.store.Upload(ctx, Path(userID), bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", apperr.Upstream("upload avatar", err)
	}

	url := URL(userID)
	if err := models.SetAvatarURL(s.db.WithContext(ctx), userID, url); err != nil {
		return "", apperr.Upstream("record avatar url", err)
	}

	s.logger.Infof("Stored %s avatar for user %s (%d bytes)", contentType, userID, len(data))
	return url, nil
}

// Open streams a user's avatar
func (s *Service) Open(ctx context.Context, userID string) (io.ReadCloser, storage.ObjectInfo, error) {
	if s.store == nil {
		return nil, storage.ObjectInfo{}, apperr.NotFound("avatar_not_found", "Avatar not found")
	}
	rc, info, err := s.store.Download(ctx, Path(userID))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.ObjectInfo{}, apperr.NotFound("avatar_not_found", "Avatar not found")
		}
		return nil, storage.ObjectInfo{}, apperr.Upstream("download avatar", err)
	}
	return rc, info, nil
}

// Delete removes every object stored under the user's avatar path
func (s *Service) Delete(ctx context.Context, userID string) error {
	if s.store == nil {
		return apperr.Upstream("delete avatar", errors.New("object storage not configured"))
	}

	paths, err := s.store.List(ctx, Path(userID))
	if err != nil {
		return apperr.Upstream("list avatars", err)
	}
	if len(paths) > 0 {
		if err := s.store.Remove(ctx, paths); err != nil {
			return apperr.Upstream("delete avatar", err)
		}
	}

	if err := models.SetAvatarURL(s.db.WithContext(ctx), userID, ""); err != nil {
		return apperr.Upstream("clear avatar url", err)
	}

	s.logger.Infof("Removed %s for user %s", pluralObjects(len(paths)), userID)
	return nil
}

func pluralObjects(n int) string {
	if n == 1 {
		return "1 avatar object"
	}
	return fmt.Sprintf("%d avatar objects", n)
}

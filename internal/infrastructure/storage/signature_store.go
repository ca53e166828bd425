package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/entity"
)

// SignatureKeys is the part of the identity repository the store needs
type SignatureKeys interface {
	GetIdentity(ctx context.Context, id string) (*entity.Identity, error)
	SetSignatureKey(ctx context.Context, id, key string) error
}

// SignatureStore implements port.SignatureStore over a blob driver.
// The reference handed out is the object key; earlier keys stay readable
// because signed steps keep pointing at them.
type SignatureStore struct {
	blobs  port.BlobStorage
	keys   SignatureKeys
	logger *zap.Logger
}

// NewSignatureStore creates a SignatureStore
func NewSignatureStore(blobs port.BlobStorage, keys SignatureKeys, logger *zap.Logger) *SignatureStore {
	return &SignatureStore{blobs: blobs, keys: keys, logger: logger}
}

// GetSignatureImage returns the identity's current signature key, or ""
func (s *SignatureStore) GetSignatureImage(ctx context.Context, identityID string) (string, error) {
	ident, err := s.keys.GetIdentity(ctx, identityID)
	if err != nil {
		return "", err
	}
	return ident.SignatureKey, nil
}

// PutSignatureImage uploads a new image and points the identity at it
func (s *SignatureStore) PutSignatureImage(ctx context.Context, identityID string, image io.Reader, contentType string) (string, error) {
	key := SignatureKey(identityID, contentType)
	if err := s.blobs.Save(ctx, key, image, contentType); err != nil {
		return "", fmt.Errorf("failed to store signature image: %w", err)
	}
	if err := s.keys.SetSignatureKey(ctx, identityID, key); err != nil {
		return "", err
	}

	s.logger.Info("Signature image stored",
		zap.String("identity_id", identityID),
		zap.String("key", key))
	return key, nil
}

// URL resolves a signature reference to a link for rendering
func (s *SignatureStore) URL(ctx context.Context, ref string, expires time.Duration) (string, error) {
	if ref == "" {
		return "", apperr.NotFound("signature reference")
	}
	return s.blobs.GenerateURL(ctx, ref, expires)
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)

// SanitizeName reduces name to characters safe in a path segment
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	return unsafeName.ReplaceAllString(name, "")
}

// SignatureKey builds a fresh object key for an identity's signature image
func SignatureKey(identityID, contentType string) string {
	ext := ""
	switch contentType {
	case "image/png":
		ext = ".png"
	case "image/jpeg":
		ext = ".jpg"
	case "image/gif":
		ext = ".gif"
	}
	owner := SanitizeName(identityID)
	if owner == "" {
		owner = "unknown"
	}
	return path.Join("signatures", owner, uuid.NewString()+ext)
}

package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/entity"
)

var signatureContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
}

// IdentityService maintains the organization directory and stored signatures
type IdentityService interface {
	Get(ctx context.Context, id string) (*entity.Identity, error)
	List(ctx context.Context) ([]entity.Identity, error)
	// UploadSignature stores the actor's own signature image and returns its reference
	UploadSignature(ctx context.Context, actorID, identityID string, image io.Reader, contentType string) (string, error)
	ImportIdentities(ctx context.Context, r io.Reader) (int, error)
}

type identityServiceImpl struct {
	identityRepo port.IdentityRepository
	signatures   port.SignatureStore
	txManager    port.TransactionManager
	logger       Logger
}

// NewIdentityService creates a new IdentityService
func NewIdentityService(
	identityRepo port.IdentityRepository,
	signatures port.SignatureStore,
	txManager port.TransactionManager,
	logger Logger,
) IdentityService {
	return &identityServiceImpl{
		identityRepo: identityRepo,
		signatures:   signatures,
		txManager:    txManager,
		logger:       logger,
	}
}

func (s *identityServiceImpl) Get(ctx context.Context, id string) (*entity.Identity, error) {
	return s.identityRepo.GetIdentity(ctx, id)
}

func (s *identityServiceImpl) List(ctx context.Context) ([]entity.Identity, error) {
	return s.identityRepo.List(ctx)
}

// UploadSignature replaces the stored signature of identityID
func (s *identityServiceImpl) UploadSignature(ctx context.Context, actorID, identityID string, image io.Reader, contentType string) (string, error) {
	if actorID == "" || actorID != identityID {
		return "", apperr.Unauthorized("%s may not upload a signature for %s", actorID, identityID)
	}
	if !signatureContentTypes[contentType] {
		return "", apperr.Validation("unsupported signature content type %q", contentType)
	}
	if _, err := s.identityRepo.GetIdentity(ctx, identityID); err != nil {
		return "", err
	}

	ref, err := s.signatures.PutSignatureImage(ctx, identityID, image, contentType)
	if err != nil {
		s.logger.Error("Failed to store signature", "error", err, "identity_id", identityID)
		return "", err
	}

	s.logger.Info("Signature uploaded", "identity_id", identityID)
	return ref, nil
}

type identityFile struct {
	Identities []struct {
		ID       string   `yaml:"id"`
		Name     string   `yaml:"name"`
		DeptCode string   `yaml:"dept_code"`
		JobLevel string   `yaml:"job_level"`
		Roles    []string `yaml:"roles"`
		Active   *bool    `yaml:"active"`
	} `yaml:"identities"`
}

// ImportIdentities upserts every identity in a YAML document, all or nothing.
// Stored signature keys are left untouched.
func (s *identityServiceImpl) ImportIdentities(ctx context.Context, r io.Reader) (int, error) {
	var file identityFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return 0, apperr.Validation("invalid identity file: %v", err)
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for i, in := range file.Identities {
			id := strings.TrimSpace(in.ID)
			if id == "" {
				return apperr.Validation("identity %d has no id", i+1)
			}
			active := true
			if in.Active != nil {
				active = *in.Active
			}
			ident := &entity.Identity{
				ID:       id,
				Name:     in.Name,
				DeptCode: in.DeptCode,
				JobLevel: in.JobLevel,
				Roles:    in.Roles,
				Active:   active,
			}
			if err := s.identityRepo.Upsert(txCtx, ident); err != nil {
				return fmt.Errorf("identity %q: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Identities imported", "count", len(file.Identities))
	return len(file.Identities), nil
}

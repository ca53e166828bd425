package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/apperr"
)

const defaultContentType = "application/octet-stream"

// LocalFileStorage implements port.BlobStorage on the local filesystem.
// Objects are spread over two levels of directories derived from the file
// name, with the content type kept in a ".meta" sidecar.
type LocalFileStorage struct {
	baseDir   string
	publicURL string
	logger    *zap.Logger
}

// NewLocalFileStorage creates the base directory if needed
func NewLocalFileStorage(baseDir, publicURL string, logger *zap.Logger) (port.BlobStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalFileStorage{
		baseDir:   baseDir,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		logger:    logger,
	}, nil
}

// Save writes body under key, replacing any previous object
func (s *LocalFileStorage) Save(ctx context.Context, key string, body io.Reader, contentType string) error {
	fullPath, err := s.fullPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		s.logger.Error("Failed to create parent directories",
			zap.String("path", fullPath),
			zap.Error(err))
		return fmt.Errorf("failed to create directories: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	n, err := io.Copy(file, body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(fullPath)
		s.logger.Error("Failed to write file", zap.String("path", fullPath), zap.Error(err))
		return fmt.Errorf("failed to write file: %w", err)
	}

	if contentType == "" {
		contentType = defaultContentType
	}
	if err := os.WriteFile(fullPath+".meta", []byte(contentType), 0644); err != nil {
		_ = os.Remove(fullPath)
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	s.logger.Debug("File saved successfully",
		zap.String("key", key),
		zap.Int64("size", n))
	return nil
}

// Get opens the object stored under key
func (s *LocalFileStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	fullPath, err := s.fullPath(key)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", apperr.NotFound("object %s", key)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}

	contentType := defaultContentType
	if meta, err := os.ReadFile(fullPath + ".meta"); err == nil {
		contentType = string(meta)
	}
	return f, contentType, nil
}

// Delete removes the object. Missing objects are not an error.
func (s *LocalFileStorage) Delete(ctx context.Context, key string) error {
	fullPath, err := s.fullPath(key)
	if err != nil {
		return err
	}

	_ = os.Remove(fullPath + ".meta")
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Error("Failed to delete file", zap.String("path", fullPath), zap.Error(err))
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// GenerateURL returns the public link for key. Local objects never expire.
func (s *LocalFileStorage) GenerateURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if s.publicURL == "" {
		return key, nil
	}
	return s.publicURL + "/" + key, nil
}

// fullPath maps key to its hashed location and checks it stays within baseDir
func (s *LocalFileStorage) fullPath(key string) (string, error) {
	if key == "" {
		return "", apperr.Validation("empty storage key")
	}
	dir, name := filepath.Split(filepath.FromSlash(key))
	if len(name) >= 4 {
		dir = filepath.Join(dir, name[0:2], name[2:4])
	}
	fullPath := filepath.Join(s.baseDir, dir, name)

	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", apperr.Validation("storage key escapes base directory: %s", key)
	}
	return fullPath, nil
}

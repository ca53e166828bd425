package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/port"
)

// Driver names accepted in Config.Type
const (
	DriverLocal = "local"
	DriverS3    = "s3"
)

// Config selects and configures a blob driver
type Config struct {
	Type string

	LocalDir       string
	LocalPublicURL string

	S3Endpoint  string
	S3Bucket    string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string
}

// NewStorageFromConfig builds the configured blob driver
func NewStorageFromConfig(ctx context.Context, cfg Config, logger *zap.Logger) (port.BlobStorage, error) {
	switch cfg.Type {
	case DriverLocal, "":
		logger.Info("Initializing local storage", zap.String("dir", cfg.LocalDir))
		return NewLocalFileStorage(cfg.LocalDir, cfg.LocalPublicURL, logger)
	case DriverS3:
		logger.Info("Initializing S3 storage",
			zap.String("endpoint", cfg.S3Endpoint),
			zap.String("bucket", cfg.S3Bucket))

		opts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.S3Region),
		}
		if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
			creds := credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")
			opts = append(opts, awsconfig.WithCredentialsProvider(creds))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.S3Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			}
			o.UsePathStyle = true
		})
		return NewS3Storage(client, cfg.S3Bucket, cfg.S3PublicURL, logger), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

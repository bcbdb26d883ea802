// Package archive writes exported audit batches to S3-compatible storage.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/klauspost/compress/gzip"

	"github.com/taskforge/api/internal/config"
	"github.com/taskforge/api/pkg/logger"
)

// Uploader compresses payloads and puts them in the configured bucket.
type Uploader struct {
	client *s3.Client
	cfg    *config.ArchiveConfig
	logger *logger.Logger
}

// NewUploader creates an S3 uploader from the archive configuration.
// AuthMethod selects static keys or an assumed STS role; anything else
// falls through to the default AWS credential chain.
func NewUploader(ctx context.Context, cfg *config.ArchiveConfig, log *logger.Logger) (*Uploader, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}

	// Build AWS config
	var awsOpts []func(*awsconfig.LoadOptions) error

	awsOpts = append(awsOpts, awsconfig.WithRegion(cfg.Region))

	// Setup authentication
	switch cfg.AuthMethod {
	case "keys":
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	case "sts_role":
		// Load base config first
		baseCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		stsClient := sts.NewFromConfig(baseCfg)
		assumeOpts := func(o *stscreds.AssumeRoleOptions) {
			if cfg.STSExternalID != "" {
				o.ExternalID = aws.String(cfg.STSExternalID)
			}
		}
		creds := stscreds.NewAssumeRoleProvider(stsClient, cfg.STSRoleARN, assumeOpts)
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(creds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Create S3 client
	s3Opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO
		})
	}

	return &Uploader{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		cfg:    cfg,
		logger: log.With("component", "archive_uploader"),
	}, nil
}

// Upload gzips the payload and writes it under the configured prefix with a
// .gz suffix. Returns the final object key.
func (u *Uploader) Upload(ctx context.Context, key string, payload []byte) (string, error) {
	if key == "" {
		return "", errors.New("object key is required")
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(payload); err != nil {
		return "", fmt.Errorf("compress payload: %w", err)
	}
	if err := gw.Close(); err != nil {
		return "", fmt.Errorf("flush compressed payload: %w", err)
	}

	fullKey := path.Join(u.cfg.Prefix, strings.TrimPrefix(key, "/")) + ".gz"

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(fullKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", fullKey, err)
	}

	u.logger.Debug("archive object uploaded",
		"key", fullKey,
		"raw_bytes", len(payload),
		"compressed_bytes", buf.Len(),
	)
	return fullKey, nil
}

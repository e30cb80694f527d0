package media

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	appconfig "gitlab.com/jackdesk/api/bcast-conversation-hub/internal/config"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/usecase"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/utils"
)

// s3API is the slice of the S3 client the store uses, kept narrow for tests.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads inbound media to an S3-compatible bucket and hands back
// stable serving URLs. Works against B2 and MinIO through the custom
// endpoint; path-style addressing keeps bucket names out of DNS.
type S3Store struct {
	client    s3API
	bucket    string
	publicURL string
}

// NewS3Store builds the store from the media config block.
func NewS3Store(cfg appconfig.Config) *S3Store {
	client := s3.New(s3.Options{
		Region:       cfg.Media.Region,
		BaseEndpoint: aws.String(cfg.Media.Endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.Media.AccessKey, cfg.Media.SecretKey, ""),
		UsePathStyle: true,
	})
	return &S3Store{
		client:    client,
		bucket:    cfg.Media.Bucket,
		publicURL: strings.TrimRight(cfg.Media.PublicURL, "/"),
	}
}

// StoreInbound uploads one received media object under the organization's
// prefix and returns its public URL.
func (s *S3Store) StoreInbound(ctx context.Context, organizationID, contactID, filename string, data []byte, contentType string) (string, error) {
	log := logger.FromContext(ctx)
	start := utils.Now()

	key := inboundKey(organizationID, contactID, filename, start)
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		log.Error("Failed to upload media object",
			zap.String("bucket", s.bucket),
			zap.String("key", key),
			zap.Error(err),
		)
		return "", fmt.Errorf("uploading media object %s: %w", key, err)
	}

	log.Debug("Uploaded media object",
		zap.String("key", key),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)),
	)
	return s.publicURL + "/" + key, nil
}

// inboundKey lays out received media as
// <org>/customer/received/<contact>/<yyyy-mm-dd>/<filename>.
func inboundKey(organizationID, contactID, filename string, now time.Time) string {
	return path.Join(
		organizationID,
		"customer", "received",
		contactID,
		now.UTC().Format("2006-01-02"),
		sanitizeFilename(filename),
	)
}

// sanitizeFilename strips path separators so provider-supplied names cannot
// escape the contact prefix.
func sanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	if filename == "" || filename == "." || filename == ".." {
		filename = "attachment"
	}
	return filename
}

var _ usecase.MediaStore = (*S3Store)(nil)

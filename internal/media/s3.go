// internal/media/s3.go
// Package media archives images uploaded for identification to S3-compatible
// storage. Archiving is best-effort: the identification pipelines detach it
// from the request path and never surface failures to clients.
package media

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/monastery360/monastery360-go/internal/model"
)

// Archiver stores identification uploads for later model training review.
type Archiver interface {
	// ArchiveImage stores the uploaded bytes and returns the object key.
	ArchiveImage(ctx context.Context, image []byte, contentType string) (string, error)
}

// noop is the Archiver used when S3 is not configured.
type noop struct{}

func (n *noop) ArchiveImage(ctx context.Context, image []byte, contentType string) (string, error) {
	return "", nil
}

// NewNoop returns an Archiver that discards uploads.
func NewNoop() Archiver { return &noop{} }

// S3Client wraps the AWS S3 client for image archival.
// It supports both AWS S3 and S3-compatible services like MinIO.
type S3Client struct {
	client *s3.Client
	bucket string
}

// NewS3Client creates a new S3 client for image archival.
func NewS3Client(endpoint, region, bucket, accessKey, secretKey string) (*S3Client, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     accessKey,
					SecretAccessKey: secretKey,
				}, nil
			})),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true // Required for MinIO and other S3-compatible services
	})

	return &S3Client{
		client: client,
		bucket: bucket,
	}, nil
}

// ArchiveImage stores the uploaded bytes under a date-partitioned key.
func (s *S3Client) ArchiveImage(ctx context.Context, image []byte, contentType string) (string, error) {
	key := fmt.Sprintf("identify/%s/%s", time.Now().UTC().Format("2006-01-02"), model.NewID())

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(image),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive image: %w", err)
	}
	return key, nil
}

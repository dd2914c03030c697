package utils

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// BlobStore is the content-addressed storage boundary. The core only stores
// and hands back opaque refs; it never inspects blob contents.
type BlobStore interface {
	Put(ctx context.Context, body io.Reader, contentType string, metadata map[string]string) (string, error)
	Get(ctx context.Context, ref string) (io.ReadCloser, error)
}

// S3BlobStore keeps executables and round logs in an S3-compatible bucket.
// The ref is the object key.
type S3BlobStore struct {
	client *s3.Client
	bucket string
}

func NewS3BlobStore(ctx context.Context, cfg *Config) (*S3BlobStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.BlobRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.BlobAccessKey, cfg.BlobSecretKey, "",
		)),
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load blob store config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BlobEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BlobEndpoint)
			o.UsePathStyle = true
		}
	})
	return &S3BlobStore{client: client, bucket: cfg.BlobBucket}, nil
}

func (b *S3BlobStore) Put(ctx context.Context, body io.Reader, contentType string, metadata map[string]string) (string, error) {
	key := uuid.NewString()
	if t, ok := metadata["type"]; ok {
		key = t + "/" + key
	}
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	return key, nil
}

func (b *S3BlobStore) Get(ctx context.Context, ref string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch blob %s: %w", ref, err)
	}
	return out.Body, nil
}

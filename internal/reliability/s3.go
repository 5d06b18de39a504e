package reliability

import (
	"context"
	"fmt"
	"io"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// S3Client wraps the S3 operations the backup service needs.
type S3Client struct {
	client *s3.Client
	bucket string
	prefix string
	log    zerolog.Logger
}

// NewS3Client builds a client from the default AWS credential chain.
func NewS3Client(ctx context.Context, bucket, prefix string, log zerolog.Logger) (*S3Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &S3Client{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
		log:    log.With().Str("service", "s3").Logger(),
	}, nil
}

// Upload stores an object under the configured prefix.
func (c *S3Client) Upload(ctx context.Context, key string, body io.Reader, size int64) error {
	fullKey := c.prefix + "/" + key
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &c.bucket,
		Key:           &fullKey,
		Body:          body,
		ContentLength: &size,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", fullKey, err)
	}
	c.log.Info().Str("key", fullKey).Int64("size", size).Msg("Uploaded backup to S3")
	return nil
}

// List returns the objects under the configured prefix.
func (c *S3Client) List(ctx context.Context) ([]types.Object, error) {
	prefix := c.prefix + "/"
	out, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: &c.bucket,
		Prefix: &prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list s3 backups: %w", err)
	}
	return out.Contents, nil
}

// Delete removes one object.
func (c *S3Client) Delete(ctx context.Context, key string) error {
	fullKey := c.prefix + "/" + key
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &c.bucket,
		Key:    &fullKey,
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", fullKey, err)
	}
	return nil
}

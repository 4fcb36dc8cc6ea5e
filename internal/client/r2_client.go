package client

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pixelpress/api/internal/config"
)

const bundleContentType = "application/zip"

// BundleStorage publishes finished bundles to object storage
type BundleStorage interface {
	// PutBundle uploads body under key.
	PutBundle(ctx context.Context, key string, body io.Reader) error
	// BundleURL returns a URL the bundle at key can be downloaded from.
	BundleURL(ctx context.Context, key string) (string, error)
}

// R2Client implements BundleStorage for Cloudflare R2
type R2Client struct {
	s3Client   *s3.Client
	presigner  *s3.PresignClient
	bucketName string
	publicURL  string
	urlExpiry  time.Duration
}

// NewR2Client creates a new R2 storage client
func NewR2Client(cfg *config.R2Config) (*R2Client, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("R2 configuration incomplete")
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}

	return &R2Client{
		s3Client:   s3Client,
		presigner:  s3.NewPresignClient(s3Client),
		bucketName: cfg.BucketName,
		publicURL:  strings.TrimRight(cfg.PublicURL, "/"),
		urlExpiry:  expiry,
	}, nil
}

// BundleKey is the object key of a job's bundle
func BundleKey(jobID, name string) string {
	return fmt.Sprintf("bundles/%s/%s", jobID, name)
}

// PutBundle implements BundleStorage
func (c *R2Client) PutBundle(ctx context.Context, key string, body io.Reader) error {
	input := &s3.PutObjectInput{
		Bucket:             aws.String(c.bucketName),
		Key:                aws.String(key),
		Body:               body,
		ContentType:        aws.String(bundleContentType),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", lastSegment(key))),
	}

	if _, err := c.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to R2: %w", err)
	}
	return nil
}

// BundleURL returns the public CDN URL when one is configured, otherwise a
// presigned URL valid for the configured expiry.
func (c *R2Client) BundleURL(ctx context.Context, key string) (string, error) {
	if c.publicURL != "" {
		return fmt.Sprintf("%s/%s", c.publicURL, key), nil
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	}
	presignedReq, err := c.presigner.PresignGetObject(ctx, input, s3.WithPresignExpires(c.urlExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return presignedReq.URL, nil
}

func lastSegment(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

// Package s3blob is the report bucket: stress-grid exports, archived run
// bundles and loan tapes moved out of the drop folder. It talks to AWS S3 or
// an S3-compatible store (MinIO, R2) through AWS SDK v2.
package s3blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ClientConfig holds the configuration for connecting to the report bucket.
type ClientConfig struct {
	// Endpoint overrides the AWS endpoint, e.g. "http://localhost:9000" for
	// MinIO. Leave empty for AWS S3.
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// UseSSL picks the scheme when Endpoint has none.
	UseSSL bool
	// ForcePathStyle puts the bucket in the path rather than the host name.
	ForcePathStyle bool
	// SSE is applied to every upload: "", "AES256" or "aws:kms". Loan
	// tapes carry borrower data, so production buckets set it.
	SSE string
	// KMSKeyID selects the key when SSE is "aws:kms". Empty means the
	// bucket's default key.
	KMSKeyID string
}

// Client holds the SDK client, the report bucket and the upload encryption
// settings shared by Writer and Reader.
type Client struct {
	s3       *s3.Client
	bucket   string
	sse      string
	kmsKeyID string
}

// New validates cfg and builds the SDK client. Static keys are optional;
// without them the default credential chain applies.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	if cfg.KMSKeyID != "" && cfg.SSE != string(types.ServerSideEncryptionAwsKms) {
		return nil, fmt.Errorf("s3blob: kms key %s needs sse aws:kms", cfg.KMSKeyID)
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)

	if cfg.Endpoint != "" {
		endpoint := normaliseEndpoint(cfg.Endpoint, cfg.UseSSL)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Client{
		s3:       s3.NewFromConfig(awsCfg, s3Opts...),
		bucket:   cfg.Bucket,
		sse:      cfg.SSE,
		kmsKeyID: cfg.KMSKeyID,
	}, nil
}

// Health backs the "s3" entry of the health endpoint with a HeadBucket.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3blob: head bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close lets the client sit in the app's closer list; the SDK holds nothing
// that needs releasing.
func (c *Client) Close() error {
	return nil
}

func (c *Client) S3() *s3.Client {
	return c.s3
}

func (c *Client) Bucket() string {
	return c.bucket
}

// normaliseEndpoint prepends a scheme when endpoint has none. A bare
// "host:port" is not a URL with scheme "host".
func normaliseEndpoint(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return scheme + "://" + endpoint
}

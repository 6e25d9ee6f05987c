// Package s3util builds the S3 client a blob tier stores its chunks with.
// Any S3-compatible endpoint works (AWS, MinIO, Cloudflare R2).
package s3util

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gftdcojp/tier-workloads/internal/config"
)

// DefaultRegion is used when a tier names no region; MinIO and R2 accept
// any value but the SDK refuses to sign without one.
const DefaultRegion = "us-east-1"

// Client is the S3 client of one blob tier together with the bucket and
// key prefix its chunks live under.
type Client struct {
	S3     *s3.Client
	Bucket string
	// Prefix has no leading or trailing slash.
	Prefix string
}

// NewClient builds a client from a tier's blob config. Static keys take
// precedence over the SDK's default credential chain.
func NewClient(ctx context.Context, cfg config.BlobConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("blob tier: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Client{
		S3:     client,
		Bucket: cfg.Bucket,
		Prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Ping reports whether the bucket is reachable; it backs the readiness
// check of blob tiers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.S3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.Bucket),
	})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", c.Bucket, err)
	}
	return nil
}

// Package s3 uploads exported run histories to S3 or an S3-compatible store.
package s3

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Config holds S3 client configuration.
type Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	Region string

	// Bucket is the default bucket name
	Bucket string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	OperationTimeout time.Duration
	UploadTimeout    time.Duration
}

// DefaultConfig returns sensible defaults for S3 configuration.
func DefaultConfig(bucket, region string) Config {
	return Config{
		Bucket:           bucket,
		Region:           region,
		OperationTimeout: 30 * time.Second,
		UploadTimeout:    5 * time.Minute,
	}
}

// ParseURL splits an s3://bucket/prefix URL into bucket and key prefix.
func ParseURL(raw string) (bucket, prefix string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 url %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid s3 url %q: scheme must be s3", raw)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 url %q: missing bucket", raw)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

// ObjectKey joins a key prefix and a file's base name.
func ObjectKey(prefix, file string) string {
	if prefix == "" {
		return filepath.Base(file)
	}
	return path.Join(prefix, filepath.Base(file))
}

// Client provides S3 operations.
type Client struct {
	cfg    Config
	client *s3.Client
}

// NewClient creates a new S3 client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	// Use explicit credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Client{
		cfg:    cfg,
		client: client,
	}, nil
}

// Bucket returns the default bucket name.
func (c *Client) Bucket() string {
	return c.cfg.Bucket
}

// ObjectInfo holds S3 object metadata.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
	ContentType  string
	StorageClass types.StorageClass
}

// Upload puts the file at localPath under key in the default bucket and
// returns the stored object's metadata.
func (c *Client) Upload(ctx context.Context, key, localPath string) (*ObjectInfo, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", localPath)
	}

	uploadCtx, cancel := context.WithTimeout(ctx, c.cfg.UploadTimeout)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(c.cfg.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(st.Size()),
	}
	if ct := contentType(localPath); ct != "" {
		input.ContentType = aws.String(ct)
	}

	if _, err := c.client.PutObject(uploadCtx, input); err != nil {
		return nil, fmt.Errorf("failed to upload %s to s3://%s/%s: %w", localPath, c.cfg.Bucket, key, err)
	}
	return c.Stat(ctx, key)
}

// Stat returns object info for key in the default bucket.
func (c *Client) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	output, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to head object %s/%s: %w", c.cfg.Bucket, key, err)
	}

	return &ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(output.ContentLength),
		LastModified: aws.ToTime(output.LastModified),
		ETag:         aws.ToString(output.ETag),
		ContentType:  aws.ToString(output.ContentType),
		StorageClass: output.StorageClass,
	}, nil
}

// contentType maps export extensions to MIME types.
func contentType(file string) string {
	switch ext := strings.ToLower(filepath.Ext(file)); ext {
	case ".parquet", ".pq":
		return "application/vnd.apache.parquet"
	case ".duckdb", ".db":
		return "application/octet-stream"
	default:
		return mime.TypeByExtension(ext)
	}
}

// Package archive offloads completed segments to S3-compatible object
// storage. Archival is strictly best-effort: capture and retention never
// depend on an upload succeeding.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures the S3 uploader.
type S3Config struct {
	// Bucket is the name of the S3 bucket.
	Bucket string

	// Region is the AWS region (e.g., "us-east-1").
	// Required for AWS S3, optional for S3-compatible endpoints.
	Region string

	// Endpoint is the S3 endpoint URL (e.g., "http://localhost:9000" for
	// MinIO). If empty, uses the default AWS endpoint for the region.
	Endpoint string

	// AccessKeyID is the AWS access key ID.
	// If empty, uses the default credential chain.
	AccessKeyID string

	// SecretAccessKey is the AWS secret access key.
	// If empty, uses the default credential chain.
	SecretAccessKey string

	// UsePathStyle enables path-style addressing (required for MinIO and
	// some S3-compatible stores).
	UsePathStyle bool

	// KeyPrefix is prepended to every object key.
	KeyPrefix string

	// Root is the local destination root. Object keys mirror the segment's
	// path relative to it.
	Root string
}

// S3Uploader copies segment files into an S3 bucket, preserving the
// stream/date directory layout in the object key.
type S3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
	root   string
}

// NewS3Uploader creates an uploader with the given configuration.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive: bucket name is required")
	}
	if cfg.Root == "" {
		return nil, errors.New("archive: destination root is required")
	}

	opts := []func(*config.LoadOptions) error{}

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	} else {
		opts = append(opts, config.WithRegion("us-east-1"))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: failed to load AWS config: %w", err)
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.DisableLogOutputChecksumValidationSkipped = true
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Uploader{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.KeyPrefix, "/"),
		root:   cfg.Root,
	}, nil
}

// Upload copies the file at localPath into the bucket and returns the
// object key and the number of bytes uploaded.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) (string, int64, error) {
	key, err := u.Key(localPath)
	if err != nil {
		return "", 0, err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return key, 0, fmt.Errorf("archive: open %s: %w", localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return key, 0, fmt.Errorf("archive: stat %s: %w", localPath, err)
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentTypeFor(localPath)),
	})
	if err != nil {
		return key, 0, fmt.Errorf("archive: put %s: %w", key, err)
	}
	return key, info.Size(), nil
}

// Key maps a local segment path to its object key: the configured prefix
// followed by the path relative to the destination root, slash-separated.
func (u *S3Uploader) Key(localPath string) (string, error) {
	rel, err := filepath.Rel(u.root, localPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("archive: %s is outside destination root %s", localPath, u.root)
	}
	key := filepath.ToSlash(rel)
	if u.prefix != "" {
		key = path.Join(u.prefix, key)
	}
	return key, nil
}

func contentTypeFor(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".mp4":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".ts":
		return "video/mp2t"
	case ".webm":
		return "video/webm"
	case ".aac":
		return "audio/aac"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"

	"github.com/robert-malhotra/sarprep/internal/download"
)

// s3Downloader is the subset of manager.Downloader used for staging.
type s3Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, options ...func(*manager.Downloader)) (int64, error)
}

// S3Credentials holds optional static credentials. Empty keys select
// anonymous access, which is what public Sentinel-1 buckets require.
type S3Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// S3Source downloads archives from S3 with the transfer manager.
type S3Source struct {
	cfg           aws.Config
	newDownloader func(aws.Config) s3Downloader
	logger        *slog.Logger
}

// NewS3Source creates an S3Source for region.
func NewS3Source(region string, creds S3Credentials) *S3Source {
	cfg := aws.Config{Region: region}
	if creds.AccessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)
	} else {
		cfg.Credentials = aws.AnonymousCredentials{}
	}
	return &S3Source{
		cfg: cfg,
		newDownloader: func(cfg aws.Config) s3Downloader {
			return manager.NewDownloader(s3.NewFromConfig(cfg))
		},
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the source
func (s *S3Source) WithLogger(logger *slog.Logger) *S3Source {
	s.logger = logger
	return s
}

// Download writes s3://bucket/key to dest through a ".part" file.
func (s *S3Source) Download(ctx context.Context, bucket, key, dest string) (n int64, err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create staging directory: %w", err)
	}

	tmpPath := dest + download.PartSuffix
	out, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	n, err = s.newDownloader(s.cfg).Download(ctx, out, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return n, fmt.Errorf("s3 download: %w", err)
	}

	if err = out.Close(); err != nil {
		return n, fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, dest); err != nil {
		return n, fmt.Errorf("rename temp file: %w", err)
	}

	s.logger.DebugContext(ctx, "s3 download complete",
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.String("size", humanize.IBytes(uint64(n))),
	)
	return n, nil
}

// ParseS3URI splits s3://bucket/key into its bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 URI: %q", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("s3 URI %q must name a bucket and an object key", uri)
	}
	return bucket, key, nil
}

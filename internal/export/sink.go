package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/usestring/customs-mcp/internal/config"
)

// Sink stores a finished workbook and returns where it can be fetched.
type Sink interface {
	Save(ctx context.Context, name string, data []byte) (location string, err error)
}

// NewSinkFromConfig creates the sink selected by cfg.ExportSink.
func NewSinkFromConfig(ctx context.Context, cfg *config.Config) (Sink, error) {
	switch cfg.ExportSink {
	case config.ExportSinkLocal, "":
		slog.Info("exports go to local directory", "dir", cfg.ExportDir)
		return NewLocalDir(cfg.ExportDir), nil
	case config.ExportSinkS3:
		slog.Info("exports go to S3", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3Bucket)

		opts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.S3Region),
		}
		if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
			creds := credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")
			opts = append(opts, awsconfig.WithCredentialsProvider(creds))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.S3Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.S3Endpoint)
				// third-party endpoints often reject streaming checksum trailers
				o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			}
			o.UsePathStyle = true
		})
		return NewS3Sink(api, cfg.S3Bucket, cfg.S3KeyPrefix, cfg.S3PublicURL), nil
	}
	return nil, fmt.Errorf("unsupported export sink: %s", cfg.ExportSink)
}

// LocalDir writes workbooks into a directory.
type LocalDir struct {
	Dir string
}

// NewLocalDir creates a LocalDir sink.
func NewLocalDir(dir string) *LocalDir {
	return &LocalDir{Dir: dir}
}

// Save implements Sink. An existing file of the same name is replaced.
func (d *LocalDir) Save(_ context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}
	path := filepath.Join(d.Dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

// S3Sink uploads workbooks to an S3-compatible bucket.
type S3Sink struct {
	Client    *s3.Client
	Presign   *s3.PresignClient
	Bucket    string
	KeyPrefix string
	PublicURL string // when set, locations are PublicURL/key instead of presigned
}

// NewS3Sink creates an S3Sink.
func NewS3Sink(api *s3.Client, bucket, keyPrefix, publicURL string) *S3Sink {
	return &S3Sink{
		Client:    api,
		Presign:   s3.NewPresignClient(api),
		Bucket:    bucket,
		KeyPrefix: strings.Trim(keyPrefix, "/"),
		PublicURL: strings.TrimSuffix(publicURL, "/"),
	}
}

// Save implements Sink.
func (s *S3Sink) Save(ctx context.Context, name string, data []byte) (string, error) {
	key := name
	if s.KeyPrefix != "" {
		key = s.KeyPrefix + "/" + name
	}
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(ContentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	if s.PublicURL != "" {
		return fmt.Sprintf("%s/%s", s.PublicURL, key), nil
	}
	req, err := s.Presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(time.Hour))
	if err != nil {
		return "", fmt.Errorf("failed to presign URL: %w", err)
	}
	return req.URL, nil
}

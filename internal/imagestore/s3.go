package imagestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type S3Config struct {
	Endpoint  string // empty for AWS, e.g. http://127.0.0.1:9000 for MinIO
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	// MaxBytes bounds how much of an upload is buffered before sending.
	MaxBytes int64
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps images in an S3-compatible bucket. They are still served
// through PathPrefix, so stored paths do not depend on the backend.
type S3Store struct {
	client s3API
	cfg    S3Config
	log    *slog.Logger
	now    func() time.Time
}

var _ Store = (*S3Store)(nil)

func NewS3Store(ctx context.Context, cfg S3Config, log *slog.Logger) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, cfg, log), nil
}

func newS3Store(client s3API, cfg S3Config, log *slog.Logger) *S3Store {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}

	return &S3Store{
		client: client,
		cfg:    cfg,
		log:    log.With(slog.String("component", "imagestore.s3"), slog.String("bucket", cfg.Bucket)),
		now:    time.Now,
	}
}

func (s *S3Store) key(name string) string {
	return s.cfg.Prefix + name
}

func (s *S3Store) Save(ctx context.Context, originalName string, r io.Reader) (string, error) {
	format, content, err := Sniff(r)
	if err != nil {
		return "", err
	}

	// a seekable body with a known length keeps the SDK away from
	// chunked uploads, which not every S3-compatible server accepts
	data, err := io.ReadAll(io.LimitReader(content, s.cfg.MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxBytes {
		return "", fmt.Errorf("upload exceeds %d bytes", s.cfg.MaxBytes)
	}

	name := NewName(originalName, format, s.now())

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(s.key(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentTypes[format]),
	})
	if err != nil {
		s.log.ErrorContext(ctx, "image store failed", "name", name, "error", err)
		return "", fmt.Errorf("put object: %w", err)
	}

	s.log.DebugContext(ctx, "image stored", "name", name, "format", format, "size", len(data))
	return PublicPath(name), nil
}

func (s *S3Store) Open(ctx context.Context, name string) (io.ReadCloser, Info, error) {
	if err := CheckName(name); err != nil {
		return nil, Info{}, ErrNotFound
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, Info{}, ErrNotFound
		}
		return nil, Info{}, fmt.Errorf("get object: %w", err)
	}

	info := Info{
		Name:        name,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ModTime:     aws.ToTime(out.LastModified),
	}
	if info.ContentType == "" {
		info.ContentType = ContentTypeFor(name)
	}

	return out.Body, info, nil
}

func (s *S3Store) Delete(ctx context.Context, publicPath string) error {
	name, err := NameFromPath(publicPath)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}

	s.log.DebugContext(ctx, "image deleted", "name", name)
	return nil
}

package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-media/internal/logger"
)

// Ensure S3 implements the interface.
var _ driven.MediaSource = (*S3)(nil)

// S3Client is the subset of *s3.Client used by S3.
type S3Client interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 reads media from s3://bucket/key URIs. Objects are downloaded to a
// temporary file that release removes.
type S3 struct {
	region string

	once    sync.Once
	client  S3Client
	initErr error
}

// NewS3 creates an S3 source. The AWS configuration (credentials chain,
// profile, endpoint) is loaded on first use. An empty region falls back to
// the environment.
func NewS3(region string) *S3 {
	return &S3{region: region}
}

// NewS3WithClient creates an S3 source around an existing client.
func NewS3WithClient(client S3Client) *S3 {
	s := &S3{client: client}
	s.once.Do(func() {})
	return s
}

func (s *S3) getClient(ctx context.Context) (S3Client, error) {
	s.once.Do(func() {
		var opts []func(*config.LoadOptions) error
		if s.region != "" {
			opts = append(opts, config.WithRegion(s.region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			s.initErr = fmt.Errorf("%w: load aws config: %w", domain.ErrStorageUnavailable, err)
			return
		}
		s.client = s3.NewFromConfig(cfg)
	})
	return s.client, s.initErr
}

// ParseS3URI splits s3://bucket/key into bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: not an s3 uri: %s", domain.ErrInvalidInput, uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("%w: s3 uri needs bucket and object key: %s", domain.ErrInvalidInput, uri)
	}
	return bucket, key, nil
}

// Stat issues a HEAD request. The ETag serves as content hash.
func (s *S3) Stat(ctx context.Context, uri string) (*domain.MediaStat, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s3Error(ctx, "head", uri, err)
	}
	return &domain.MediaStat{
		Size:        aws.ToInt64(out.ContentLength),
		ModifiedAt:  aws.ToTime(out.LastModified),
		ContentHash: strings.Trim(aws.ToString(out.ETag), `"`),
	}, nil
}

// Fetch downloads the object to a temporary file.
func (s *S3) Fetch(ctx context.Context, uri string) (string, func(), error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return "", nil, err
	}
	client, err := s.getClient(ctx)
	if err != nil {
		return "", nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", nil, s3Error(ctx, "get", uri, err)
	}
	defer out.Body.Close()

	f, err := os.CreateTemp("", "sercha-media-*"+path.Ext(key))
	if err != nil {
		return "", nil, fmt.Errorf("%w: create temp file: %w", domain.ErrResourceExhausted, err)
	}
	release := func() {
		if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Failed to remove %s: %v", f.Name(), err)
		}
	}

	n, err := io.Copy(f, ctxReader{ctx: ctx, r: out.Body})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		release()
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		return "", nil, fmt.Errorf("%w: download %s: %w", domain.ErrStorageUnavailable, uri, err)
	}
	logger.Debug("Downloaded %s (%d bytes) to %s", uri, n, f.Name())
	return f.Name(), release, nil
}

// s3Error maps missing objects to ErrNotFound; everything else is treated
// as a transient storage failure.
func s3Error(ctx context.Context, op, uri string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, uri)
	}
	return fmt.Errorf("%w: s3 %s %s: %w", domain.ErrStorageUnavailable, op, uri, err)
}

// Package s3 implements a payload Store over an S3-compatible object
// service. It works against AWS proper and against MinIO or localstack when
// an endpoint override with path-style addressing is configured.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"worldcore/internal/infra/payload"
)

// Config carries connection settings for the S3 payload store.
type Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

// Store implements payload.Store over one S3 bucket.
type Store struct {
	client *s3.Client
	bucket string
}

var _ payload.Store = (*Store)(nil)

// Open builds an S3 client from cfg and verifies the bucket is reachable.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 payload store requires a bucket")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	store := &Store{client: client, bucket: cfg.Bucket}
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("head bucket %s: %w", cfg.Bucket, err)
	}
	return store, nil
}

// OpenFromEnv reads WORLDCORE_ASSET_S3_* settings and opens the store.
func OpenFromEnv(ctx context.Context) (*Store, error) {
	cfg := Config{
		Region:          os.Getenv("WORLDCORE_ASSET_S3_REGION"),
		Bucket:          os.Getenv("WORLDCORE_ASSET_S3_BUCKET"),
		Endpoint:        os.Getenv("WORLDCORE_ASSET_S3_ENDPOINT"),
		AccessKeyID:     os.Getenv("WORLDCORE_ASSET_S3_ACCESS_KEY"),
		SecretAccessKey: os.Getenv("WORLDCORE_ASSET_S3_SECRET_KEY"),
		SessionToken:    os.Getenv("WORLDCORE_ASSET_S3_SESSION_TOKEN"),
		PathStyle:       os.Getenv("WORLDCORE_ASSET_S3_PATH_STYLE") == "true",
	}
	return Open(ctx, cfg)
}

// Driver returns the payload driver identifier.
func (s *Store) Driver() payload.Driver { return payload.DriverS3 }

// Put uploads the payload. Create-only semantics are emulated with a head
// check; a concurrent writer racing the same key can still win.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts payload.PutOptions) (payload.Info, error) {
	if key == "" {
		return payload.Info{}, fmt.Errorf("empty key")
	}
	if _, err := s.head(ctx, key); err == nil {
		return payload.Info{}, fmt.Errorf("payload %s already exists", key)
	} else if !errors.Is(err, payload.ErrNotFound) {
		return payload.Info{}, err
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = payload.CloneMetadata(opts.Metadata)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return payload.Info{}, fmt.Errorf("put object %s: %w", key, err)
	}
	return s.head(ctx, key)
}

// Get returns payload metadata and a reader over the object body.
func (s *Store) Get(ctx context.Context, key string) (payload.Info, io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return payload.Info{}, nil, payload.ErrNotFound
		}
		return payload.Info{}, nil, fmt.Errorf("get object %s: %w", key, err)
	}
	info := payload.Info{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         cleanETag(out.ETag),
		Metadata:     payload.CloneMetadata(out.Metadata),
		LastModified: aws.ToTime(out.LastModified),
	}
	return info, out.Body, nil
}

// Head returns payload metadata only.
func (s *Store) Head(ctx context.Context, key string) (payload.Info, error) {
	return s.head(ctx, key)
}

func (s *Store) head(ctx context.Context, key string) (payload.Info, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return payload.Info{}, payload.ErrNotFound
		}
		return payload.Info{}, fmt.Errorf("head object %s: %w", key, err)
	}
	return payload.Info{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         cleanETag(out.ETag),
		Metadata:     payload.CloneMetadata(out.Metadata),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// Delete removes the object. S3 deletes are idempotent, so existence is
// probed first to report whether anything was removed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if _, err := s.head(ctx, key); err != nil {
		if errors.Is(err, payload.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return false, fmt.Errorf("delete object %s: %w", key, err)
	}
	return true, nil
}

// List pages through the bucket under the prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]payload.Info, error) {
	var infos []payload.Info
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range out.Contents {
			infos = append(infos, payload.Info{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				ETag:         cleanETag(obj.ETag),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	return infos, nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	// Some S3-compatible services only surface the HTTP status text.
	return strings.Contains(err.Error(), "StatusCode: 404")
}

func cleanETag(etag *string) string {
	if etag == nil {
		return ""
	}
	return strings.Trim(*etag, "\"")
}

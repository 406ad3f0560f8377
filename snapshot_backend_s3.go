package chronos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3BackendConfig configures the S3 snapshot backend.
type S3BackendConfig struct {
	Bucket   string
	Region   string
	Endpoint string // for S3-compatible services (MinIO, etc.)

	// AccessKeyID and SecretAccessKey authenticate directly. Prefer IAM
	// roles or the AWS environment variables; never commit credentials.
	AccessKeyID     string
	SecretAccessKey string

	Prefix       string // key prefix for all objects
	UsePathStyle bool   // path-style addressing
	CacheSize    int    // snapshots kept in the read cache (default: 64)
	MaxRetries   int    // retry attempts per operation (default: 3)
}

// S3Backend stores snapshots in S3 or an S3-compatible object store.
// Reads go through a small LRU cache; every remote call runs behind a
// retryer and a circuit breaker.
type S3Backend struct {
	client  *s3.Client
	config  S3BackendConfig
	cache   *lruCache
	retryer *Retryer
	breaker *CircuitBreaker
}

// NewS3Backend creates an S3 snapshot backend.
func NewS3Backend(cfg S3BackendConfig) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 64
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	return &S3Backend{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		config: cfg,
		cache:  newLRUCache(cfg.CacheSize),
		retryer: NewRetryer(RetryConfig{
			MaxAttempts:    cfg.MaxRetries,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
			RetryIf:        IsRetryable,
		}),
		breaker: NewCircuitBreaker(5, 30*time.Second),
	}, nil
}

func (s *S3Backend) call(ctx context.Context, op func() error) error {
	return s.breaker.Execute(func() error {
		return s.retryer.Do(ctx, op)
	})
}

func (s *S3Backend) Read(ctx context.Context, key string) ([]byte, error) {
	fullKey := s.config.Prefix + key
	if data, ok := s.cache.get(fullKey); ok {
		return data, nil
	}

	var data []byte
	err := s.call(ctx, func() error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(fullKey),
		})
		if err != nil {
			return fmt.Errorf("S3 get object: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("S3 read body: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.put(fullKey, data)
	return data, nil
}

func (s *S3Backend) Write(ctx context.Context, key string, data []byte) error {
	fullKey := s.config.Prefix + key
	err := s.call(ctx, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(fullKey),
			Body:   bytes.NewReader(data),
		})
		if err != nil {
			return fmt.Errorf("S3 put object: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.put(fullKey, data)
	return nil
}

func (s *S3Backend) Delete(ctx context.Context, key string) error {
	fullKey := s.config.Prefix + key
	err := s.call(ctx, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(fullKey),
		})
		if err != nil {
			return fmt.Errorf("S3 delete object: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.delete(fullKey)
	return nil
}

func (s *S3Backend) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := s.config.Prefix + prefix

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(fullPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("S3 list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(*obj.Key, s.config.Prefix))
		}
	}
	return keys, nil
}

func (s *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	fullKey := s.config.Prefix + key
	if _, ok := s.cache.get(fullKey); ok {
		return true, nil
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return false, nil
		}
		if strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "404") {
			return false, nil
		}
		return false, fmt.Errorf("S3 head object: %w", err)
	}
	return true, nil
}

func (s *S3Backend) Close() error {
	return nil
}

// Package s3 reads offer snapshots stored as <prefix>/<zip>.json objects.
package s3

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	apperrors "esco-optimizer/pkg/errors"
	"esco-optimizer/pkg/offer"
	"esco-optimizer/source"
	"esco-optimizer/source/file"
)

// Config for the S3 offer source
type Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// DefaultConfig returns default settings
func DefaultConfig() Config {
	return Config{
		Prefix: "offers",
		Region: "us-east-1",
	}
}

// ObjectAPI is the subset of the S3 client used here.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
}

// Source is a source.Source backed by an S3 bucket.
type Source struct {
	cfg    Config
	client ObjectAPI
}

// New builds an S3 client from the default AWS credential chain, or from
// static keys when both are set. A custom endpoint enables path-style
// addressing for S3-compatible stores.
func New(ctx context.Context, cfg Config) (*Source, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(cfg, client), nil
}

// NewWithClient uses an existing client.
func NewWithClient(cfg Config, client ObjectAPI) *Source {
	return &Source{cfg: cfg, client: client}
}

func (s *Source) Name() string { return "s3" }

// Key returns the object key for a ZIP code.
func (s *Source) Key(zip string) string {
	return path.Join(strings.Trim(s.cfg.Prefix, "/"), zip+".json")
}

func (s *Source) Fetch(ctx context.Context, q source.Query) ([]offer.Offer, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	key := s.Key(q.ZipCode)
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, apperrors.NewSourceError(s.Name(), fmt.Errorf("get s3://%s/%s: %w", s.cfg.Bucket, key, err))
	}
	defer out.Body.Close() //nolint:errcheck

	offers, err := file.Decode(out.Body, file.FormatJSON)
	if err != nil {
		return nil, apperrors.NewSourceError(s.Name(), fmt.Errorf("decode s3://%s/%s: %w", s.cfg.Bucket, key, err))
	}
	return offers, nil
}

// Ping checks that the bucket is reachable.
func (s *Source) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(s.cfg.Bucket)})
	return err
}

package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"CCNLMonitor/internal/ports"
)

// S3Config selects the bucket and client options. Empty values fall back to the
// standard AWS configuration chain.
type S3Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Profile      string
	UsePathStyle bool
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive stores raw supporting documents in an S3 bucket.
type S3Archive struct {
	client putObjectAPI
	bucket string
	prefix string
}

var _ ports.DocumentArchive = (*S3Archive)(nil)

// NewS3Archive loads AWS configuration and builds the archive.
func NewS3Archive(ctx context.Context, cfg S3Config) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 archive: bucket is required")
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3Archive(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Archive(client putObjectAPI, bucket, prefix string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, prefix: prefix}
}

// Store uploads body under prefix/key.
func (a *S3Archive) Store(ctx context.Context, key, contentType string, body io.Reader) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.objectKey(key)),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	if _, err := a.client.PutObject(ctx, in); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("put object %s: %s: %w", key, apiErr.ErrorCode(), err)
		}
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (a *S3Archive) objectKey(key string) string {
	if a.prefix == "" {
		return key
	}
	return path.Join(a.prefix, key)
}

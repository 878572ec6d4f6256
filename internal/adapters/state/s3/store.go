// Package s3 persists the sync watermark as an object in an S3 bucket, for
// scheduled runners without durable local disk.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	domainErrors "github.com/jbctechsolutions/activitysync/internal/domain/errors"
	"github.com/jbctechsolutions/activitysync/internal/domain/syncstate"
)

// ObjectAPI is the subset of the S3 client used by the store.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures the S3 client built by NewFromConfig.
type Options struct {
	Bucket       string
	Key          string
	Region       string
	Endpoint     string // Custom endpoint for S3-compatible stores
	UsePathStyle bool
}

// Store reads and writes the state object.
type Store struct {
	client ObjectAPI
	bucket string
	key    string
}

// New creates a store over an existing client.
func New(client ObjectAPI, bucket, key string) *Store {
	return &Store{client: client, bucket: bucket, key: key}
}

// NewFromConfig loads AWS credentials from the default chain and creates a store.
func NewFromConfig(ctx context.Context, opts Options) (*Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return New(client, opts.Bucket, opts.Key), nil
}

// Location returns the s3:// URI of the state object.
func (s *Store) Location() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key)
}

// Load fetches and decodes the state object.
func (s *Store) Load(ctx context.Context) (syncstate.State, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return syncstate.State{}, domainErrors.ErrStateNotFound
		}
		return syncstate.State{}, fmt.Errorf("failed to get %s: %w", s.Location(), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return syncstate.State{}, fmt.Errorf("failed to read %s: %w", s.Location(), err)
	}

	return syncstate.Decode(data)
}

// Save uploads the encoded state. A single PutObject replaces the object atomically.
func (s *Store) Save(ctx context.Context, state syncstate.State) error {
	data, err := syncstate.Encode(state)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", s.Location(), err)
	}
	return nil
}

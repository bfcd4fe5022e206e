package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oklog/ulid/v2"
)

// S3Client is the subset of the S3 API used by S3Archiver.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures the S3 archive target.
type S3Config struct {
	Bucket         string `env:"AUDIT_ARCHIVE_S3_BUCKET"`
	Region         string `env:"AUDIT_ARCHIVE_S3_REGION" envDefault:"us-east-1"`
	AccessKeyID    string `env:"AUDIT_ARCHIVE_S3_ACCESS_KEY_ID"`
	SecretKey      string `env:"AUDIT_ARCHIVE_S3_SECRET_KEY"`
	Endpoint       string `env:"AUDIT_ARCHIVE_S3_ENDPOINT"` // optional, for S3-compatible services
	Prefix         string `env:"AUDIT_ARCHIVE_S3_PREFIX" envDefault:"session-audit"`
	ForcePathStyle bool   `env:"AUDIT_ARCHIVE_S3_FORCE_PATH_STYLE" envDefault:"false"` // MinIO and friends
}

// S3Archiver writes expired records as JSON Lines objects, one object per
// tenant and purge run, under <prefix>/<tenant>/<cutoff>-<ulid>.jsonl.
type S3Archiver struct {
	client S3Client
	bucket string
	prefix string
}

// S3Option configures an S3Archiver.
type S3Option func(*s3ArchiverOptions)

type s3ArchiverOptions struct {
	client S3Client
}

// WithS3Client uses a pre-configured client instead of building one from the
// default AWS configuration chain.
func WithS3Client(c S3Client) S3Option {
	return func(o *s3ArchiverOptions) {
		o.client = c
	}
}

// NewS3Archiver creates an archiver for cfg.Bucket.
func NewS3Archiver(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("audit: s3 bucket is required")
	}

	o := &s3ArchiverOptions{}
	for _, opt := range opts {
		opt(o)
	}

	client := o.client
	if client == nil {
		loadOpts := []func(*config.LoadOptions) error{
			config.WithRegion(cfg.Region),
		}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			loadOpts = append(loadOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
			))
		}

		awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("audit: load aws config: %w", err)
		}

		client = s3.NewFromConfig(awsCfg, func(so *s3.Options) {
			if cfg.Endpoint != "" {
				so.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			so.UsePathStyle = cfg.ForcePathStyle
		})
	}

	return &S3Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

type archiveLine struct {
	Kind  string        `json:"kind"`
	Event *SessionEvent `json:"event,omitempty"`
	Entry *Entry        `json:"entry,omitempty"`
}

// Archive uploads the records. Empty input uploads nothing.
func (a *S3Archiver) Archive(ctx context.Context, tenantID string, cutoff time.Time, events []SessionEvent, entries []Entry) error {
	if len(events)+len(entries) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range events {
		if err := enc.Encode(archiveLine{Kind: "event", Event: &events[i]}); err != nil {
			return err
		}
	}
	for i := range entries {
		if err := enc.Encode(archiveLine{Kind: "entry", Entry: &entries[i]}); err != nil {
			return err
		}
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.Key(tenantID, cutoff)),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("audit: put archive object: %w", err)
	}
	return nil
}

// Key builds a fresh object key for a tenant's archive.
func (a *S3Archiver) Key(tenantID string, cutoff time.Time) string {
	name := cutoff.UTC().Format("20060102T150405Z") + "-" + ulid.Make().String() + ".jsonl"
	return path.Join(a.prefix, tenantID, name)
}

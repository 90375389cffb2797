// Package export writes dead-lettered dispatch jobs as JSON Lines to a local
// file or an S3-compatible bucket.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kobliat/kobliat-stack/common/dlq"
)

const contentType = "application/x-ndjson"

// Destination receives one export.
type Destination interface {
	Write(ctx context.Context, data []byte) error
	String() string
}

// Encode renders entries as JSON Lines.
func Encode(entries []dlq.Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteTo(&buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func WriteTo(w io.Writer, entries []dlq.Entry) error {
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode entry %s: %w", e.ID, err)
		}
	}
	return nil
}

// DefaultKey names an export object by time, e.g.
// dispatch-dlq/2024-06-01T120000Z.jsonl.
func DefaultKey(now time.Time) string {
	return "dispatch-dlq/" + now.UTC().Format("2006-01-02T150405Z") + ".jsonl"
}

// FileDestination writes to a local path.
type FileDestination struct {
	Path string
}

func (d FileDestination) Write(_ context.Context, data []byte) error {
	if dir := filepath.Dir(d.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(d.Path, data, 0o644)
}

func (d FileDestination) String() string { return d.Path }

// PutObjectAPI is the part of *s3.Client the export needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Destination writes one object to an S3-compatible bucket.
type S3Destination struct {
	client PutObjectAPI
	bucket string
	key    string
}

// NewS3Destination loads AWS credentials from the default chain. A non-empty
// endpoint switches to path-style addressing for LocalStack and MinIO.
func NewS3Destination(ctx context.Context, bucket, key, region, endpoint string) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var opts []func(*s3.Options)
	if endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return NewS3DestinationWithClient(s3.NewFromConfig(cfg, opts...), bucket, key), nil
}

func NewS3DestinationWithClient(client PutObjectAPI, bucket, key string) *S3Destination {
	return &S3Destination{client: client, bucket: bucket, key: key}
}

func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(d.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

func (d *S3Destination) String() string { return "s3://" + d.bucket + "/" + d.key }

// Run lists up to limit entries from src and writes them to dst. It returns
// the number of entries exported.
func Run(ctx context.Context, src dlq.Store, dst Destination, limit int) (int, error) {
	entries, err := src.List(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list dead letters: %w", err)
	}
	data, err := Encode(entries)
	if err != nil {
		return 0, err
	}
	if err := dst.Write(ctx, data); err != nil {
		return 0, err
	}
	return len(entries), nil
}

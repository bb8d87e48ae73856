// Package blob stores uploaded documents behind a small S3-like interface.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"workforce/internal/platform/config"
)

type Driver string

const (
	DriverS3     Driver = "s3"
	DriverMemory Driver = "memory"
)

var (
	ErrNotFound    = errors.New("blob: not found")
	ErrExists      = errors.New("blob: already exists")
	ErrUnsupported = errors.New("blob: unsupported operation")
)

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"sizeBytes"`
	ContentType  string            `json:"contentType,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"lastModified"`
}

type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	Driver() Driver
}

// Open selects the store named by cfg.BlobDriver.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch Driver(cfg.BlobDriver) {
	case DriverS3:
		return NewS3(ctx, S3Config{
			Bucket:          cfg.BlobS3Bucket,
			Region:          cfg.BlobS3Region,
			Endpoint:        cfg.BlobS3Endpoint,
			PathStyle:       cfg.BlobS3PathStyle,
			AccessKeyID:     cfg.BlobS3AccessKeyID,
			SecretAccessKey: cfg.BlobS3SecretAccessKey,
		})
	case DriverMemory, "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.BlobDriver)
	}
}

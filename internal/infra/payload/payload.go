// Package payload defines the asset payload store contract. Asset patches
// carry descriptors plus an optional blob key; the registry resolves those
// keys against one of the backends under this directory (memory, fs, s3).
package payload

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete payload store backend.
type Driver string

const (
	// DriverMemory is the in-process implementation used by tests.
	DriverMemory Driver = "memory"
	// DriverFilesystem is the local filesystem implementation (dev default).
	DriverFilesystem Driver = "fs"
	// DriverS3 is the S3/MinIO-compatible implementation.
	DriverS3 Driver = "s3"
)

// ErrNotFound is returned when a key names no stored payload.
var ErrNotFound = errors.New("payload: not found")

// PutOptions carries optional Put parameters.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored payload.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is the thin object-store abstraction the asset registry consumes.
// Put is create-only; replacing a payload means a new key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// CloneMetadata copies a metadata map, or nil.
func CloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

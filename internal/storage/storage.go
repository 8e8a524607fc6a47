// Package storage contains key-addressed blob stores for uploaded payloads and their
// sidecars. Keys are slash separated, "{dir}/{name}".
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"contentapi/internal/config"
)

var (
	// ErrObjectNotFound is returned when a key does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrObjectExists is returned by Put when the key is already taken.
	ErrObjectExists = errors.New("object already exists")
)

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1.
// ContentType and Metadata are optional.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is a blob store. Implementations are safe for concurrent use.
type Storage interface {
	// Put stores the reader's content under key. It never replaces an existing object:
	// a taken key fails with ErrObjectExists. If reading r fails, nothing is left behind
	// and the reader's error is returned wrapped.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get retrieves an object's content as a streaming reader alongside its info.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Stat returns an object's info without its content.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// List returns the objects directly under prefix (non-recursive). Objects removed
	// while listing are omitted rather than reported as errors.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Delete removes an object by key, failing with ErrObjectNotFound if absent.
	Delete(ctx context.Context, key string) error
}

// New returns the backend selected by cfg.Backend. dirs are created up front by the disk
// backend; object stores have no directories.
func New(cfg config.StorageConfig, mc config.MinIOConfig, dirs ...string) (Storage, error) {
	switch cfg.Backend {
	case "", "disk":
		return NewDisk(cfg, dirs...)
	case "minio":
		return NewMinIO(mc)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

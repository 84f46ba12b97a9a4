// Package storage abstracts where pipeline artifacts live: the local
// filesystem for a standalone install, or an S3-compatible bucket when
// media is served from a CDN. Long-lived artifacts (thumbnails, preview
// loops) go through this interface; temporary sample frames stay on disk.
package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the interface for artifact storage operations
type ObjectStorage interface {
	// EnsureReady prepares the backend (creates the bucket or directory)
	EnsureReady(ctx context.Context) error

	// Upload stores an object
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download retrieves an object
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL for accessing an object
	GetURL(key string) string

	// Delete removes an object
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}

// Config holds backend-agnostic storage configuration.
type Config struct {
	Type      string // local, s3, r2
	LocalRoot string // root directory for the local backend
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Region    string
	PublicURL string // public URL prefix (CDN or file-serving route)
}

package storage

import (
	"fmt"
	"strings"
)

// NewStorage creates an ObjectStorage instance based on the configuration.
// Parameters:
//   - cfg: storage configuration including type, endpoint, and bucket.
//
// Returns:
//   - ObjectStorage: initialized storage backend.
//   - error: non-nil if the backend cannot be created.
func NewStorage(cfg *Config) (ObjectStorage, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "local":
		return NewLocalStorage(cfg.LocalRoot, cfg.PublicURL)
	case "s3", "r2", "s3compatible":
		return NewS3Storage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

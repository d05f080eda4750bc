package storage

import (
	"context"
	"fmt"
	"strings"

	appconfig "marketsim/config"
)

// Kind identifies a storage backend implementation.
type Kind string

const (
	KindLocal Kind = "local"
	KindS3    Kind = "s3"
)

// Backend persists simulation datasets under string keys. Keys use forward
// slashes regardless of the backing store.
type Backend interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// New constructs the backend selected by the configuration.
func New(cfg *appconfig.Config) (Backend, error) {
	return NewKind(cfg, Kind(cfg.Storage.Backend))
}

// NewKind constructs the named backend, regardless of which one the
// configuration selects as the default.
func NewKind(cfg *appconfig.Config, kind Kind) (Backend, error) {
	switch kind {
	case KindLocal:
		return newLocalBackend(cfg.Storage.Local.Path)
	case KindS3:
		return newS3Backend(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", kind)
	}
}

// contentTypeFor picks an object content type from the key extension.
func contentTypeFor(key string) string {
	switch {
	case strings.HasSuffix(key, ".csv"):
		return "text/csv"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

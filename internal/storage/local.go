package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"marketsim/logger"
)

type localBackend struct {
	base string
	log  *logger.Log
}

func newLocalBackend(base string) (*localBackend, error) {
	if base == "" {
		return nil, fmt.Errorf("local storage path is empty")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", base, err)
	}
	log := logger.GetLogger()
	log.WithComponent("local_storage").WithFields(logger.Fields{"path": base}).Info("local storage initialized")
	return &localBackend{base: base, log: log}, nil
}

func (b *localBackend) path(key string) string {
	return filepath.Join(b.base, filepath.FromSlash(key))
}

func (b *localBackend) Save(_ context.Context, key string, data []byte) error {
	path := b.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	// Write to a temporary file first so readers never observe a partial
	// dataset.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize %s: %w", key, err)
	}

	b.log.WithComponent("local_storage").WithFields(logger.Fields{
		"key":  key,
		"size": len(data),
	}).Debug("saved dataset")
	return nil
}

func (b *localBackend) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

func (b *localBackend) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(b.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (b *localBackend) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.Walk(b.base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(b.base, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keys with prefix %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *localBackend) Delete(_ context.Context, key string) error {
	if err := os.Remove(b.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Package storage persists uploaded and generated files behind a small
// driver interface.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
)

// ErrNotExist is returned when a stored file is missing.
var ErrNotExist = fs.ErrNotExist

// Store saves and retrieves files by key. Keys are flat file names; Save
// overwrites an existing key.
type Store interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// Config selects and configures a driver.
type Config struct {
	Driver         string
	Dir            string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// New builds the store named by cfg.Driver.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocal(cfg.Dir)
	case "minio":
		return NewMinio(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}

// cleanKey strips any directory component so keys cannot escape the store root.
func cleanKey(name string) (string, error) {
	key := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if key == "." || key == "/" || key == ".." || key == "" {
		return "", errors.New("storage: empty file name")
	}
	return key, nil
}

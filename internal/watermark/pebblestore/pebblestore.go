// Package pebblestore keeps watermarks in an embedded pebble database.
package pebblestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/crimson-sun/sluice/internal/watermark"
)

const keyPrefix = "watermark/"

func init() {
	watermark.Register("pebble", func(cfg watermark.Config) (watermark.Backend, error) {
		return Open(cfg.DSN)
	})
}

// Backend is a watermark.Backend on a pebble directory.
type Backend struct {
	db *pebble.DB
}

// Open opens (or creates) the pebble database at dir.
func Open(dir string) (*Backend, error) {
	if dir == "" {
		return nil, errors.New("pebblestore: empty directory")
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebblestore: open %s: %w", dir, err)
	}
	return &Backend{db: db}, nil
}

func (b *Backend) Load(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, closer, err := b.db.Get([]byte(keyPrefix + key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("pebblestore: get %q: %w", key, err)
	}
	value := string(v) // copy before the buffer is released
	closer.Close()
	return value, true, nil
}

func (b *Backend) Save(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.db.Set([]byte(keyPrefix+key), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("pebblestore: set %q: %w", key, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.db.Delete([]byte(keyPrefix+key), pebble.Sync); err != nil {
		return fmt.Errorf("pebblestore: delete %q: %w", key, err)
	}
	return nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}

package watermark

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrStoreUnavailable wraps every failure of the underlying backend.
	ErrStoreUnavailable = errors.New("watermark store unavailable")
	// ErrInvalidWatermark is returned when a stored or supplied value is not a timestamp.
	ErrInvalidWatermark = errors.New("invalid watermark value")
)

// Epoch is the watermark value of a key that has never been written.
var Epoch = time.Unix(0, 0).UTC()

// Layout is the persisted form: fixed-width ISO-8601 in UTC, so stored values
// compare lexicographically in the same order as the instants they encode.
const Layout = "2006-01-02T15:04:05.000000000Z"

// Format renders t in Layout.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Parse accepts any RFC 3339 timestamp and returns it in UTC.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidWatermark, s)
	}
	return t.UTC(), nil
}

// Backend persists string values under string keys.
type Backend interface {
	// Load returns the value for key. ok is false when the key is absent.
	Load(ctx context.Context, key string) (value string, ok bool, err error)
	Save(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Store is the cursor of one pipeline: a single named key in a Backend.
// Every call goes to the backend; nothing is cached between runs.
type Store struct {
	backend Backend
	key     string
}

// New creates a Store for key on the given backend.
func New(b Backend, key string) *Store {
	return &Store{backend: b, key: key}
}

// Key returns the watermark key this store reads and writes.
func (s *Store) Key() string { return s.key }

// Get returns the current watermark, or Epoch if the key is unset.
func (s *Store) Get(ctx context.Context) (time.Time, error) {
	v, ok, err := s.backend.Load(ctx, s.key)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: get %q: %w", ErrStoreUnavailable, s.key, err)
	}
	if !ok {
		return Epoch, nil
	}
	return Parse(v)
}

// Set overwrites the watermark unconditionally.
func (s *Store) Set(ctx context.Context, t time.Time) error {
	if t.IsZero() {
		return fmt.Errorf("%w: zero time", ErrInvalidWatermark)
	}
	if err := s.backend.Save(ctx, s.key, Format(t)); err != nil {
		return fmt.Errorf("%w: set %q: %w", ErrStoreUnavailable, s.key, err)
	}
	return nil
}

// Reset removes the key so the next Get returns Epoch. Operator action only.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.backend.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("%w: reset %q: %w", ErrStoreUnavailable, s.key, err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

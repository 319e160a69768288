package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/crimson-sun/sluice/internal/compactor"
	"github.com/crimson-sun/sluice/internal/model"
	"github.com/crimson-sun/sluice/internal/report"
)

const defaultBackups = 9

// Option configures a file Sink.
type Option func(*Sink)

// WithMaxSize sets the file size (bytes) at which rotation triggers.
// 0 (default) disables rotation.
func WithMaxSize(bytes int64) Option {
	return func(s *Sink) { s.maxSize = bytes }
}

// WithMaxBackups sets how many rotated files ({path}.1 .. {path}.N) are kept. Default: 9.
func WithMaxBackups(n int) Option {
	return func(s *Sink) { s.backups = n }
}

// Sink appends run reports to a file as NDJSON, one line per run, with
// optional size-based rotation. Each report is flushed as it is written.
type Sink struct {
	mu        sync.Mutex
	w         *bufio.Writer
	f         *os.File
	path      string
	verbosity compactor.Verbosity
	maxSize   int64 // 0 = no rotation
	backups   int
	written   int64
}

// New opens (or creates) path for appending.
func New(path string, verbosity compactor.Verbosity, opts ...Option) (*Sink, error) {
	s := &Sink{
		path:      path,
		verbosity: verbosity,
		backups:   defaultBackups,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.openFile(); err != nil {
		return nil, err
	}
	return s, nil
}

// Write appends the report as one line.
func (s *Sink) Write(_ context.Context, r model.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(report.Format(r, s.verbosity))
	if err != nil {
		return fmt.Errorf("file report: marshal: %w", err)
	}
	data = append(data, '\n')

	if s.maxSize > 0 && s.written > 0 && s.written+int64(len(data)) > s.maxSize {
		if err := s.rotate(); err != nil {
			return fmt.Errorf("file report: rotate: %w", err)
		}
	}

	n, err := s.w.Write(data)
	s.written += int64(n)
	if err != nil {
		return fmt.Errorf("file report: write: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("file report: flush: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return fmt.Errorf("file report: flush: %w", err)
	}
	return s.f.Close()
}

func (s *Sink) openFile() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("file report: open %s: %w", s.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("file report: stat %s: %w", s.path, err)
	}
	s.f = f
	s.w = bufio.NewWriter(f)
	s.written = info.Size()
	return nil
}

// rotate shifts {path}.N-1 → {path}.N ... current → {path}.1 and reopens.
func (s *Sink) rotate() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	if err := s.f.Close(); err != nil {
		return err
	}
	os.Remove(fmt.Sprintf("%s.%d", s.path, s.backups))
	for i := s.backups - 1; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", s.path, i), fmt.Sprintf("%s.%d", s.path, i+1)) // may not exist
	}
	if err := os.Rename(s.path, s.path+".1"); err != nil {
		return err
	}
	return s.openFile()
}

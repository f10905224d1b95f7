// Package fs archives batch reports as JSON files in a local directory.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/rezkam/opsflow/internal/application/batch"
)

// Store is a filesystem-based implementation of batch.ReportArchive.
type Store struct {
	baseDir string
	mu      sync.RWMutex
}

var _ batch.ReportArchive = (*Store)(nil)

// NewStore creates a new filesystem store.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) getFilePath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || !strings.HasSuffix(name, ".json") {
		return "", fmt.Errorf("invalid report name %q", name)
	}
	return filepath.Join(s.baseDir, name), nil
}

// Save writes the report to a temporary file and renames it into place so
// readers never observe a partial report.
func (s *Store) Save(ctx context.Context, report *batch.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.getFilePath(report.ObjectName())
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	tmp, err := os.CreateTemp(s.baseDir, ".report-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move report into place: %w", err)
	}

	return nil
}

// List returns report file names, newest first. Names start with the run's
// start time, so reverse lexical order is reverse chronological.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}
	slices.Sort(names)
	slices.Reverse(names)
	return names, nil
}

// Load reads a report by name.
func (s *Store) Load(ctx context.Context, name string) (*batch.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.getFilePath(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", batch.ErrReportNotFound, name)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var report batch.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	return &report, nil
}

// Package gcs archives batch reports as JSON objects in a Google Cloud
// Storage bucket.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/rezkam/opsflow/internal/application/batch"
)

// Store is a GCS-based implementation of batch.ReportArchive.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ batch.ReportArchive = (*Store)(nil)

// NewStore creates a new GCS store writing under prefix.
// It assumes the client is authenticated (e.g. via GOOGLE_APPLICATION_CREDENTIALS).
func NewStore(ctx context.Context, bucketName, prefix string) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return NewStoreWithClient(client, bucketName, prefix), nil
}

// NewStoreWithClient creates a store on an existing client.
func NewStoreWithClient(client *storage.Client, bucketName, prefix string) *Store {
	return &Store{
		client: client,
		bucket: bucketName,
		prefix: prefix,
	}
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) objectName(name string) string {
	return path.Join(s.prefix, name)
}

// Save writes the report as a JSON object. Reports are immutable; an existing
// object with the same name is left untouched.
func (s *Store) Save(ctx context.Context, report *batch.Report) error {
	obj := s.client.Bucket(s.bucket).Object(s.objectName(report.ObjectName())).
		If(storage.Conditions{DoesNotExist: true})

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object: %w", err)
	}
	return nil
}

// List returns report names under the prefix, newest first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	query := &storage.Query{Prefix: s.prefix}
	if err := query.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, fmt.Errorf("failed to set attribute selection: %w", err)
	}

	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		name := strings.TrimPrefix(strings.TrimPrefix(attrs.Name, s.prefix), "/")
		if strings.HasSuffix(name, ".json") && !strings.Contains(name, "/") {
			names = append(names, name)
		}
	}

	slices.Sort(names)
	slices.Reverse(names)
	return names, nil
}

// Load reads a report by name.
func (s *Store) Load(ctx context.Context, name string) (*batch.Report, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.objectName(name)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", batch.ErrReportNotFound, name)
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	var report batch.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	return &report, nil
}

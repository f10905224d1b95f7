package gcs

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"

	"github.com/rezkam/opsflow/internal/application/batch"
	"github.com/rezkam/opsflow/internal/storage/compliance"
)

func TestGCSStore_Compliance(t *testing.T) {
	bucket := os.Getenv("OPSFLOW_TEST_GCS_BUCKET")
	if bucket == "" {
		t.Skip("OPSFLOW_TEST_GCS_BUCKET not set, skipping GCS tests")
	}

	compliance.RunReportArchiveComplianceTest(t, func(t *testing.T) batch.ReportArchive {
		// Application Default Credentials must grant access to the bucket.
		// Every run writes under its own prefix so runs never see each other.
		prefix := "opsflow-test/" + uuid.NewString()
		store, err := NewStore(context.Background(), bucket, prefix)
		require.NoError(t, err)

		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			it := store.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
			for {
				attrs, err := it.Next()
				if errors.Is(err, iterator.Done) {
					break
				}
				if err != nil {
					t.Logf("Warning: failed to list objects during cleanup: %v", err)
					break
				}
				if err := store.client.Bucket(bucket).Object(attrs.Name).Delete(ctx); err != nil {
					t.Logf("Warning: failed to delete object %s: %v", attrs.Name, err)
				}
			}
			_ = store.Close()
		})

		return store
	})
}

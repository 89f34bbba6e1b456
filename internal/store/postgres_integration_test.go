//go:build integration

package store

import (
	"context"
	"os"
	"testing"
)

func setupTestDB(t *testing.T) *PostgresStore {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if _, err := s.pool.Exec(ctx, "TRUNCATE triage_runs"); err != nil {
		t.Fatalf("failed to truncate: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.pool.Exec(ctx, "TRUNCATE triage_runs")
		s.Close()
	})

	return s
}

func TestPostgresStore(t *testing.T) {
	runStoreSuite(t, setupTestDB(t))
}

func TestPostgresSchemaIsIdempotent(t *testing.T) {
	s := setupTestDB(t)
	if _, err := s.pool.Exec(context.Background(), postgresSchema); err != nil {
		t.Fatalf("re-applying schema failed: %v", err)
	}
}

package catalog

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qiniu/alert-policies/internal/alerting/database"
)

// Runs against a disposable PostgreSQL database, e.g.
// CATALOG_TEST_DSN="host=localhost port=5432 user=postgres password=postgres dbname=alert_policies_test sslmode=disable"
func newTestPgStore(t *testing.T) *PgStore {
	t.Helper()
	dsn := os.Getenv("CATALOG_TEST_DSN")
	if dsn == "" {
		t.Skip("CATALOG_TEST_DSN not set")
	}
	ctx := context.Background()
	db, err := database.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewPgStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return s
}

func TestPgStore_RecorderRoundTrip(t *testing.T) {
	s := newTestPgStore(t)
	ctx := context.Background()
	runID := uuid.NewString()
	p := sqlPolicy("inst-" + runID[:8])

	if _, err := s.GetPolicy(ctx, p.Name+"-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	rec := NewRecorder(s, runID)
	if err := rec.Provision(ctx, p); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	got, err := s.GetPolicy(ctx, p.Name)
	if err != nil {
		t.Fatalf("GetPolicy: %v", err)
	}
	if got.RunID != runID || got.Kind != "sql" || len(got.Fingerprint) != 64 {
		t.Fatalf("unexpected entry: %#v", got)
	}

	logs, err := s.ListChangeLogs(ctx, 10)
	if err != nil {
		t.Fatalf("ListChangeLogs: %v", err)
	}
	if len(logs) == 0 || logs[0].RunID != runID {
		t.Fatalf("latest change log not from this run: %#v", logs)
	}
	if time.Since(logs[0].ChangeTime) > time.Hour {
		t.Fatalf("unexpected change time %v", logs[0].ChangeTime)
	}
}

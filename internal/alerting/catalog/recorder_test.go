package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/qiniu/alert-policies/internal/alerting/policy"
)

type memStore struct {
	entries map[string]*Entry
	logs    []*ChangeLog
}

func newMemStore() *memStore {
	return &memStore{entries: map[string]*Entry{}}
}

func (m *memStore) GetPolicy(ctx context.Context, name string) (*Entry, error) {
	if e, ok := m.entries[name]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}
func (m *memStore) UpsertPolicy(ctx context.Context, e *Entry) error {
	m.entries[e.Name] = e
	return nil
}
func (m *memStore) ListPolicies(ctx context.Context) ([]*Entry, error) {
	var out []*Entry
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}
func (m *memStore) InsertChangeLog(ctx context.Context, l *ChangeLog) error {
	m.logs = append(m.logs, l)
	return nil
}
func (m *memStore) ListChangeLogs(ctx context.Context, limit int) ([]*ChangeLog, error) {
	var out []*ChangeLog
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.logs[i])
	}
	return out, nil
}
func (m *memStore) WithTx(ctx context.Context, fn func(Store) error) error { return fn(m) }

type brokenStore struct{ *memStore }

func (b brokenStore) GetPolicy(ctx context.Context, name string) (*Entry, error) {
	return nil, errors.New("connection reset")
}
func (b brokenStore) WithTx(ctx context.Context, fn func(Store) error) error { return fn(b) }

func sqlPolicy(instance string) *policy.AlertPolicy {
	return policy.SQLSaturationHigh(policy.SQLParams{
		Common:     policy.Common{Prefix: "prod", SystemName: "sys"},
		ProjectID:  "proj",
		InstanceID: instance,
	})
}

func TestRecorder_CreateUnchangedUpdate(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	rec := NewRecorder(store, "run-1")
	rec.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }

	if err := rec.Provision(ctx, sqlPolicy("inst")); err != nil {
		t.Fatalf("first provision: %v", err)
	}
	entry := store.entries["prod:infra:sql:saturation-high:warn"]
	if entry == nil || entry.Kind != "sql" || entry.RunID != "run-1" {
		t.Fatalf("unexpected entry: %#v", entry)
	}
	var doc map[string]any
	if err := json.Unmarshal(entry.Spec, &doc); err != nil {
		t.Fatalf("spec is not json: %v", err)
	}
	if doc["displayName"] != "prod:infra:sql:saturation-high:warn" {
		t.Fatalf("unexpected spec: %v", doc)
	}

	// identical description on a later run
	rec2 := NewRecorder(store, "run-2")
	if err := rec2.Provision(ctx, sqlPolicy("inst")); err != nil {
		t.Fatalf("second provision: %v", err)
	}
	// changed instance id changes the filters
	if err := rec2.Provision(ctx, sqlPolicy("inst-b")); err != nil {
		t.Fatalf("third provision: %v", err)
	}

	if len(store.logs) != 3 {
		t.Fatalf("expected 3 change logs, got %d", len(store.logs))
	}
	want := []string{ChangeCreate, ChangeUnchanged, ChangeUpdate}
	for i, w := range want {
		if store.logs[i].ChangeType != w {
			t.Errorf("log %d change = %s, want %s", i, store.logs[i].ChangeType, w)
		}
	}
	if store.logs[0].OldFingerprint != "" || store.logs[2].OldFingerprint != store.logs[1].NewFingerprint {
		t.Fatalf("fingerprints not chained: %#v", store.logs)
	}
	if store.logs[0].ID == store.logs[1].ID {
		t.Fatalf("change log ids must be unique")
	}
}

func TestRecorder_StoreError(t *testing.T) {
	rec := NewRecorder(brokenStore{newMemStore()}, "run-1")
	if err := rec.Provision(context.Background(), sqlPolicy("inst")); err == nil {
		t.Fatalf("expected store error")
	}
}

func TestRecorder_RejectsInvalid(t *testing.T) {
	rec := NewRecorder(newMemStore(), "run-1")
	if err := rec.Provision(context.Background(), &policy.AlertPolicy{}); !errors.Is(err, policy.ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
}

func TestFingerprint(t *testing.T) {
	if Fingerprint([]byte("a")) == Fingerprint([]byte("b")) {
		t.Fatalf("different specs must not collide")
	}
	if len(Fingerprint(nil)) != 64 {
		t.Fatalf("unexpected fingerprint length")
	}
}

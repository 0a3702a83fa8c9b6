package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the catalog has no entry for a policy name.
var ErrNotFound = errors.New("policy not found in catalog")

// Change types recorded in the change log.
const (
	ChangeCreate    = "Create"
	ChangeUpdate    = "Update"
	ChangeUnchanged = "Unchanged"
)

// Entry is the last provisioned state of one alert policy.
type Entry struct {
	Name        string    // policy name, primary key
	Kind        string    // gke | sql | run
	Spec        []byte    // JSON of the REST document
	Fingerprint string    // sha256 of Spec
	RunID       string    // run that last wrote the entry
	UpdatedAt   time.Time // when the entry was last written
}

// ChangeLog captures each time a run provisioned a policy, for auditing.
type ChangeLog struct {
	ID             string    `json:"id"`
	PolicyName     string    `json:"policyName"`
	ChangeType     string    `json:"changeType"` // Create | Update | Unchanged
	RunID          string    `json:"runId"`
	OldFingerprint string    `json:"oldFingerprint,omitempty"` // empty on Create
	NewFingerprint string    `json:"newFingerprint"`
	ChangeTime     time.Time `json:"changeTime"`
}

// Store abstracts catalog persistence.
type Store interface {
	GetPolicy(ctx context.Context, name string) (*Entry, error)
	UpsertPolicy(ctx context.Context, e *Entry) error
	ListPolicies(ctx context.Context) ([]*Entry, error)
	InsertChangeLog(ctx context.Context, l *ChangeLog) error
	// ListChangeLogs returns the newest change logs first, at most limit rows.
	ListChangeLogs(ctx context.Context, limit int) ([]*ChangeLog, error)

	// WithTx calls fn with a Store whose operations commit or roll back together.
	WithTx(ctx context.Context, fn func(Store) error) error
}

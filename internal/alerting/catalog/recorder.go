package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qiniu/alert-policies/internal/alerting/policy"
	"github.com/qiniu/alert-policies/internal/alerting/provision"
	"github.com/rs/zerolog/log"
)

// Recorder is a provisioner that writes every description it sees to the catalog
// together with a change log row. Put it next to the real provisioner to keep an
// audit trail of what each run declared.
type Recorder struct {
	store Store
	runID string
	now   func() time.Time
}

func NewRecorder(store Store, runID string) *Recorder {
	return &Recorder{store: store, runID: runID, now: time.Now}
}

func (r *Recorder) Provision(ctx context.Context, p *policy.AlertPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	spec, err := json.Marshal(provision.ToDocument(p))
	if err != nil {
		return fmt.Errorf("marshal policy %s: %w", p.Name, err)
	}
	fp := Fingerprint(spec)
	now := r.now().UTC()

	return r.store.WithTx(ctx, func(tx Store) error {
		old, err := tx.GetPolicy(ctx, p.Name)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		change := classifyChange(old, fp)

		entry := &Entry{
			Name:        p.Name,
			Kind:        string(p.Kind),
			Spec:        spec,
			Fingerprint: fp,
			RunID:       r.runID,
			UpdatedAt:   now,
		}
		if err := tx.UpsertPolicy(ctx, entry); err != nil {
			return err
		}

		cl := &ChangeLog{
			ID:             uuid.NewString(),
			PolicyName:     p.Name,
			ChangeType:     change,
			RunID:          r.runID,
			NewFingerprint: fp,
			ChangeTime:     now,
		}
		if old != nil {
			cl.OldFingerprint = old.Fingerprint
		}
		if err := tx.InsertChangeLog(ctx, cl); err != nil {
			return err
		}

		log.Debug().
			Str("policy", p.Name).
			Str("change", change).
			Str("run_id", r.runID).
			Msg("policy recorded in catalog")
		return nil
	})
}

// Fingerprint returns the hex sha256 of spec.
func Fingerprint(spec []byte) string {
	sum := sha256.Sum256(spec)
	return hex.EncodeToString(sum[:])
}

func classifyChange(old *Entry, newFingerprint string) string {
	if old == nil {
		return ChangeCreate
	}
	if old.Fingerprint == newFingerprint {
		return ChangeUnchanged
	}
	return ChangeUpdate
}

package provision

import (
	"context"
	"fmt"
	"sync"

	"github.com/qiniu/alert-policies/internal/alerting/policy"
)

// Provisioner hands an alert policy description to whatever reconciles it
// against live state. Implementations must not mutate the description.
type Provisioner interface {
	Provision(ctx context.Context, p *policy.AlertPolicy) error
}

// Recorder is an in-memory Provisioner. It collects the names a run exports.
type Recorder struct {
	mu       sync.RWMutex
	policies []*policy.AlertPolicy
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Provision(ctx context.Context, p *policy.AlertPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies = append(r.policies, p)
	return nil
}

// Names returns the recorded policy names in provisioning order.
func (r *Recorder) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.policies))
	for _, p := range r.policies {
		names = append(names, p.Name)
	}
	return names
}

// Multi provisions each description with every provisioner in order and stops at
// the first error.
type Multi []Provisioner

func (m Multi) Provision(ctx context.Context, p *policy.AlertPolicy) error {
	for i, prov := range m {
		if prov == nil {
			continue
		}
		if err := prov.Provision(ctx, p); err != nil {
			return fmt.Errorf("provisioner %d: %w", i, err)
		}
	}
	return nil
}

package stack

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qiniu/alert-policies/internal/alerting/policy"
	"github.com/qiniu/alert-policies/internal/alerting/preflight"
	"github.com/qiniu/alert-policies/internal/alerting/provision"
	"github.com/qiniu/alert-policies/internal/config"
	"github.com/qiniu/alert-policies/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Checker validates a description before it is provisioned.
type Checker interface {
	Check(ctx context.Context, p *policy.AlertPolicy) ([]preflight.Result, error)
}

// Result summarizes one Deploy call.
type Result struct {
	RunID   string   `json:"runId"`
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
}

// Deployer builds the descriptions for a stack and hands them to a provisioner.
type Deployer struct {
	prov    provision.Provisioner
	checker Checker
	strict  bool
	metrics *metrics.Metrics
	runID   string
	now     func() time.Time
}

type Option func(*Deployer)

// WithPreflight checks PromQL conditions before provisioning. In strict mode a
// failed check aborts the deploy; otherwise it is logged and the run continues.
func WithPreflight(c Checker, strict bool) Option {
	return func(d *Deployer) {
		d.checker = c
		d.strict = strict
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Deployer) { d.metrics = m }
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(d *Deployer) { d.runID = id }
}

func NewDeployer(prov provision.Provisioner, opts ...Option) *Deployer {
	d := &Deployer{prov: prov, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	if d.runID == "" {
		d.runID = uuid.NewString()
	}
	return d
}

func (d *Deployer) Deploy(ctx context.Context, s *config.Stack) (*Result, error) {
	built, err := build(s)
	if err != nil {
		return nil, err
	}
	res := &Result{RunID: d.runID, Skipped: built.Skipped}
	for _, r := range built.Skipped {
		d.metrics.ObserveSkipped(r)
	}

	for _, p := range built.Policies {
		if err := d.preflight(ctx, p); err != nil {
			d.metrics.ObserveFailed(string(p.Kind))
			return res, err
		}
		if err := d.prov.Provision(ctx, p); err != nil {
			d.metrics.ObserveFailed(string(p.Kind))
			return res, fmt.Errorf("provision %s: %w", p.Name, err)
		}
		d.metrics.ObserveProvisioned(string(p.Kind))
		res.Created = append(res.Created, p.Name)
		log.Info().
			Str("run_id", d.runID).
			Str("policy", p.Name).
			Str("kind", string(p.Kind)).
			Bool("enabled", p.Enabled).
			Msg("alert policy declared")
	}

	d.metrics.MarkRun(d.now())
	log.Info().
		Str("run_id", d.runID).
		Int("created", len(res.Created)).
		Strs("skipped", res.Skipped).
		Msg("alert policies deployed")
	return res, nil
}

func (d *Deployer) preflight(ctx context.Context, p *policy.AlertPolicy) error {
	if d.checker == nil {
		return nil
	}
	if _, err := d.checker.Check(ctx, p); err != nil {
		if d.strict {
			return fmt.Errorf("preflight: %w", err)
		}
		log.Warn().Err(err).Str("policy", p.Name).Msg("preflight check failed, continuing")
	}
	return nil
}

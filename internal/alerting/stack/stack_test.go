package stack

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/qiniu/alert-policies/internal/alerting/policy"
	"github.com/qiniu/alert-policies/internal/alerting/preflight"
	"github.com/qiniu/alert-policies/internal/alerting/provision"
	"github.com/qiniu/alert-policies/internal/config"
	"github.com/qiniu/alert-policies/internal/metrics"
)

func fullStack() *config.Stack {
	return &config.Stack{
		Environment: "prod",
		SystemName:  "sys",
		Project:     "proj",
		Resource: config.Resource{
			"gke": map[string]any{"pool_name": "pool-a", "namespace": "ns1"},
			"sql": map[string]any{"instance_id": "inst"},
			"run": map[string]any{},
		},
	}
}

func names(ps []*policy.AlertPolicy) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

func TestBuild_AllResources(t *testing.T) {
	ps, err := Build(fullStack())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []string{
		"prod:infra:gke:saturation-high:warn",
		"prod:infra:gke:storage-usage-high:warn",
		"prod:infra:sql:saturation-high:warn",
		"prod:infra:run:saturation-high:warn",
	}
	if diff := cmp.Diff(want, names(ps)); diff != "" {
		t.Fatalf("policy order mismatch (-want +got):\n%s", diff)
	}
	for _, p := range ps {
		if err := p.Validate(); err != nil {
			t.Errorf("%s: %v", p.Name, err)
		}
	}
}

func TestBuild_PresenceRules(t *testing.T) {
	cases := []struct {
		name     string
		resource config.Resource
		project  string
		want     []string
	}{
		{
			name:     "empty resource",
			resource: config.Resource{},
			want:     []string{},
		},
		{
			name:     "run key with null value",
			resource: config.Resource{"run": nil},
			want:     []string{"prod:infra:run:saturation-high:warn"},
		},
		{
			name:     "gke missing namespace",
			resource: config.Resource{"gke": map[string]any{"pool_name": "pool-a"}},
			want:     []string{},
		},
		{
			name:     "sql without instance id",
			resource: config.Resource{"sql": map[string]any{"tier": "db-custom"}},
			want:     []string{},
		},
		{
			name:     "sql only",
			resource: config.Resource{"sql": map[string]any{"instance_id": "inst"}},
			project:  "proj",
			want:     []string{"prod:infra:sql:saturation-high:warn"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &config.Stack{Environment: "prod", SystemName: "sys", Project: tc.project, Resource: tc.resource}
			ps, err := Build(s)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if diff := cmp.Diff(tc.want, names(ps)); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuild_SQLRequiresProject(t *testing.T) {
	s := fullStack()
	s.Project = ""
	if _, err := Build(s); !errors.Is(err, ErrMissingProject) {
		t.Fatalf("expected ErrMissingProject, got %v", err)
	}

	// without a sql section the project is not needed
	delete(s.Resource, "sql")
	if _, err := Build(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuild_InvalidStack(t *testing.T) {
	if _, err := Build(nil); !errors.Is(err, config.ErrMissingConfig) {
		t.Fatalf("expected ErrMissingConfig for nil stack, got %v", err)
	}
	if _, err := Build(&config.Stack{SystemName: "sys", Resource: config.Resource{}}); !errors.Is(err, config.ErrMissingConfig) {
		t.Fatalf("expected ErrMissingConfig, got %v", err)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	a, _ := Build(fullStack())
	b, _ := Build(fullStack())
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("Build is not deterministic:\n%s", diff)
	}
}

type fakeChecker struct {
	err   error
	calls int
}

func (f *fakeChecker) Check(ctx context.Context, p *policy.AlertPolicy) ([]preflight.Result, error) {
	f.calls++
	return nil, f.err
}

type failingProvisioner struct{ failOn string }

func (f failingProvisioner) Provision(ctx context.Context, p *policy.AlertPolicy) error {
	if p.Name == f.failOn {
		return errors.New("quota exceeded")
	}
	return nil
}

func TestDeployer_Deploy(t *testing.T) {
	rec := provision.NewRecorder()
	m := metrics.New()
	s := fullStack()
	delete(s.Resource, "run")

	res, err := NewDeployer(rec, WithMetrics(m), WithRunID("run-1")).Deploy(context.Background(), s)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if res.RunID != "run-1" {
		t.Fatalf("unexpected run id %q", res.RunID)
	}
	if diff := cmp.Diff(res.Created, rec.Names()); diff != "" {
		t.Fatalf("created/recorded mismatch:\n%s", diff)
	}
	if diff := cmp.Diff([]string{ResourceRun}, res.Skipped); diff != "" {
		t.Fatalf("skipped mismatch:\n%s", diff)
	}

	expected := `
# HELP alert_policies_provisioned_total Alert policy descriptions handed to a provisioner
# TYPE alert_policies_provisioned_total counter
alert_policies_provisioned_total{kind="gke"} 2
alert_policies_provisioned_total{kind="sql"} 1
# HELP alert_policies_skipped_total Resource kinds skipped because the stack does not declare them
# TYPE alert_policies_skipped_total counter
alert_policies_skipped_total{resource="run"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"alert_policies_provisioned_total", "alert_policies_skipped_total"); err != nil {
		t.Fatalf("metrics mismatch: %v", err)
	}
}

func TestDeployer_GeneratesRunID(t *testing.T) {
	a, err := NewDeployer(provision.NewRecorder()).Deploy(context.Background(), fullStack())
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	b, err := NewDeployer(provision.NewRecorder()).Deploy(context.Background(), fullStack())
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if a.RunID == "" || a.RunID == b.RunID {
		t.Fatalf("expected distinct generated run ids, got %q and %q", a.RunID, b.RunID)
	}
}

func TestDeployer_ProvisionError(t *testing.T) {
	m := metrics.New()
	d := NewDeployer(failingProvisioner{failOn: "prod:infra:sql:saturation-high:warn"}, WithMetrics(m))
	res, err := d.Deploy(context.Background(), fullStack())
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected provision error, got %v", err)
	}
	if len(res.Created) != 2 {
		t.Fatalf("expected the gke policies before the failure, got %v", res.Created)
	}
	expected := `
# HELP alert_policies_failed_total Alert policy descriptions a provisioner rejected
# TYPE alert_policies_failed_total counter
alert_policies_failed_total{kind="sql"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "alert_policies_failed_total"); err != nil {
		t.Fatalf("metrics mismatch: %v", err)
	}
}

func TestDeployer_Preflight(t *testing.T) {
	t.Run("strict aborts", func(t *testing.T) {
		rec := provision.NewRecorder()
		chk := &fakeChecker{err: errors.New("parse error")}
		_, err := NewDeployer(rec, WithPreflight(chk, true)).Deploy(context.Background(), fullStack())
		if err == nil {
			t.Fatalf("expected preflight error")
		}
		if len(rec.Names()) != 0 {
			t.Fatalf("nothing should be provisioned, got %v", rec.Names())
		}
	})
	t.Run("lenient continues", func(t *testing.T) {
		rec := provision.NewRecorder()
		chk := &fakeChecker{err: errors.New("parse error")}
		res, err := NewDeployer(rec, WithPreflight(chk, false)).Deploy(context.Background(), fullStack())
		if err != nil {
			t.Fatalf("Deploy: %v", err)
		}
		if len(res.Created) != 4 || chk.calls != 4 {
			t.Fatalf("expected 4 policies and 4 checks, got %d and %d", len(res.Created), chk.calls)
		}
	})
}

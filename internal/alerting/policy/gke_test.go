package policy

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func gkeParams() GKEParams {
	return GKEParams{
		Common:        Common{Prefix: "prod", SystemName: "sys"},
		PoolName:      "pool-a",
		NamespaceName: "ns1",
	}
}

func TestGKE_ReturnsSaturationThenStorage(t *testing.T) {
	policies := GKE(gkeParams())
	if len(policies) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(policies))
	}
	if policies[0].Name != "prod:infra:gke:saturation-high:warn" {
		t.Fatalf("unexpected first policy: %s", policies[0].Name)
	}
	if policies[1].Name != "prod:infra:gke:storage-usage-high:warn" {
		t.Fatalf("unexpected second policy: %s", policies[1].Name)
	}
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			t.Fatalf("validate %s: %v", p.Name, err)
		}
	}
}

func TestGKESaturationHigh(t *testing.T) {
	p := GKESaturationHigh(gkeParams())

	if p.DisplayName != p.Name || p.Combiner != CombinerOR || !p.Enabled || p.Severity != SeverityWarning {
		t.Fatalf("unexpected policy header: %#v", p)
	}
	if len(p.Conditions) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(p.Conditions))
	}

	cpu := p.Conditions[0].Threshold
	if !strings.Contains(cpu.Filter, `metadata.user_labels.goog-k8s-node-pool-name = "pool-a"`) {
		t.Fatalf("cpu filter missing pool label: %s", cpu.Filter)
	}
	if cpu.ThresholdValue != 0.8 || cpu.Duration != 0 || cpu.Trigger == nil || cpu.Trigger.Count != 1 {
		t.Fatalf("unexpected cpu condition: %#v", cpu)
	}
	if cpu.Aggregations[0].AlignmentPeriod != 300*time.Second || cpu.Aggregations[0].PerSeriesAligner != AlignMean {
		t.Fatalf("unexpected cpu aggregation: %#v", cpu.Aggregations)
	}

	mem := p.Conditions[1].Threshold
	if !strings.Contains(mem.Filter, `resource.labels.namespace_name = "ns1"`) {
		t.Fatalf("memory filter missing namespace: %s", mem.Filter)
	}
	wantAgg := []Aggregation{{
		AlignmentPeriod:    600 * time.Second,
		PerSeriesAligner:   AlignMean,
		CrossSeriesReducer: ReduceMax,
		GroupByFields:      []string{"metadata.system_labels.top_level_controller_name"},
	}}
	if diff := cmp.Diff(wantAgg, mem.Aggregations); diff != "" {
		t.Fatalf("memory aggregation mismatch (-want +got):\n%s", diff)
	}
	if mem.ThresholdValue != 0.85 {
		t.Fatalf("memory threshold = %v", mem.ThresholdValue)
	}

	if p.Documentation.Subject != "[sys] prod:infra:gke:saturation-high:warn" {
		t.Fatalf("unexpected subject: %s", p.Documentation.Subject)
	}
	if p.Documentation.MimeType != MimeMarkdown {
		t.Fatalf("unexpected mime type: %s", p.Documentation.MimeType)
	}
	if p.UserLabels["support-level"] != "testing" {
		t.Fatalf("unexpected labels: %#v", p.UserLabels)
	}
}

func TestGKESaturationHigh_CustomCPUThreshold(t *testing.T) {
	params := gkeParams()
	params.CPUThreshold = 0.65
	p := GKESaturationHigh(params)
	if got := p.Conditions[0].Threshold.ThresholdValue; got != 0.65 {
		t.Fatalf("cpu threshold = %v, want 0.65", got)
	}
	if !strings.Contains(p.Documentation.Content, "CPU utilization exceeds 65%") {
		t.Fatalf("documentation does not mention threshold:\n%s", p.Documentation.Content)
	}
}

func TestGKEStorageUsageHigh(t *testing.T) {
	p := GKEStorageUsageHigh(gkeParams())
	if len(p.Conditions) != 1 {
		t.Fatalf("expected 1 condition, got %d", len(p.Conditions))
	}
	q := p.Conditions[0].PrometheusQuery
	if q == nil || p.Conditions[0].Threshold != nil {
		t.Fatalf("expected a PromQL condition: %#v", p.Conditions[0])
	}
	for _, want := range []string{
		`"__name__"="kubernetes_io:node_ephemeral_storage_used_bytes"`,
		`"__name__"="kubernetes_io:node_ephemeral_storage_total_bytes"`,
		`"metadata_user_cloud.google.com/gke-nodepool"="pool-a"`,
		`[5m])`,
		`) >= 0.85`,
	} {
		if !strings.Contains(q.Query, want) {
			t.Errorf("query missing %s:\n%s", want, q.Query)
		}
	}
	if q.Duration != 0 || q.EvaluationInterval != 30*time.Second {
		t.Fatalf("unexpected timing: %#v", q)
	}
	if p.Documentation.Subject != "[sys] prod:infra:gke:storage-usage-high:warn" {
		t.Fatalf("unexpected subject: %s", p.Documentation.Subject)
	}
}

func TestGKE_IsDeterministic(t *testing.T) {
	a := GKE(gkeParams())
	b := GKE(gkeParams())
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("repeated builds differ (-first +second):\n%s", diff)
	}
}

func TestGKE_LinksAreOptional(t *testing.T) {
	p := GKESaturationHigh(gkeParams())
	if strings.Contains(p.Documentation.Content, "#### Link") {
		t.Fatalf("no links configured but section rendered:\n%s", p.Documentation.Content)
	}

	params := gkeParams()
	params.Links = Links{Playbook: "https://runbooks.example.com/gke"}
	p = GKESaturationHigh(params)
	if !strings.Contains(p.Documentation.Content, "- [Playbook](https://runbooks.example.com/gke)") {
		t.Fatalf("playbook link missing:\n%s", p.Documentation.Content)
	}
	if strings.Contains(p.Documentation.Content, "Deployment Repo") {
		t.Fatalf("empty deployment repo link rendered:\n%s", p.Documentation.Content)
	}
}

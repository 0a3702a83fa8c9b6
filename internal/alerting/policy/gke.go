package policy

import (
	"fmt"
	"strconv"
	"time"

	promModel "github.com/prometheus/common/model"
)

// Defaults for the GKE policies.
const (
	DefaultGKECPUThreshold    = 0.8
	GKEMemoryThreshold        = 0.85
	GKEStorageThreshold       = 0.85
	gkeStorageWindow          = promModel.Duration(5 * time.Minute)
	gkeStorageEvalInterval    = 30 * time.Second
	gkeTopLevelControllerName = "metadata.system_labels.top_level_controller_name"
)

// GKEParams describes one node pool and the namespace whose containers run on it.
type GKEParams struct {
	Common
	PoolName      string
	NamespaceName string
	CPUThreshold  float64 // 0 means DefaultGKECPUThreshold
}

func (p GKEParams) cpuThreshold() float64 {
	if p.CPUThreshold == 0 {
		return DefaultGKECPUThreshold
	}
	return p.CPUThreshold
}

// GKE returns both GKE policies: saturation first, then storage usage.
func GKE(p GKEParams) []*AlertPolicy {
	return []*AlertPolicy{
		GKESaturationHigh(p),
		GKEStorageUsageHigh(p),
	}
}

// GKESaturationHigh fires when node CPU or container memory on the pool runs hot.
func GKESaturationHigh(p GKEParams) *AlertPolicy {
	name := AlertName(p.Prefix, KindGKE, AlertSaturationHigh)
	cpu := p.cpuThreshold()

	cpuCondition := Condition{
		DisplayName: "Node Pool CPU utilization",
		Threshold: &ThresholdCondition{
			Filter: filter(
				eq("resource.type", "gce_instance"),
				eq("metric.type", "compute.googleapis.com/instance/cpu/utilization"),
				eq("metadata.user_labels.goog-k8s-node-pool-name", p.PoolName),
			),
			Aggregations: []Aggregation{{
				AlignmentPeriod:  300 * time.Second,
				PerSeriesAligner: AlignMean,
			}},
			Comparison:     ComparisonGT,
			ThresholdValue: cpu,
			Duration:       0,
			Trigger:        &Trigger{Count: 1},
		},
	}

	memoryCondition := Condition{
		DisplayName: "Container Memory utilization",
		Threshold: &ThresholdCondition{
			Filter: filter(
				eq("resource.type", "k8s_container"),
				eq("resource.labels.namespace_name", p.NamespaceName),
				eq("metric.type", "kubernetes.io/container/memory/limit_utilization"),
			),
			Aggregations: []Aggregation{{
				AlignmentPeriod:    600 * time.Second,
				PerSeriesAligner:   AlignMean,
				CrossSeriesReducer: ReduceMax,
				GroupByFields:      []string{gkeTopLevelControllerName},
			}},
			Comparison:     ComparisonGT,
			ThresholdValue: GKEMemoryThreshold,
			Duration:       0,
			Trigger:        &Trigger{Count: 1},
		},
	}

	summary := fmt.Sprintf("This alert triggers when following conditions is met for the **GKE** node pool `%s`\n"+
		"- **Node CPU**: CPU utilization exceeds %s\n"+
		"- **Container Memory**: container memory utilization in namespace `%s` exceeds %s of its limit",
		p.PoolName, percent(cpu), p.NamespaceName, percent(GKEMemoryThreshold))
	impact := "The GKE cluster is overloaded. This could slow down or even shut down the core services " +
		"both frontoffice and backoffice. We need to find and fix the problem right away."

	return &AlertPolicy{
		Name:        name,
		Kind:        KindGKE,
		DisplayName: name,
		Combiner:    CombinerOR,
		Conditions:  []Condition{cpuCondition, memoryCondition},
		Documentation: p.documentation(name, docBody(summary, impact,
			link{"Playbook", p.Links.Playbook},
			link{"Deployment Repo", p.Links.DeploymentRepo},
		)),
		Enabled:    true,
		Severity:   SeverityWarning,
		UserLabels: p.labels(),
	}
}

// GKEStorageUsageHigh fires when the ephemeral storage used/total ratio of the pool's
// nodes, averaged over five minutes, reaches the threshold.
func GKEStorageUsageHigh(p GKEParams) *AlertPolicy {
	name := AlertName(p.Prefix, KindGKE, AlertStorageUsageHigh)

	summary := fmt.Sprintf("This alert warns **ephemeral storage on GKE node pool `%s` is over %s**",
		p.PoolName, percent(GKEStorageThreshold))
	impact := "The system is getting close to a serious problem. If the disk fills up completely, it can cause " +
		"pods to crash or shut down, leading to slow performance or a complete outage for the entire application. " +
		"Should investigate to prevent."

	return &AlertPolicy{
		Name:        name,
		Kind:        KindGKE,
		DisplayName: name,
		Combiner:    CombinerOR,
		Conditions: []Condition{{
			DisplayName: "storage utilization",
			PrometheusQuery: &PrometheusQueryCondition{
				Query:              ephemeralStorageQuery(p.PoolName, gkeStorageWindow, GKEStorageThreshold),
				Duration:           0,
				EvaluationInterval: gkeStorageEvalInterval,
			},
		}},
		Documentation: p.documentation(name, docBody(summary, impact,
			link{"Playbook", p.Links.Playbook},
		)),
		Enabled:    true,
		Severity:   SeverityWarning,
		UserLabels: p.labels(),
	}
}

func ephemeralStorageQuery(pool string, window promModel.Duration, threshold float64) string {
	selector := func(metric string) string {
		return fmt.Sprintf(`avg_over_time({"__name__"="%s","monitored_resource"="k8s_node","metadata_user_cloud.google.com/gke-nodepool"="%s"}[%s])`,
			metric, pool, window)
	}
	return fmt.Sprintf("(\n  %s\n  /\n  %s\n) >= %s",
		selector("kubernetes_io:node_ephemeral_storage_used_bytes"),
		selector("kubernetes_io:node_ephemeral_storage_total_bytes"),
		strconv.FormatFloat(threshold, 'g', -1, 64),
	)
}

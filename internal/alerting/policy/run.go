package policy

import (
	"fmt"
	"time"
)

// RunCPUThreshold is the p99 CPU utilization above which the Run policy fires.
const RunCPUThreshold = 0.8

// RunParams carries only the shared settings; the policy covers every revision in the project.
type RunParams struct {
	Common
}

// RunSaturationHigh watches p99 CPU of Cloud Run revisions. The policy is created
// disabled and has to be switched on in the console or by a later change.
func RunSaturationHigh(p RunParams) *AlertPolicy {
	name := AlertName(p.Prefix, KindRun, AlertSaturationHigh)

	summary := fmt.Sprintf("This alert fires when the p99 CPU utilization of a Cloud Run revision exceeds %s for 1 minute.",
		percent(RunCPUThreshold))
	impact := "Requests may queue up or time out while instances are saturated."

	return &AlertPolicy{
		Name:        name,
		Kind:        KindRun,
		DisplayName: name,
		Combiner:    CombinerOR,
		Conditions: []Condition{{
			DisplayName: fmt.Sprintf("CPU Utilization Exceeds %s", percent(RunCPUThreshold)),
			Threshold: &ThresholdCondition{
				Filter: filter(
					eq("resource.type", "cloud_run_revision"),
					eq("metric.type", "run.googleapis.com/container/cpu/utilizations"),
				),
				Aggregations: []Aggregation{{
					AlignmentPeriod:  300 * time.Second,
					PerSeriesAligner: AlignPercentile99,
				}},
				Comparison:     ComparisonGT,
				ThresholdValue: RunCPUThreshold,
				Duration:       60 * time.Second,
			},
		}},
		Documentation: p.documentation(name, docBody(summary, impact,
			link{"Playbook", p.Links.Playbook},
		)),
		Enabled:    false,
		Severity:   SeverityWarning,
		UserLabels: p.labels(),
	}
}

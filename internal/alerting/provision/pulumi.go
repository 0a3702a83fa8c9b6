package provision

import (
	"context"
	"fmt"

	"github.com/pulumi/pulumi-gcp/sdk/v8/go/gcp/monitoring"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/qiniu/alert-policies/internal/alerting/policy"
	"github.com/rs/zerolog/log"
)

// Pulumi registers descriptions as gcp:monitoring/alertPolicy:AlertPolicy resources
// in the running Pulumi program. The engine plans and applies them after the
// program returns.
type Pulumi struct {
	ctx     *pulumi.Context
	opts    []pulumi.ResourceOption
	applied Provisioner
}

func NewPulumi(ctx *pulumi.Context, opts ...pulumi.ResourceOption) *Pulumi {
	return &Pulumi{ctx: ctx, opts: opts}
}

// WithApplied hands each description to next once the engine has created or
// updated the resource. It is never called during a preview.
func (p *Pulumi) WithApplied(next Provisioner) *Pulumi {
	p.applied = next
	return p
}

func (p *Pulumi) Provision(_ context.Context, ap *policy.AlertPolicy) error {
	if err := ap.Validate(); err != nil {
		return err
	}
	res, err := monitoring.NewAlertPolicy(p.ctx, ap.Name, alertPolicyArgs(ap), p.opts...)
	if err != nil {
		return fmt.Errorf("register alert policy %s: %w", ap.Name, err)
	}
	log.Debug().Str("policy", ap.Name).Msg("alert policy registered with pulumi")

	if p.applied == nil || p.ctx.DryRun() {
		return nil
	}
	next := p.applied
	res.ID().ApplyTWithContext(p.ctx.Context(), func(ctx context.Context, id pulumi.ID) (pulumi.ID, error) {
		if err := next.Provision(ctx, ap); err != nil {
			log.Error().Err(err).Str("policy", ap.Name).Msg("failed to record applied alert policy")
			return id, err
		}
		return id, nil
	})
	return nil
}

func alertPolicyArgs(ap *policy.AlertPolicy) *monitoring.AlertPolicyArgs {
	conditions := make(monitoring.AlertPolicyConditionArray, 0, len(ap.Conditions))
	for _, c := range ap.Conditions {
		conditions = append(conditions, conditionArgs(c))
	}

	doc := &monitoring.AlertPolicyDocumentationArgs{
		Content:  pulumi.String(ap.Documentation.Content),
		MimeType: pulumi.String(ap.Documentation.MimeType),
	}
	if ap.Documentation.Subject != "" {
		doc.Subject = pulumi.String(ap.Documentation.Subject)
	}

	args := &monitoring.AlertPolicyArgs{
		DisplayName:   pulumi.String(ap.DisplayName),
		Combiner:      pulumi.String(string(ap.Combiner)),
		Conditions:    conditions,
		Documentation: doc,
		Enabled:       pulumi.Bool(ap.Enabled),
	}
	if ap.Severity != "" {
		args.Severity = pulumi.String(string(ap.Severity))
	}
	if len(ap.UserLabels) > 0 {
		args.UserLabels = pulumi.ToStringMap(ap.UserLabels)
	}
	return args
}

func conditionArgs(c policy.Condition) *monitoring.AlertPolicyConditionArgs {
	args := &monitoring.AlertPolicyConditionArgs{
		DisplayName: pulumi.String(c.DisplayName),
	}

	if th := c.Threshold; th != nil {
		aggs := make(monitoring.AlertPolicyConditionConditionThresholdAggregationArray, 0, len(th.Aggregations))
		for _, a := range th.Aggregations {
			agg := &monitoring.AlertPolicyConditionConditionThresholdAggregationArgs{
				AlignmentPeriod:  pulumi.String(policy.Seconds(a.AlignmentPeriod)),
				PerSeriesAligner: pulumi.String(string(a.PerSeriesAligner)),
			}
			if a.CrossSeriesReducer != policy.ReduceNone {
				agg.CrossSeriesReducer = pulumi.String(string(a.CrossSeriesReducer))
			}
			if len(a.GroupByFields) > 0 {
				agg.GroupByFields = pulumi.ToStringArray(a.GroupByFields)
			}
			aggs = append(aggs, agg)
		}

		threshold := &monitoring.AlertPolicyConditionConditionThresholdArgs{
			Filter:         pulumi.String(th.Filter),
			Aggregations:   aggs,
			Comparison:     pulumi.String(string(th.Comparison)),
			ThresholdValue: pulumi.Float64(th.ThresholdValue),
			Duration:       pulumi.String(policy.Seconds(th.Duration)),
		}
		if th.Trigger != nil {
			threshold.Trigger = &monitoring.AlertPolicyConditionConditionThresholdTriggerArgs{
				Count: pulumi.Int(th.Trigger.Count),
			}
		}
		args.ConditionThreshold = threshold
	}

	if q := c.PrometheusQuery; q != nil {
		args.ConditionPrometheusQueryLanguage = &monitoring.AlertPolicyConditionConditionPrometheusQueryLanguageArgs{
			Query:              pulumi.String(q.Query),
			Duration:           pulumi.String(policy.Seconds(q.Duration)),
			EvaluationInterval: pulumi.String(policy.Seconds(q.EvaluationInterval)),
		}
	}
	return args
}

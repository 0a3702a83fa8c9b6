package policy

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidPolicy indicates a description that the monitoring schema would reject.
var ErrInvalidPolicy = errors.New("invalid alert policy")

// Kind identifies the infrastructure resource a policy watches.
type Kind string

const (
	KindGKE Kind = "gke"
	KindSQL Kind = "sql"
	KindRun Kind = "run"
)

// Combiner joins multiple conditions within one policy.
type Combiner string

const (
	CombinerOR  Combiner = "OR"
	CombinerAND Combiner = "AND"
)

// Comparison is the operator between the aligned value and the threshold.
type Comparison string

const (
	ComparisonGT Comparison = "COMPARISON_GT"
	ComparisonLT Comparison = "COMPARISON_LT"
)

// Aligner is the per-series reduction applied inside each alignment period.
type Aligner string

const (
	AlignMean         Aligner = "ALIGN_MEAN"
	AlignInterpolate  Aligner = "ALIGN_INTERPOLATE"
	AlignPercentile99 Aligner = "ALIGN_PERCENTILE_99"
)

// Reducer is the cross-series reduction applied after alignment.
type Reducer string

const (
	ReduceNone Reducer = ""
	ReduceMax  Reducer = "REDUCE_MAX"
)

// Severity is the policy severity shown on incidents.
type Severity string

// SeverityWarning is the only severity the builders emit.
const SeverityWarning Severity = "WARNING"

// MimeMarkdown is the documentation content type.
const MimeMarkdown = "text/markdown"

// AlertPolicy is a declarative alert policy description. It is built once by one of
// the builders and handed to a provisioner; nothing mutates it afterwards.
type AlertPolicy struct {
	Name          string            // resource name, {prefix}:infra:{kind}:{alert}:warn
	Kind          Kind              // resource kind the policy belongs to
	DisplayName   string            // shown in the monitoring console
	Combiner      Combiner          // how conditions are joined
	Conditions    []Condition       // ordered
	Documentation Documentation     // markdown body sent with notifications
	Enabled       bool              // false creates the policy without activating it
	Severity      Severity          // empty means unset
	UserLabels    map[string]string // free-form key/values
}

// Condition carries exactly one of Threshold or PrometheusQuery.
type Condition struct {
	DisplayName     string
	Threshold       *ThresholdCondition
	PrometheusQuery *PrometheusQueryCondition
}

// ThresholdCondition compares an aggregated metric against a fixed value.
type ThresholdCondition struct {
	Filter         string
	Aggregations   []Aggregation
	Comparison     Comparison
	ThresholdValue float64
	Duration       time.Duration
	Trigger        *Trigger // nil leaves the provider default
}

// Aggregation reduces raw samples into comparable series.
type Aggregation struct {
	AlignmentPeriod    time.Duration
	PerSeriesAligner   Aligner
	CrossSeriesReducer Reducer
	GroupByFields      []string
}

// Trigger is how many time series must violate before the condition fires.
type Trigger struct {
	Count int
}

// PrometheusQueryCondition fires when the PromQL query returns any series.
type PrometheusQueryCondition struct {
	Query              string
	Duration           time.Duration
	EvaluationInterval time.Duration
}

// Documentation is the notification body attached to a policy.
type Documentation struct {
	Content  string
	Subject  string
	MimeType string
}

// Seconds renders d the way the monitoring API expects durations, e.g. "300s".
func Seconds(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10) + "s"
}

// Validate checks the structural rules the monitoring schema enforces. Free-text
// values such as filters are not inspected.
func (p *AlertPolicy) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil policy", ErrInvalidPolicy)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidPolicy)
	}
	if p.DisplayName == "" {
		return fmt.Errorf("%w: %s: missing display name", ErrInvalidPolicy, p.Name)
	}
	if p.Combiner == "" {
		return fmt.Errorf("%w: %s: missing combiner", ErrInvalidPolicy, p.Name)
	}
	if len(p.Conditions) == 0 {
		return fmt.Errorf("%w: %s: no conditions", ErrInvalidPolicy, p.Name)
	}
	for i, c := range p.Conditions {
		if c.DisplayName == "" {
			return fmt.Errorf("%w: %s: condition %d: missing display name", ErrInvalidPolicy, p.Name, i)
		}
		if (c.Threshold == nil) == (c.PrometheusQuery == nil) {
			return fmt.Errorf("%w: %s: condition %q must set exactly one of threshold or prometheus query", ErrInvalidPolicy, p.Name, c.DisplayName)
		}
		if c.PrometheusQuery != nil && c.PrometheusQuery.Query == "" {
			return fmt.Errorf("%w: %s: condition %q: empty query", ErrInvalidPolicy, p.Name, c.DisplayName)
		}
	}
	return nil
}

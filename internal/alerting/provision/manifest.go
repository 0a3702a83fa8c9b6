package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/qiniu/alert-policies/internal/alerting/policy"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Format selects the manifest encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat accepts yaml, yml and json.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported manifest format %q", s)
	}
}

// Manifest is the rendered output of one run. Policies use the field names of the
// Cloud Monitoring AlertPolicy REST resource.
type Manifest struct {
	RunID       string     `json:"runId" yaml:"runId"`
	GeneratedAt time.Time  `json:"generatedAt" yaml:"generatedAt"`
	Policies    []Document `json:"policies" yaml:"policies"`
}

type Document struct {
	DisplayName   string                `json:"displayName" yaml:"displayName"`
	Combiner      string                `json:"combiner" yaml:"combiner"`
	Conditions    []ConditionDocument   `json:"conditions" yaml:"conditions"`
	Documentation DocumentationDocument `json:"documentation" yaml:"documentation"`
	Enabled       bool                  `json:"enabled" yaml:"enabled"`
	Severity      string                `json:"severity,omitempty" yaml:"severity,omitempty"`
	UserLabels    map[string]string     `json:"userLabels,omitempty" yaml:"userLabels,omitempty"`
}

type ConditionDocument struct {
	DisplayName                      string                  `json:"displayName" yaml:"displayName"`
	ConditionThreshold               *ThresholdDocument      `json:"conditionThreshold,omitempty" yaml:"conditionThreshold,omitempty"`
	ConditionPrometheusQueryLanguage *PrometheusQueryDocument `json:"conditionPrometheusQueryLanguage,omitempty" yaml:"conditionPrometheusQueryLanguage,omitempty"`
}

type ThresholdDocument struct {
	Filter         string                `json:"filter" yaml:"filter"`
	Aggregations   []AggregationDocument `json:"aggregations,omitempty" yaml:"aggregations,omitempty"`
	Comparison     string                `json:"comparison" yaml:"comparison"`
	ThresholdValue float64               `json:"thresholdValue" yaml:"thresholdValue"`
	Duration       string                `json:"duration" yaml:"duration"`
	Trigger        *TriggerDocument      `json:"trigger,omitempty" yaml:"trigger,omitempty"`
}

type AggregationDocument struct {
	AlignmentPeriod    string   `json:"alignmentPeriod" yaml:"alignmentPeriod"`
	PerSeriesAligner   string   `json:"perSeriesAligner" yaml:"perSeriesAligner"`
	CrossSeriesReducer string   `json:"crossSeriesReducer,omitempty" yaml:"crossSeriesReducer,omitempty"`
	GroupByFields      []string `json:"groupByFields,omitempty" yaml:"groupByFields,omitempty"`
}

type TriggerDocument struct {
	Count int `json:"count" yaml:"count"`
}

type PrometheusQueryDocument struct {
	Query              string `json:"query" yaml:"query"`
	Duration           string `json:"duration" yaml:"duration"`
	EvaluationInterval string `json:"evaluationInterval" yaml:"evaluationInterval"`
}

type DocumentationDocument struct {
	Content  string `json:"content" yaml:"content"`
	MimeType string `json:"mimeType" yaml:"mimeType"`
	Subject  string `json:"subject,omitempty" yaml:"subject,omitempty"`
}

// ToDocument converts a description into its REST representation.
func ToDocument(p *policy.AlertPolicy) Document {
	doc := Document{
		DisplayName: p.DisplayName,
		Combiner:    string(p.Combiner),
		Documentation: DocumentationDocument{
			Content:  p.Documentation.Content,
			MimeType: p.Documentation.MimeType,
			Subject:  p.Documentation.Subject,
		},
		Enabled:    p.Enabled,
		Severity:   string(p.Severity),
		UserLabels: p.UserLabels,
	}
	for _, c := range p.Conditions {
		cd := ConditionDocument{DisplayName: c.DisplayName}
		if th := c.Threshold; th != nil {
			td := &ThresholdDocument{
				Filter:         th.Filter,
				Comparison:     string(th.Comparison),
				ThresholdValue: th.ThresholdValue,
				Duration:       policy.Seconds(th.Duration),
			}
			for _, a := range th.Aggregations {
				td.Aggregations = append(td.Aggregations, AggregationDocument{
					AlignmentPeriod:    policy.Seconds(a.AlignmentPeriod),
					PerSeriesAligner:   string(a.PerSeriesAligner),
					CrossSeriesReducer: string(a.CrossSeriesReducer),
					GroupByFields:      a.GroupByFields,
				})
			}
			if th.Trigger != nil {
				td.Trigger = &TriggerDocument{Count: th.Trigger.Count}
			}
			cd.ConditionThreshold = td
		}
		if q := c.PrometheusQuery; q != nil {
			cd.ConditionPrometheusQueryLanguage = &PrometheusQueryDocument{
				Query:              q.Query,
				Duration:           policy.Seconds(q.Duration),
				EvaluationInterval: policy.Seconds(q.EvaluationInterval),
			}
		}
		doc.Conditions = append(doc.Conditions, cd)
	}
	return doc
}

// ManifestWriter collects descriptions and writes them as one manifest. It lets a
// stack be reviewed or diffed without touching a cloud account.
type ManifestWriter struct {
	runID  string
	format Format
	now    func() time.Time

	mu   sync.Mutex
	docs []Document
}

func NewManifestWriter(runID string, format Format) *ManifestWriter {
	return &ManifestWriter{runID: runID, format: format, now: time.Now}
}

func (w *ManifestWriter) Provision(ctx context.Context, p *policy.AlertPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.docs = append(w.docs, ToDocument(p))
	return nil
}

// Manifest snapshots the collected documents.
func (w *ManifestWriter) Manifest() Manifest {
	w.mu.Lock()
	defer w.mu.Unlock()
	docs := make([]Document, len(w.docs))
	copy(docs, w.docs)
	return Manifest{RunID: w.runID, GeneratedAt: w.now().UTC(), Policies: docs}
}

// Encode renders the manifest in the writer's format.
func (w *ManifestWriter) Encode() ([]byte, error) {
	return encode(w.Manifest(), w.format)
}

func encode(m Manifest, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal manifest: %w", err)
		}
		return append(data, '\n'), nil
	default:
		data, err := yaml.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal manifest: %w", err)
		}
		return data, nil
	}
}

// Write encodes the manifest to out.
func (w *ManifestWriter) Write(out io.Writer) error {
	data, err := w.Encode()
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

// WriteFile encodes the manifest to path, creating parent directories.
func (w *ManifestWriter) WriteFile(path string) error {
	m := w.Manifest()
	data, err := encode(m, w.format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest file: %w", err)
	}
	log.Info().
		Str("file", path).
		Str("run_id", w.runID).
		Int("policies", len(m.Policies)).
		Msg("alert policy manifest written")
	return nil
}

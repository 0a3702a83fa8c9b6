package preflight

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	promModel "github.com/prometheus/common/model"
	"github.com/qiniu/alert-policies/internal/alerting/policy"
	"github.com/rs/zerolog/log"
)

// Checker runs the PromQL conditions of a policy against a Prometheus-compatible
// query API (for example the Managed Service for Prometheus frontend) so that a
// query the backend cannot parse is caught before the policy is provisioned.
type Checker struct {
	api     v1.API
	timeout time.Duration
	now     func() time.Time
}

// NewChecker creates a checker for the API at address.
func NewChecker(address string, timeout time.Duration) (*Checker, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Checker{api: v1.NewAPI(client), timeout: timeout, now: time.Now}, nil
}

// Result summarizes one evaluated query.
type Result struct {
	Condition string
	Series    int
	Warnings  []string
}

// Check evaluates every PromQL condition of p as an instant query. Threshold
// conditions are skipped. The first failing query is returned as an error.
func (c *Checker) Check(ctx context.Context, p *policy.AlertPolicy) ([]Result, error) {
	var results []Result
	for _, cond := range p.Conditions {
		if cond.PrometheusQuery == nil {
			continue
		}
		qctx, cancel := context.WithTimeout(ctx, c.timeout)
		value, warnings, err := c.api.Query(qctx, cond.PrometheusQuery.Query, c.now())
		cancel()
		if err != nil {
			return results, fmt.Errorf("policy %s: condition %q: query failed: %w", p.Name, cond.DisplayName, err)
		}
		if len(warnings) > 0 {
			log.Warn().
				Str("policy", p.Name).
				Str("condition", cond.DisplayName).
				Strs("warnings", warnings).
				Msg("prometheus returned warnings for query")
		}
		results = append(results, Result{
			Condition: cond.DisplayName,
			Series:    seriesCount(value),
			Warnings:  warnings,
		})
	}
	return results, nil
}

func seriesCount(v promModel.Value) int {
	switch t := v.(type) {
	case promModel.Vector:
		return len(t)
	case promModel.Matrix:
		return len(t)
	case *promModel.Scalar:
		return 1
	default:
		return 0
	}
}

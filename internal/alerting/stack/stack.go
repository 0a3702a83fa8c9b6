package stack

import (
	"errors"
	"fmt"
	"strings"

	"github.com/qiniu/alert-policies/internal/alerting/policy"
	"github.com/qiniu/alert-policies/internal/config"
	"github.com/rs/zerolog/log"
)

// ErrMissingProject is returned when a Cloud SQL policy is requested but no
// project id is configured.
var ErrMissingProject = errors.New("gcp project is required for the sql alert")

// Resource section names.
const (
	ResourceGKE = "gke"
	ResourceSQL = "sql"
	ResourceRun = "run"
)

// dispatch holds the descriptions to provision and the resource sections that
// were not declared.
type dispatch struct {
	Policies []*policy.AlertPolicy
	Skipped  []string
}

// Build dispatches on the resource sections present in s and returns the
// descriptions in gke (saturation, storage), sql, run order.
func Build(s *config.Stack) ([]*policy.AlertPolicy, error) {
	b, err := build(s)
	if err != nil {
		return nil, err
	}
	return b.Policies, nil
}

func build(s *config.Stack) (*dispatch, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: stack", config.ErrMissingConfig)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	common := s.Common()
	out := &dispatch{}

	if gke, ok := s.Resource.GKE(); ok {
		out.Policies = append(out.Policies, policy.GKE(policy.GKEParams{
			Common:        common,
			PoolName:      gke.PoolName,
			NamespaceName: gke.Namespace,
		})...)
	} else {
		out.skip(ResourceGKE)
	}

	if sql, ok := s.Resource.SQL(); ok {
		if strings.TrimSpace(s.Project) == "" {
			return nil, ErrMissingProject
		}
		out.Policies = append(out.Policies, policy.SQLSaturationHigh(policy.SQLParams{
			Common:     common,
			ProjectID:  s.Project,
			InstanceID: sql.InstanceID,
		}))
	} else {
		out.skip(ResourceSQL)
	}

	if s.Resource.HasRun() {
		out.Policies = append(out.Policies, policy.RunSaturationHigh(policy.RunParams{Common: common}))
	} else {
		out.skip(ResourceRun)
	}
	return out, nil
}

func (b *dispatch) skip(resource string) {
	log.Debug().Str("resource", resource).Msg("resource not declared, alert skipped")
	b.Skipped = append(b.Skipped, resource)
}

package config

import (
	"fmt"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	pulumiconfig "github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"
)

// StackFromPulumi reads the stack from the Pulumi configuration of the running
// program. environment, system_name and resource are required; gcp:project is
// read if present and only enforced when a policy needs it.
func StackFromPulumi(ctx *pulumi.Context) (*Stack, error) {
	cfg := pulumiconfig.New(ctx, "")
	gcpCfg := pulumiconfig.New(ctx, "gcp")

	var s Stack
	var err error
	if s.Environment, err = cfg.Try("environment"); err != nil {
		return nil, fmt.Errorf("%w: environment: %v", ErrMissingConfig, err)
	}
	if s.SystemName, err = cfg.Try("system_name"); err != nil {
		return nil, fmt.Errorf("%w: system_name: %v", ErrMissingConfig, err)
	}
	if err := cfg.TryObject("resource", &s.Resource); err != nil {
		return nil, fmt.Errorf("%w: resource: %v", ErrMissingConfig, err)
	}
	s.Project = gcpCfg.Get("project")
	s.SupportLevel = cfg.Get("support_level")
	if cfg.Get("links") != "" {
		if err := cfg.GetObject("links", &s.Links); err != nil {
			return nil, fmt.Errorf("parse links: %w", err)
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

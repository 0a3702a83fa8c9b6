package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/qiniu/alert-policies/internal/alerting/policy"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Stack describes one environment of one system and the resources to watch.
type Stack struct {
	Environment  string       `yaml:"environment" json:"environment" toml:"environment"`
	SystemName   string       `yaml:"system_name" json:"system_name" toml:"system_name"`
	Project      string       `yaml:"project" json:"project" toml:"project"` // gcp:project under Pulumi
	SupportLevel string       `yaml:"support_level" json:"support_level" toml:"support_level"`
	Links        policy.Links `yaml:"links" json:"links" toml:"links"`
	Resource     Resource     `yaml:"resource" json:"resource" toml:"resource"`
}

// Resource is the raw resource object. Sections are looked up by key presence,
// so it is kept untyped.
type Resource map[string]any

type GKEResource struct {
	PoolName  string
	Namespace string
}

type SQLResource struct {
	InstanceID string
}

// Validate enforces the keys every stack must carry.
func (s *Stack) Validate() error {
	if strings.TrimSpace(s.Environment) == "" {
		return fmt.Errorf("%w: environment", ErrMissingConfig)
	}
	if strings.TrimSpace(s.SystemName) == "" {
		return fmt.Errorf("%w: system_name", ErrMissingConfig)
	}
	if s.Resource == nil {
		return fmt.Errorf("%w: resource", ErrMissingConfig)
	}
	return nil
}

// Common returns the builder settings derived from the stack.
func (s *Stack) Common() policy.Common {
	return policy.Common{
		Prefix:       s.Environment,
		SystemName:   s.SystemName,
		SupportLevel: s.SupportLevel,
		Links:        s.Links,
	}
}

// GKE reports the gke section when it carries both pool_name and namespace.
func (r Resource) GKE() (GKEResource, bool) {
	sec, ok := r.section("gke")
	if !ok {
		return GKEResource{}, false
	}
	pool, okPool := sec["pool_name"]
	ns, okNs := sec["namespace"]
	if !okPool || !okNs {
		return GKEResource{}, false
	}
	return GKEResource{PoolName: scalar(pool), Namespace: scalar(ns)}, true
}

// SQL reports the sql section when it carries instance_id.
func (r Resource) SQL() (SQLResource, bool) {
	sec, ok := r.section("sql")
	if !ok {
		return SQLResource{}, false
	}
	id, ok := sec["instance_id"]
	if !ok {
		return SQLResource{}, false
	}
	return SQLResource{InstanceID: scalar(id)}, true
}

// HasRun reports whether the run key is present; its value is ignored.
func (r Resource) HasRun() bool {
	_, ok := r["run"]
	return ok
}

// section returns the named sub-object. Non-object values count as absent.
func (r Resource) section(key string) (map[string]any, bool) {
	v, ok := r[key]
	if !ok {
		return nil, false
	}
	switch sec := v.(type) {
	case map[string]any:
		return sec, true
	case map[any]any:
		out := make(map[string]any, len(sec))
		for k, val := range sec {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// LoadStackFile reads a stack description. The format follows the extension:
// .yaml/.yml, .json or .toml.
func LoadStackFile(path string) (*Stack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stack file %s: %w", path, err)
	}

	var s Stack
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	case ".json":
		err = json.Unmarshal(data, &s)
	case ".toml":
		_, err = toml.Decode(string(data), &s)
	default:
		return nil, fmt.Errorf("unsupported stack file format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse stack file %s: %w", path, err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	log.Debug().
		Str("stack_file", path).
		Str("environment", s.Environment).
		Str("system", s.SystemName).
		Msg("stack loaded")
	return &s, nil
}

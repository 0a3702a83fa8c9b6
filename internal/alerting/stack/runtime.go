package stack

import (
	"context"
	"fmt"

	"github.com/qiniu/alert-policies/internal/alerting/catalog"
	"github.com/qiniu/alert-policies/internal/alerting/database"
	"github.com/qiniu/alert-policies/internal/alerting/preflight"
	"github.com/qiniu/alert-policies/internal/alerting/provision"
	"github.com/qiniu/alert-policies/internal/config"
	"github.com/qiniu/alert-policies/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Runtime holds the optional collaborators enabled by the app config: the
// preflight checker, the catalog store and the metrics registry.
type Runtime struct {
	Metrics *metrics.Metrics
	Checker *preflight.Checker
	Catalog catalog.Store

	cfg *config.Config
	db  *database.Database
}

// NewRuntime connects whatever cfg enables. The caller must Close it.
func NewRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{Metrics: metrics.New(), cfg: cfg}

	if cfg.Prometheus.URL != "" {
		chk, err := preflight.NewChecker(cfg.Prometheus.URL, cfg.Prometheus.Timeout())
		if err != nil {
			return nil, err
		}
		rt.Checker = chk
		log.Info().Str("url", cfg.Prometheus.URL).Bool("strict", cfg.Prometheus.Strict).Msg("promql preflight enabled")
	}

	if cfg.Database.Enabled() {
		db, err := database.New(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect catalog database: %w", err)
		}
		store := catalog.NewPgStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		rt.db = db
		rt.Catalog = store
		log.Info().Str("host", cfg.Database.Host).Str("dbname", cfg.Database.DBName).Msg("alert policy catalog enabled")
	}
	return rt, nil
}

// CatalogRecorder returns a provisioner that records into the catalog, or nil when
// no catalog is configured. Only hand it descriptions the engine has applied.
func (rt *Runtime) CatalogRecorder(runID string) provision.Provisioner {
	if rt.Catalog == nil {
		return nil
	}
	return catalog.NewRecorder(rt.Catalog, runID)
}

// Options returns the deployer options for the enabled collaborators.
func (rt *Runtime) Options(runID string) []Option {
	opts := []Option{WithRunID(runID), WithMetrics(rt.Metrics)}
	if rt.Checker != nil {
		opts = append(opts, WithPreflight(rt.Checker, rt.cfg.Prometheus.Strict))
	}
	return opts
}

// PushMetrics pushes the run metrics when a pushgateway is configured.
func (rt *Runtime) PushMetrics(ctx context.Context) error {
	if rt.cfg.Metrics.PushgatewayURL == "" {
		return nil
	}
	return rt.Metrics.Push(ctx, rt.cfg.Metrics.PushgatewayURL, rt.cfg.Metrics.Job)
}

func (rt *Runtime) Close() error {
	if rt.db == nil {
		return nil
	}
	return rt.db.Close()
}

package main

import (
	"os"

	"github.com/google/uuid"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/qiniu/alert-policies/internal/alerting/provision"
	"github.com/qiniu/alert-policies/internal/alerting/stack"
	"github.com/qiniu/alert-policies/internal/config"
	"github.com/qiniu/alert-policies/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load(os.Getenv("ALERT_POLICIES_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Console)

	pulumi.Run(func(ctx *pulumi.Context) error {
		return run(ctx, cfg)
	})
}

func run(ctx *pulumi.Context, cfg *config.Config) error {
	rt, err := stack.NewRuntime(ctx.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	return deploy(ctx, cfg, rt)
}

func deploy(ctx *pulumi.Context, cfg *config.Config, rt *stack.Runtime) error {
	s, err := config.StackFromPulumi(ctx)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	recorder := provision.NewRecorder()
	// the catalog only sees policies the engine has actually applied
	base := provision.Multi{provision.NewPulumi(ctx).WithApplied(rt.CatalogRecorder(runID)), recorder}
	var writer *provision.ManifestWriter
	if cfg.Manifest.OutputFile != "" && !ctx.DryRun() {
		writer = provision.NewManifestWriter(runID, provision.FormatYAML)
		base = append(base, writer)
	}

	d := stack.NewDeployer(base, rt.Options(runID)...)
	res, err := d.Deploy(ctx.Context(), s)
	if err != nil {
		return err
	}

	ctx.Export("runId", pulumi.String(res.RunID))
	ctx.Export("alertPolicies", pulumi.ToStringArray(recorder.Names()))
	ctx.Export("skippedResources", pulumi.ToStringArray(res.Skipped))

	if ctx.DryRun() {
		log.Info().Str("run_id", res.RunID).Msg("preview run, manifest and metrics push skipped")
		return nil
	}
	if writer != nil {
		if err := writer.WriteFile(cfg.Manifest.OutputFile); err != nil {
			return err
		}
	}
	if err := rt.PushMetrics(ctx.Context()); err != nil {
		log.Warn().Err(err).Msg("failed to push run metrics")
	}
	return nil
}

package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/qiniu/alert-policies/internal/alerting/provision"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func (r *RootCommand) newRenderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the alert policies of a stack as a manifest",
		Example: `  policyctl render --stack config/stack.example.yml
  policyctl render --stack stack.toml --format json --out build/policies.json`,
		Args: cobra.NoArgs,
		RunE: r.runRender,
	}
	flags := cmd.Flags()
	flags.String("out", "", "Write the manifest to this file instead of stdout")
	flags.String("format", "yaml", "Manifest format (yaml, json)")
	r.bind("out", flags.Lookup("out"))
	r.bind("format", flags.Lookup("format"))
	return cmd
}

func (r *RootCommand) runRender(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	format, err := provision.ParseFormat(r.v.GetString("format"))
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	writer := provision.NewManifestWriter(runID, format)
	res, rt, err := r.build(ctx, runID, writer)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := r.v.GetString("out")
	if out == "" {
		out = r.cfg.Manifest.OutputFile
	}
	if out != "" {
		if err := writer.WriteFile(out); err != nil {
			return err
		}
	} else if err := writer.Write(cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	if err := rt.PushMetrics(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to push run metrics")
	}
	log.Debug().Str("run_id", res.RunID).Strs("created", res.Created).Msg("render finished")
	return nil
}

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/qiniu/alert-policies/internal/alerting/provision"
	"github.com/qiniu/alert-policies/internal/alerting/stack"
	"github.com/qiniu/alert-policies/internal/config"
	"github.com/qiniu/alert-policies/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	cliVersion   = "dev"
	cliBuildDate = "unknown"
	cliGitCommit = "unknown"
)

// SetVersionInfo is called from main with values injected at link time.
func SetVersionInfo(version, buildDate, gitCommit string) {
	cliVersion = version
	cliBuildDate = buildDate
	cliGitCommit = gitCommit
}

type RootCommand struct {
	cmd        *cobra.Command
	v          *viper.Viper
	cfg        *config.Config
	newRuntime func(ctx context.Context, cfg *config.Config) (*stack.Runtime, error)
}

func NewRootCommand() *RootCommand {
	root := &RootCommand{v: viper.New(), newRuntime: stack.NewRuntime}

	cmd := &cobra.Command{
		Use:   "policyctl",
		Short: "Render and preview GCP monitoring alert policies",
		Long: `policyctl builds the alert policies declared by a stack file without
touching a cloud account. Use render to write a manifest for review and
serve to browse it over HTTP.`,
		SilenceUsage:      true,
		PersistentPreRunE: root.persistentPreRunE,
	}

	pflags := cmd.PersistentFlags()
	pflags.String("config", "", "App config file (yaml)")
	pflags.String("stack", "", "Stack file (yaml, json or toml)")
	pflags.String("log-level", "", "Log level override (trace, debug, info, warn, error)")

	root.bind("config", pflags.Lookup("config"))
	root.bind("stack", pflags.Lookup("stack"))
	root.bind("log-level", pflags.Lookup("log-level"))

	root.v.SetEnvPrefix("POLICYCTL")
	root.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	root.v.AutomaticEnv()

	root.cmd = cmd
	cmd.AddCommand(
		root.newRenderCommand(),
		root.newServeCommand(),
		newVersionCommand(),
	)
	return root
}

func (r *RootCommand) Command() *cobra.Command { return r.cmd }

func (r *RootCommand) Execute(ctx context.Context) error {
	return r.cmd.ExecuteContext(ctx)
}

func (r *RootCommand) bind(key string, flag *pflag.Flag) {
	if err := r.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", key, err))
	}
}

func (r *RootCommand) persistentPreRunE(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(r.v.GetString("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if lvl := r.v.GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Console)
	r.cfg = cfg
	return nil
}

// build loads the stack file and runs it through a deployer that provisions into
// base only. Nothing rendered here is applied, so the catalog is left untouched.
func (r *RootCommand) build(ctx context.Context, runID string, base provision.Provisioner) (*stack.Result, *stack.Runtime, error) {
	path := r.v.GetString("stack")
	if path == "" {
		return nil, nil, fmt.Errorf("%w: --stack", config.ErrMissingConfig)
	}
	s, err := config.LoadStackFile(path)
	if err != nil {
		return nil, nil, err
	}

	rt, err := r.newRuntime(ctx, r.cfg)
	if err != nil {
		return nil, nil, err
	}
	d := stack.NewDeployer(base, rt.Options(runID)...)
	res, err := d.Deploy(ctx, s)
	if err != nil {
		_ = rt.Close()
		return nil, nil, err
	}
	return res, rt, nil
}

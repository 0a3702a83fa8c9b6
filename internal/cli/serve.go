package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/qiniu/alert-policies/internal/alerting/api"
	"github.com/qiniu/alert-policies/internal/alerting/provision"
	"github.com/qiniu/alert-policies/internal/middleware"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func (r *RootCommand) newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the rendered alert policies over HTTP",
		Args:  cobra.NoArgs,
		RunE:  r.runServe,
	}
	flags := cmd.Flags()
	flags.String("addr", "", "Listen address (default: server.bind_addr from the app config)")
	r.bind("addr", flags.Lookup("addr"))
	return cmd
}

// previewHandler renders the stack and returns the router that serves it.
func (r *RootCommand) previewHandler(ctx context.Context) (http.Handler, func() error, error) {
	runID := uuid.NewString()
	writer := provision.NewManifestWriter(runID, provision.FormatJSON)
	_, rt, err := r.build(ctx, runID, writer)
	if err != nil {
		return nil, nil, err
	}

	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.New(writer.Manifest(), rt.Metrics, rt.Catalog), middleware.Authentication(r.cfg.Server.AuthToken))
	return router, rt.Close, nil
}

func (r *RootCommand) runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler, closeFn, err := r.previewHandler(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	addr := r.v.GetString("addr")
	if addr == "" {
		addr = r.cfg.Server.BindAddr
	}
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting preview server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info().Msg("preview server shutting down")
	return srv.Shutdown(shutdownCtx)
}

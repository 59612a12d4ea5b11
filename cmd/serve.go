package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mediatechlab/trendwatch/internal/api"
	"github.com/mediatechlab/trendwatch/internal/clock/system"
)

// newServeCmd creates the 'serve' subcommand: the long-running HTTP service.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Starts the REST API for submitting and inspecting ingestion runs,
with health probes and Prometheus metrics. Submitted runs execute in the
background; at most one run is active at a time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, cleanup, err := buildService(ctx, rt)
			if err != nil {
				return err
			}
			defer cleanup()

			apiServer := api.NewServer(svc, system.New(), rt.cfg, rt.log.Named("api"))
			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", rt.cfg.Server.Port),
				Handler:           apiServer.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			go func() {
				rt.log.Info("http server started", zap.Int("port", rt.cfg.Server.Port))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					rt.log.Error("http server error", zap.Error(err))
					stop()
				}
			}()

			<-ctx.Done()
			rt.log.Info("shutdown initiated")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			rt.log.Info("shutdown complete")
			return nil
		},
	}
}

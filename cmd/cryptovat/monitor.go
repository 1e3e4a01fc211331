package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/cryptovat/internal/config"
	httpserver "github.com/sawpanic/cryptovat/internal/interfaces/http"
	"github.com/sawpanic/cryptovat/internal/jobs"
)

const shutdownTimeout = 15 * time.Second

func monitorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Start the job server with /health, /metrics and progress streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := buildServices(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			lifetime := svc.pipeline.Lifetime(ctx)
			svc.metrics.SetLifetimeScans(lifetime)

			runner := jobs.NewRunner(
				jobs.WithLifetime(lifetime),
				jobs.WithObserver(svc.metrics),
			)

			srv := httpserver.NewServer(httpserver.DefaultServerConfig(a.cfg.Server), httpserver.Services{
				Jobs:     runner,
				Scanner:  svc.pipeline,
				DeepDive: svc.deepDive,
				Metrics:  svc.metrics,
				Health:   svc.db.Health(),
			})

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&a.cfg.Server.Host, "host", a.cfg.Server.Host, "HTTP server host")
	cmd.Flags().IntVar(&a.cfg.Server.Port, "port", a.cfg.Server.Port, "HTTP server port")
	config.BindThresholdFlags(cmd.Flags(), &a.cfg.Thresholds)
	return cmd
}

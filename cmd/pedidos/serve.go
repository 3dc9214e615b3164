package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartdata/pedidos/internal/server"
	"github.com/smartdata/pedidos/pkg/cron"
)

const (
	catalogRefreshJob     = "catalog-refresh"
	catalogRefreshTimeout = 2 * time.Minute
	schedulerStopTimeout  = 30 * time.Second
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the order flow as a JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d := a.deps
			cfg := d.Config
			if addr == "" {
				addr = cfg.Server.Addr()
			}

			go d.Gateway.Ping(ctx)

			sched, err := a.startScheduler(ctx)
			if err != nil {
				return err
			}
			defer stopScheduler(sched, a.logger)

			if err := os.MkdirAll(cfg.Storage.SessionsPath, 0o700); err != nil {
				return fmt.Errorf("failed to create sessions directory: %w", err)
			}
			cookies := server.NewCookieStore(cfg.Storage.SessionsPath, cfg.Session.Secret, int(cfg.Session.TTL.Seconds()), cfg.Server.CookieSecure)

			srv := server.New(server.Deps{
				Validator: d.Gateway,
				Codec:     d.Codec,
				Sessions:  d.SessionOptions(),
				Cookies:   cookies,
				Catalog:   d.Catalog,
				Submitter: d.Submitter,
				Receipts:  d.Receipts,
				Files:     d.Files,
				Registry:  d.Registry,
			}, server.Options{
				Addr:               addr,
				AllowedOrigins:     cfg.Server.AllowedOrigins,
				RateLimitPerSecond: cfg.Server.RateLimitPerSecond,
				RateLimitBurst:     cfg.Server.RateLimitBurst,
			}, a.logger)

			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default SERVER_HOST:SERVER_PORT)")
	return cmd
}

// startScheduler loads the catalog once and keeps it fresh on the configured
// schedule.
func (a *app) startScheduler(ctx context.Context) (*cron.Scheduler, error) {
	d := a.deps
	sched := cron.NewScheduler(a.logger)
	err := sched.Add(cron.Job{
		Name:     catalogRefreshJob,
		Schedule: d.Config.Catalog.RefreshSchedule,
		Timeout:  catalogRefreshTimeout,
		Run: func(ctx context.Context) error {
			report, err := d.Catalog.Refresh(ctx)
			a.logger.Info("catalog refreshed",
				slog.Int("clients", report.Clients.Records),
				slog.Int("products", report.Products.Records),
			)
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	// a degraded first load is logged by the job and retried on schedule
	_ = sched.RunNow(ctx, catalogRefreshJob)
	sched.Start()
	a.logger.Info("catalog refresh scheduled", slog.Time("next", sched.Next(catalogRefreshJob)))
	return sched, nil
}

func stopScheduler(sched *cron.Scheduler, logger *slog.Logger) {
	select {
	case <-sched.Stop().Done():
	case <-time.After(schedulerStopTimeout):
		logger.Warn("scheduled jobs still running at shutdown")
	}
}

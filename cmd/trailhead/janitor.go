// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

// NewJanitorCmd creates the janitor command, a long-running process that
// purges expired password resets on an interval.
func NewJanitorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "janitor",
		Short: "Purge expired password resets periodically",
		Long: `Run until interrupted, clearing expired password resets every --interval.
Metrics and health probes are served on --metrics-addr; set it to "" to disable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd.Context(), func(s *services) error {
				return a.runJanitor(cmd.Context(), s)
			})
		},
	}

	cmd.Flags().Duration("interval", 5*time.Minute, "time between purges")
	cmd.Flags().String("metrics-addr", "127.0.0.1:9100", "observability server address")

	return cmd
}

func (a *app) runJanitor(ctx context.Context, s *services) error {
	cfg := a.cfg().Janitor

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obs ObservabilityServer
	if cfg.MetricsAddr != "" {
		obs = a.deps.NewObservabilityServer(cfg.MetricsAddr, s.ready, a.logger)
		errCh, err := obs.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go a.monitorServer(ctx, cancel, errCh)
		a.logger.Info("observability server started", "addr", obs.Addr())
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := obs.Stop(shutdownCtx); err != nil {
				a.logger.Warn("error stopping observability server", "error", err)
			}
		}()
	}

	a.logger.Info("janitor started", "interval", cfg.Interval.String())

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		a.purgeOnce(ctx, s, obs)

		select {
		case <-ctx.Done():
			a.logger.Info("janitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// purgeOnce runs a single purge. Failures are logged and counted; the
// next tick retries.
func (a *app) purgeOnce(ctx context.Context, s *services, obs ObservabilityServer) {
	if ctx.Err() != nil {
		return
	}
	n, err := s.auth.PurgeExpiredResets(ctx)
	if obs != nil {
		obs.Metrics().RecordPurge(n, err, time.Now())
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "purge expired resets failed", "error", err)
		return
	}
	a.logger.DebugContext(ctx, "purge complete", "purged", n)
}

// monitorServer cancels ctx when the observability server fails.
func (a *app) monitorServer(ctx context.Context, cancel context.CancelFunc, errCh <-chan error) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			a.logger.Error("observability server error, shutting down", "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/trailhead/trailhead/internal/config"
	"github.com/trailhead/trailhead/internal/logging"
)

const (
	serviceName      = "trailhead"
	readinessTimeout = 2 * time.Second
)

// app carries state shared by subcommands after the root pre-run.
type app struct {
	deps       Deps
	configFile string
	loaded     *config.Loaded
	logger     *slog.Logger
}

func (a *app) cfg() config.Config {
	return a.loaded.Config
}

// withServices opens the backend, wires the auth core and runs fn.
func (a *app) withServices(ctx context.Context, fn func(*services) error) error {
	backend, err := a.deps.OpenBackend(ctx, a.cfg())
	if err != nil {
		return err
	}
	defer backend.Close()

	mailer, err := a.deps.NewMailer(a.cfg().Mail, a.logger)
	if err != nil {
		return err
	}
	svcs, err := buildServices(a.cfg(), backend.Store, mailer, a.logger)
	if err != nil {
		return err
	}
	svcs.ready = backend.Ready
	return fn(svcs)
}

// NewRootCmd creates the root command for the Trailhead CLI.
func NewRootCmd(deps Deps) *cobra.Command {
	a := &app{deps: deps}

	cmd := &cobra.Command{
		Use:   "trailhead",
		Short: "Trailhead - account authentication service",
		Long: `Trailhead manages user credentials: password login, bearer tokens,
password reset and role-based access checks.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.Options{File: a.configFile, Flags: cmd.Flags()})
			if err != nil {
				return err
			}
			a.loaded = loaded
			a.logger = logging.Setup(serviceName, cmd.Root().Version, loaded.Config.Log, cmd.ErrOrStderr())
			slog.SetDefault(a.logger)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/trailhead/config.yaml)")
	flags.String("database-url", "", "PostgreSQL connection URL")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, text)")

	cmd.AddCommand(NewMigrateCmd(a))
	cmd.AddCommand(NewUserCmd(a))
	cmd.AddCommand(NewResetCmd(a))
	cmd.AddCommand(NewJanitorCmd(a))
	cmd.AddCommand(NewConfigCmd(a))

	return cmd
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/internal/auth/postgres"
	"github.com/trailhead/trailhead/internal/config"
	"github.com/trailhead/trailhead/internal/mail"
	"github.com/trailhead/trailhead/internal/observability"
	"github.com/trailhead/trailhead/internal/store"
)

// Migrator is the subset of store.Migrator used by the migrate command.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// ObservabilityServer is the subset of observability.Server used by the janitor.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// Backend is an opened credential store plus its readiness probe.
type Backend struct {
	Store auth.CredentialStore
	Ready observability.ReadinessChecker
	Close func()
}

// Deps contains injectable dependencies for the commands.
type Deps struct {
	// OpenBackend connects to the credential store.
	// Default: PostgreSQL via store.OpenPool.
	OpenBackend func(ctx context.Context, cfg config.Config) (*Backend, error)

	// NewMigrator opens a schema migrator.
	// Default: store.NewMigrator
	NewMigrator func(databaseURL string, logger *slog.Logger) (Migrator, error)

	// NewMailer builds the email sender.
	// Default: mail.NewSender
	NewMailer func(cfg mail.Config, logger *slog.Logger) (auth.EmailSender, error)

	// NewObservabilityServer creates the metrics and health server.
	// Default: observability.NewServer with auth metrics registered.
	NewObservabilityServer func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer
}

func defaultDeps() Deps {
	return Deps{
		OpenBackend: openPostgres,
		NewMigrator: func(databaseURL string, logger *slog.Logger) (Migrator, error) {
			return store.NewMigrator(databaseURL, logger)
		},
		NewMailer: mail.NewSender,
		NewObservabilityServer: func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready,
				observability.WithLogger(logger),
				observability.WithRegistration(auth.RegisterMetrics))
		},
	}
}

func openPostgres(ctx context.Context, cfg config.Config) (*Backend, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	pool, err := store.OpenPool(ctx, cfg.Database)
	if err != nil {
		return nil, oops.With("operation", "open database").Wrap(err)
	}
	return &Backend{
		Store: postgres.NewCredentialRepository(pool),
		Ready: store.Readiness(pool, readinessTimeout),
		Close: pool.Close,
	}, nil
}

// services is the wired authentication core.
type services struct {
	auth   *auth.Service
	resets *auth.ResetTokenManager
	ready  observability.ReadinessChecker
}

func buildServices(cfg config.Config, credStore auth.CredentialStore, mailer auth.EmailSender, logger *slog.Logger) (*services, error) {
	hasher, err := auth.NewArgon2idHasher(cfg.Auth.Hash)
	if err != nil {
		return nil, err
	}
	codec, err := auth.NewTokenCodec([]byte(cfg.Auth.TokenSecret), cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}
	resets, err := auth.NewResetTokenManager(credStore, hasher, mailer, cfg.Auth, auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	svc, err := auth.NewAuthService(credStore, hasher, codec, resets, cfg.Auth, auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return &services{auth: svc, resets: resets}, nil
}

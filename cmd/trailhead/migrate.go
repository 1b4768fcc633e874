// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/trailhead/trailhead/internal/store"
)

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  `Apply, roll back or inspect the embedded schema migrations.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withMigrator(func(m Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printStatus(cmd, m)
			})
		},
	})

	var yes bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops all users)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down drops all accounts; pass --yes to confirm")
			}
			return a.withMigrator(func(m Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				return printStatus(cmd, m)
			})
		},
	}
	down.Flags().BoolVar(&yes, "yes", false, "confirm the rollback")
	cmd.AddCommand(down)

	var stepsDown, stepsYes bool
	steps := &cobra.Command{
		Use:   "steps N",
		Short: "Apply the next N migrations, or roll back N with --down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseSteps(args[0])
			if err != nil {
				return err
			}
			if stepsDown {
				if !stepsYes {
					return oops.Code("CONFIRMATION_REQUIRED").Errorf("rolling back may drop accounts; pass --yes to confirm")
				}
				n = -n
			}
			return a.withMigrator(func(m Migrator) error {
				if err := m.Steps(n); err != nil {
					return err
				}
				return printStatus(cmd, m)
			})
		},
	}
	steps.Flags().BoolVar(&stepsDown, "down", false, "roll back instead of applying")
	steps.Flags().BoolVar(&stepsYes, "yes", false, "confirm a rollback")
	cmd.AddCommand(steps)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withMigrator(func(m Migrator) error {
				return printStatus(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it (dirty-state recovery)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return a.withMigrator(func(m Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				return printStatus(cmd, m)
			})
		},
	})

	return cmd
}

func (a *app) withMigrator(fn func(Migrator) error) error {
	if err := a.cfg().RequireDatabase(); err != nil {
		return err
	}
	m, err := a.deps.NewMigrator(a.cfg().Database.URL, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			a.logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()
	return fn(m)
}

// parseForceVersion accepts a non-negative integer; golang-migrate's -1
// ("no version") is not exposed.
func parseForceVersion(s string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer")
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be non-negative")
	}
	return version, nil
}

func parseSteps(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, oops.Code("INVALID_STEPS").With("input", s).Errorf("steps must be a positive integer")
	}
	return n, nil
}

func printStatus(cmd *cobra.Command, m Migrator) error {
	st, err := m.Status()
	if err != nil {
		return err
	}

	name, err := store.MigrationName(st.Current)
	if err != nil {
		return err
	}
	if name == "" {
		name = "none"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "version: %d (%s)\n", st.Current, name)
	fmt.Fprintf(out, "latest:  %d\n", st.Latest)
	switch {
	case st.UpToDate():
		fmt.Fprintln(out, "state:   up to date")
	case st.Dirty:
		fmt.Fprintln(out, "state:   dirty (fix the schema, then run migrate force)")
	}
	if len(st.Pending) > 0 {
		fmt.Fprintf(out, "pending: %v\n", st.Pending)
	}
	return nil
}

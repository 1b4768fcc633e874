// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/trailhead/trailhead/internal/auth"
)

// passwordEnv is read when --password is omitted, keeping it out of shell history.
const passwordEnv = "TRAILHEAD_NEW_PASSWORD"

// NewUserCmd creates the user administration command group.
func NewUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Administer accounts",
	}
	cmd.AddCommand(newUserCreateCmd(a))
	cmd.AddCommand(newUserSetRoleCmd(a))
	cmd.AddCommand(newUserDeactivateCmd(a))
	return cmd
}

func newUserCreateCmd(a *app) *cobra.Command {
	var email, password, role string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account with any role",
		Long: `Create an account directly, bypassing signup. This is the only way to
create accounts with a privileged role. The password may be passed with
--password or the ` + passwordEnv + ` environment variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv(passwordEnv)
			}
			r, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			return a.withServices(cmd.Context(), func(s *services) error {
				cred, err := s.auth.CreateUser(cmd.Context(), email, password, r)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", cred.ID, cred.Email, cred.Role)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "initial password (default $"+passwordEnv+")")
	cmd.Flags().StringVar(&role, "role", string(auth.DefaultRole), "role: "+roleList())
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newUserSetRoleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-role USER_ID ROLE",
		Short: "Change the role of an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			role, err := auth.ParseRole(args[1])
			if err != nil {
				return err
			}
			return a.withServices(cmd.Context(), func(s *services) error {
				if err := s.auth.SetRole(cmd.Context(), id, role); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", id, role)
				return nil
			})
		},
	}
}

func newUserDeactivateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate USER_ID",
		Short: "Deactivate an account; its tokens stop working immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return a.withServices(cmd.Context(), func(s *services) error {
				if err := s.auth.Deactivate(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s deactivated\n", id)
				return nil
			})
		},
	}
}

func parseUserID(s string) (ulid.ULID, error) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return ulid.ULID{}, oops.Code("INVALID_USER_ID").With("input", s).Wrap(err)
	}
	return id, nil
}

func roleList() string {
	roles := auth.Roles()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return strings.Join(names, ", ")
}

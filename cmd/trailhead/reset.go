// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewResetCmd creates the password reset command group.
func NewResetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Manage password resets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Clear every expired pending reset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd.Context(), func(s *services) error {
				n, err := s.auth.PurgeExpiredResets(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired reset(s)\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "issue EMAIL",
		Short: "Issue a reset token and print it instead of emailing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd.Context(), func(s *services) error {
				token, err := s.resets.Issue(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	})

	var link string
	send := &cobra.Command{
		Use:   "send EMAIL",
		Short: "Email a password reset link to an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd.Context(), func(s *services) error {
				if err := s.auth.RequestPasswordReset(cmd.Context(), args[0], resetLink(link)); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "reset email sent")
				return nil
			})
		},
	}
	send.Flags().StringVar(&link, "link", "", "reset URL prefix; the token is appended (default: token only)")
	cmd.AddCommand(send)

	return cmd
}

// resetLink appends the token to prefix, or returns nil for a bare token.
func resetLink(prefix string) func(string) string {
	if prefix == "" {
		return nil
	}
	return func(token string) string {
		return prefix + token
	}
}

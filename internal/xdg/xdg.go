// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package xdg resolves XDG Base Directory paths for Trailhead.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "trailhead"

// ConfigDir returns $XDG_CONFIG_HOME/trailhead, falling back to
// ~/.config/trailhead.
func ConfigDir() (string, error) {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, appName), nil
	}
	home, err := homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

// ConfigFile returns the default config file path.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func homeDir() (string, error) {
	if home := os.Getenv("HOME"); home != "" {
		return home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", oops.Code("XDG_HOME_UNKNOWN").With("operation", "resolve home directory").Wrap(err)
	}
	return home, nil
}

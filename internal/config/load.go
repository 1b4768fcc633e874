// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/trailhead/trailhead/internal/logging"
	"github.com/trailhead/trailhead/internal/xdg"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: TRAILHEAD_AUTH__TOKEN_SECRET sets auth.token_secret.
const EnvPrefix = "TRAILHEAD_"

// secretKeys are redacted by Loaded.YAML.
var secretKeys = []string{"auth.token_secret", "mail.password", "database.url"}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"database-url": "database.url",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"interval":     "janitor.interval",
	"metrics-addr": "janitor.metrics_addr",
}

// Options selects the sources Load reads.
type Options struct {
	// File is an explicit config path. It must exist. When empty the XDG
	// default is used if present.
	File string
	// Flags holds parsed command-line flags; only flags the user set override.
	Flags *pflag.FlagSet
}

// Loaded is a merged configuration plus the source that produced it.
type Loaded struct {
	Config Config
	// File is the config file that was read, or "".
	File string
	k    *koanf.Koanf
}

// Load merges every source, unmarshals and validates the result.
func Load(opts Options) (*Loaded, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	path, err := resolveFile(opts.File)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := loadFile(k, path); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, flagKey(opts.Flags)), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode configuration").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Loaded{Config: cfg, File: path, k: k}, nil
}

// resolveFile returns the file to read, or "" when the default is absent.
func resolveFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", oops.Code("CONFIG_FILE_NOT_FOUND").With("path", explicit).Wrap(err)
		}
		return explicit, nil
	}

	path, err := xdg.ConfigFile()
	if err != nil {
		return "", nil //nolint:nilerr // no home directory means no default file
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	return path, nil
}

// loadFile validates path against the config schema, then merges it.
func loadFile(k *koanf.Koanf, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	if err := ValidateYAML(data); err != nil {
		return oops.With("path", path).Wrap(err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// envKey maps TRAILHEAD_AUTH__TOKEN_SECRET to auth.token_secret. Variables
// without a section separator are not configuration and are skipped.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if !strings.Contains(s, "__") {
		return ""
	}
	return strings.ReplaceAll(s, "__", ".")
}

// flagKey maps known flags to config keys and drops the rest.
func flagKey(fs *pflag.FlagSet) func(*pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}
}

// YAML renders the effective configuration with secrets redacted.
func (l *Loaded) YAML() ([]byte, error) {
	out := l.k.Copy()
	for _, key := range secretKeys {
		if out.String(key) != "" {
			if err := out.Set(key, logging.Redacted); err != nil {
				return nil, oops.Code("CONFIG_RENDER_FAILED").With("key", key).Wrap(err)
			}
		}
	}

	data, err := yamlv3.Marshal(out.Raw())
	if err != nil {
		return nil, oops.Code("CONFIG_RENDER_FAILED").Wrap(err)
	}
	return data, nil
}

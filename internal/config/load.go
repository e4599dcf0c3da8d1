// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/trailhead/trailhead/internal/xdg"
)

// EnvPrefix prefixes every environment variable read into the configuration.
// Nested keys join with underscores: TRAILHEAD_MAIL_SMTP_HOST sets mail.smtp.host.
const EnvPrefix = "TRAILHEAD_"

// DefaultEnvFile is loaded into the process environment when it exists.
const DefaultEnvFile = ".env"

// FlagKeys maps command-line flag names to configuration keys. Only flags the
// user set explicitly override other layers.
var FlagKeys = map[string]string{
	"log-format":   "log.format",
	"log-level":    "log.level",
	"database-url": "database.url",
	"http-addr":    "http.addr",
	"grpc-addr":    "grpc.addr",
	"metrics-addr": "metrics.addr",
}

// listKeys hold comma-separated lists when set from the environment.
var listKeys = map[string]bool{
	"http.allowed_origins": true,
}

// LoadOptions locates the configuration sources.
type LoadOptions struct {
	// ConfigFile is an explicit YAML path. When empty, config.yaml in the XDG
	// config directory is used if present.
	ConfigFile string
	// EnvFile overrides DefaultEnvFile. A missing file is skipped.
	EnvFile string
	// Flags supplies the highest-precedence layer. May be nil.
	Flags *pflag.FlagSet
}

// Load builds the configuration and validates it.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "defaults").Wrap(err)
	}

	path := opts.ConfigFile
	if path == "" {
		var err error
		if path, err = xdg.DefaultConfigFile(); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "file").Wrap(err)
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "file").With("path", path).Wrap(err)
		}
	}

	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	envKeys := make(map[string]string, len(k.Keys()))
	for _, key := range k.Keys() {
		envKeys[strings.ReplaceAll(key, ".", "_")] = key
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(name, value string) (string, any) {
		key, ok := envKeys[strings.ToLower(strings.TrimPrefix(name, EnvPrefix))]
		if !ok {
			return "", nil
		}
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "env").Wrap(err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		}), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "unmarshal").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		path = DefaultEnvFile
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	// godotenv never overrides variables already present in the environment.
	if err := godotenv.Load(path); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("layer", "dotenv").With("path", path).Wrap(err)
	}
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

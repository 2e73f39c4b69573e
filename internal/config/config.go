package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	EnvPrefix         = "NEUROSPARK_"
	DefaultConfigFile = "neurospark.yaml"
)

type Config struct {
	DB           string  `koanf:"db" validate:"required"`
	Addr         string  `koanf:"addr" validate:"required,hostname_port"`
	ReposDir     string  `koanf:"repos-dir" validate:"required"`
	DueThreshold float64 `koanf:"due-threshold" validate:"gt=0"`
	SyncWorkers  int     `koanf:"sync-workers" validate:"min=1,max=64"`
	LogLevel     string  `koanf:"log-level" validate:"oneof=debug info warn error"`
}

// RegisterFlags adds every configuration key to fs with its default.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", DefaultConfigFile, "Path to a YAML configuration file")
	fs.String("db", "neurospark.db", "Path to the SQLite database file")
	fs.String("addr", ":8080", "Address for the web server to listen on")
	fs.String("repos-dir", "repos", "Directory where git sources are checked out")
	fs.Float64("due-threshold", 20, "Urgency below which a card is due")
	fs.Int("sync-workers", 4, "Number of git sources fetched at once")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
}

// Load layers the configuration file, NEUROSPARK_* environment variables and
// command-line flags, in increasing priority, and validates the result. Flag
// defaults only fill keys that no other layer set.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	path, _ := fs.GetString("config")
	if path != "" {
		err := k.Load(file.Provider(path), yaml.Parser())
		switch {
		case err == nil:
		case errors.Is(err, os.ErrNotExist) && !fs.Changed("config"):
			// The default file is optional.
		default:
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps NEUROSPARK_REPOS_DIR to repos-dir.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", "-")
}

// SlogLevel converts LogLevel for a slog handler.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

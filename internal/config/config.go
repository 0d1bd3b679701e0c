// Package config loads the server configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/benbeisheim/unionchess-backend/internal/rules"
)

const (
	EnvAddr       = "UNIONCHESS_ADDR"
	EnvArchiveDir = "UNIONCHESS_ARCHIVE_DIR"
)

type Config struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
	SweepInterval  time.Duration `yaml:"sweepInterval"`
	SaveTimeout    time.Duration `yaml:"saveTimeout"`
	// FinishedRetention is how long a finished match without subscribers
	// stays in memory.
	FinishedRetention time.Duration `yaml:"finishedRetention"`
	Archive           ArchiveConfig `yaml:"archive"`
	Rules             RulesConfig   `yaml:"rules"`
	Log               LogConfig     `yaml:"log"`
}

type ArchiveConfig struct {
	// Dir is left empty to disable archiving.
	Dir      string `yaml:"dir"`
	Parallel int64  `yaml:"parallel"`
}

// RulesConfig holds the defaults for matches created without explicit
// options.
type RulesConfig struct {
	Chain                string `yaml:"chainRule"`
	DrawAfterRepetitions int    `yaml:"drawAfterRepetitions"`
	NoProgressHalfMoves  int    `yaml:"noProgressHalfMoves"`
	TimeoutRule          string `yaml:"timeoutRule"`
}

type LogConfig struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

func Default() Config {
	opts := rules.DefaultOptions()
	return Config{
		Addr:              ":3000",
		AllowedOrigins:    []string{"http://localhost:5173"},
		SweepInterval:     250 * time.Millisecond,
		SaveTimeout:       2 * time.Second,
		FinishedRetention: 10 * time.Minute,
		Archive:           ArchiveConfig{Parallel: 1},
		Rules: RulesConfig{
			Chain:                opts.Chain.String(),
			DrawAfterRepetitions: opts.DrawAfterRepetitions,
			NoProgressHalfMoves:  opts.NoProgressHalfMoves,
			TimeoutRule:          "lose",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
// Environment overrides apply last.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvAddr)); v != "" {
		cfg.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvArchiveDir)); v != "" {
		cfg.Archive.Dir = v
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr is required")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("config: sweepInterval must be positive")
	}
	if _, err := rules.ParseChainRule(c.Rules.Chain); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Rules.DrawAfterRepetitions < 0 || c.Rules.NoProgressHalfMoves < 0 {
		return fmt.Errorf("config: draw limits must not be negative")
	}
	switch c.Rules.TimeoutRule {
	case "lose", "drawOnInsufficientMaterial":
	default:
		return fmt.Errorf("config: unknown timeoutRule %q", c.Rules.TimeoutRule)
	}
	return nil
}

// Options are the rule options matches default to.
func (c Config) Options() rules.Options {
	chain, _ := rules.ParseChainRule(c.Rules.Chain)
	return rules.Options{
		Chain:                chain,
		DrawAfterRepetitions: c.Rules.DrawAfterRepetitions,
		NoProgressHalfMoves:  c.Rules.NoProgressHalfMoves,
	}
}

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/kir-gadjello/rehash/history"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	appName           = "rehash"
	defaultMaxResults = 20
)

// ConfigFile mirrors ~/.config/rehash/config.yaml. Unset fields stay nil so
// flags and environment can tell "absent" from "zero".
type ConfigFile struct {
	Database   *string  `yaml:"database,omitempty"`
	Sources    []string `yaml:"sources,omitempty"`
	MaxResults *int     `yaml:"max_results,omitempty"`
	MaxEntries *int     `yaml:"max_entries,omitempty"`
	Ignore     []string `yaml:"ignore,omitempty"`
	LogLevel   *string  `yaml:"log_level,omitempty"`
}

// Settings is the resolved configuration for one invocation.
type Settings struct {
	ConfigPath string
	Database   string
	Sources    []string
	MaxResults int
	MaxEntries int
	Ignore     []*regexp.Regexp
	LogLevel   slog.Level
}

func defaultConfigPath() string {
	if p := os.Getenv("REHASH_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, appName, "config.yaml")
}

// defaultDataDir follows the XDG data dir on unix and the per-user config
// dir on darwin and windows.
func defaultDataDir() (string, error) {
	switch runtime.GOOS {
	case "darwin", "windows":
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, appName), nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find data directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", appName), nil
}

// loadConfig reads path. A missing file yields an empty config.
func loadConfig(path string) (*ConfigFile, error) {
	if path == "" {
		return &ConfigFile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &ConfigFile{}, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg ConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

func parseLogLevel(v string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning", "":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelWarn, fmt.Errorf("invalid log level: %s", v)
}

func splitList(v string) []string {
	var out []string
	for _, p := range filepath.SplitList(v) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolveSettings applies flag > environment > config file > default.
func resolveSettings(cmd *cobra.Command, cfg *ConfigFile, configPath string) (Settings, error) {
	s := Settings{ConfigPath: configPath, MaxResults: defaultMaxResults}
	if cfg == nil {
		cfg = &ConfigFile{}
	}
	flags := cmd.Flags()

	// Database
	switch {
	case flags.Changed("database"):
		s.Database, _ = flags.GetString("database")
	case os.Getenv("REHASH_DATABASE") != "":
		s.Database = os.Getenv("REHASH_DATABASE")
	case cfg.Database != nil && *cfg.Database != "":
		s.Database = *cfg.Database
	default:
		dir, err := defaultDataDir()
		if err != nil {
			return s, err
		}
		s.Database = filepath.Join(dir, "history.jsonl")
	}
	s.Database = expandHome(s.Database)

	// Merge sources
	switch {
	case flags.Changed("source"):
		s.Sources, _ = flags.GetStringArray("source")
	case os.Getenv("REHASH_SOURCES") != "":
		s.Sources = splitList(os.Getenv("REHASH_SOURCES"))
	default:
		s.Sources = cfg.Sources
	}
	for i := range s.Sources {
		s.Sources[i] = expandHome(s.Sources[i])
	}

	if cfg.MaxResults != nil && *cfg.MaxResults > 0 {
		s.MaxResults = *cfg.MaxResults
	}
	if cfg.MaxEntries != nil && *cfg.MaxEntries > 0 {
		s.MaxEntries = *cfg.MaxEntries
	}

	for _, pattern := range cfg.Ignore {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return s, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
		}
		s.Ignore = append(s.Ignore, re)
	}

	// Logging
	level := ""
	if cfg.LogLevel != nil {
		level = *cfg.LogLevel
	}
	if env := os.Getenv("REHASH_LOG_LEVEL"); env != "" {
		level = env
	}
	lvl, err := parseLogLevel(level)
	if err != nil {
		return s, err
	}
	s.LogLevel = lvl
	if verbose, _ := flags.GetBool("verbose"); verbose {
		s.LogLevel = slog.LevelDebug
	}

	return s, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newManager(s Settings, logger *slog.Logger) (*history.Manager, error) {
	return history.New(history.Options{
		Primary:    s.Database,
		Sources:    s.Sources,
		MaxEntries: s.MaxEntries,
		Ignore:     s.Ignore,
		Logger:     logger,
	})
}

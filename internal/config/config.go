// Package config loads the reaper configuration file.
package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/reaper/internal/domain"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. REAPER_DRY_RUN=true.
	EnvPrefix = "REAPER"

	configName       = "reaper"
	systemConfigDir  = "/etc/reaper"
	defaultLogLevel  = "info"
	defaultRetention = 10000
)

// Config is the on-disk configuration.
type Config struct {
	CheckIntervalSecs int64      `mapstructure:"check_interval_secs" yaml:"check_interval_secs"`
	GracePeriodSecs   int64      `mapstructure:"grace_period_secs" yaml:"grace_period_secs"`
	DryRun            bool       `mapstructure:"dry_run" yaml:"dry_run"`
	LogFile           string     `mapstructure:"log_file" yaml:"log_file"`
	LogLevel          string     `mapstructure:"log_level" yaml:"log_level"`
	MaxConcurrent     int        `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	DataDir           string     `mapstructure:"data_dir" yaml:"data_dir,omitempty"`
	Journal           bool       `mapstructure:"journal" yaml:"journal"`
	HistoryRetention  int        `mapstructure:"history_retention" yaml:"history_retention"`
	Presets           []string   `mapstructure:"presets" yaml:"presets,omitempty"`
	Rules             []RuleSpec `mapstructure:"rules" yaml:"rules,omitempty"`

	// Source is the file the config was read from, empty when defaults were used.
	Source string `mapstructure:"-" yaml:"-"`
}

// RuleSpec is one entry of the rules list.
type RuleSpec struct {
	Name           string  `mapstructure:"name" yaml:"name"`
	Priority       string  `mapstructure:"priority" yaml:"priority"`
	MaxCPUPercent  float64 `mapstructure:"max_cpu_percent" yaml:"max_cpu_percent,omitempty"`
	MaxMemoryMB    int64   `mapstructure:"max_memory_mb" yaml:"max_memory_mb,omitempty"`
	NamePattern    string  `mapstructure:"name_pattern" yaml:"name_pattern,omitempty"`
	CmdlinePattern string  `mapstructure:"cmdline_pattern" yaml:"cmdline_pattern,omitempty"`
	Enabled        *bool   `mapstructure:"enabled" yaml:"enabled,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	d := domain.DefaultConfig()
	return &Config{
		CheckIntervalSecs: d.CheckIntervalSecs,
		GracePeriodSecs:   d.GracePeriodSecs,
		DryRun:            d.DryRun,
		LogFile:           d.LogFile,
		LogLevel:          defaultLogLevel,
		MaxConcurrent:     DefaultMaxConcurrent,
		Journal:           true,
		HistoryRetention:  defaultRetention,
	}
}

// Load reads cfgFile, or searches /etc/reaper and the working directory for
// reaper.yaml when cfgFile is empty. A missing file yields Default().
// Environment variables prefixed with REAPER_ override scalar keys.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(systemConfigDir)
		v.AddConfigPath(".")
	}

	// Defaults make scalar keys known to viper so env overrides apply.
	v.SetDefault("check_interval_secs", cfg.CheckIntervalSecs)
	v.SetDefault("grace_period_secs", cfg.GracePeriodSecs)
	v.SetDefault("dry_run", cfg.DryRun)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("max_concurrent", cfg.MaxConcurrent)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("journal", cfg.Journal)
	v.SetDefault("history_retention", cfg.HistoryRetention)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.Source = v.ConfigFileUsed()
	if cfg.Source != "" && !fileExists(cfg.Source) {
		cfg.Source = ""
	}

	return cfg, nil
}

// ToYAML renders the config as it would appear on disk.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/eliteGoblin/focusd/reaper/internal/domain"
	"github.com/eliteGoblin/focusd/reaper/internal/policy"
)

const (
	// DefaultMaxConcurrent bounds parallel terminations per tick.
	DefaultMaxConcurrent = 8
	maxConcurrentLimit   = 64
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidationResult separates errors that must stop startup from those that
// were corrected or skipped.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether the config is unusable.
func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// ValidateTiered checks the config. Out-of-range tuning values are clamped
// in place and reported as warnings; invalid rules are reported as warnings
// and left out of Effective().
func (c *Config) ValidateTiered() ValidationResult {
	var result ValidationResult

	if c.CheckIntervalSecs <= 0 {
		result.Fatals = append(result.Fatals, fmt.Errorf("check_interval_secs must be > 0, got %d", c.CheckIntervalSecs))
	} else if c.CheckIntervalSecs > domain.MaxDurationSecs {
		result.Fatals = append(result.Fatals, fmt.Errorf("check_interval_secs must be <= %d, got %d", domain.MaxDurationSecs, c.CheckIntervalSecs))
	}
	if strings.TrimSpace(c.LogFile) == "" {
		result.Fatals = append(result.Fatals, fmt.Errorf("log_file must not be empty"))
	}
	if c.GracePeriodSecs < 0 {
		result.Fatals = append(result.Fatals, fmt.Errorf("grace_period_secs must be >= 0, got %d", c.GracePeriodSecs))
	} else if c.GracePeriodSecs > domain.MaxDurationSecs {
		result.Fatals = append(result.Fatals, fmt.Errorf("grace_period_secs must be <= %d, got %d", domain.MaxDurationSecs, c.GracePeriodSecs))
	}

	if c.MaxConcurrent < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("max_concurrent %d is below minimum 1, clamping", c.MaxConcurrent))
		c.MaxConcurrent = 1
	} else if c.MaxConcurrent > maxConcurrentLimit {
		result.Warnings = append(result.Warnings, fmt.Errorf("max_concurrent %d exceeds maximum %d, clamping", c.MaxConcurrent, maxConcurrentLimit))
		c.MaxConcurrent = maxConcurrentLimit
	}

	if c.HistoryRetention < 0 {
		result.Warnings = append(result.Warnings, fmt.Errorf("history_retention %d is negative, disabling pruning", c.HistoryRetention))
		c.HistoryRetention = 0
	}

	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	} else if !validLogLevels[strings.ToLower(c.LogLevel)] {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error), using %s", c.LogLevel, defaultLogLevel))
		c.LogLevel = defaultLogLevel
	}

	_, ruleWarnings := c.detectionRules()
	result.Warnings = append(result.Warnings, ruleWarnings...)

	for _, name := range c.Presets {
		if _, ok := policy.LookupPreset(name); !ok {
			result.Warnings = append(result.Warnings, fmt.Errorf("unknown preset %q (known: %s)", name, strings.Join(policy.PresetNames(), ", ")))
		}
	}

	return result
}

// Effective converts the config into the domain configuration: valid rules
// only, presets first, explicit rules overriding presets of the same name.
func (c *Config) Effective() domain.Config {
	rules, _ := c.detectionRules()
	rules, _ = policy.WithPresets(rules, c.Presets)

	return domain.Config{
		CheckIntervalSecs: c.CheckIntervalSecs,
		Rules:             rules,
		DryRun:            c.DryRun,
		LogFile:           c.LogFile,
		GracePeriodSecs:   c.GracePeriodSecs,
	}
}

func (c *Config) detectionRules() ([]domain.DetectionRule, []error) {
	var (
		rules    []domain.DetectionRule
		warnings []error
		seen     = make(map[string]bool, len(c.Rules))
	)

	for i, rs := range c.Rules {
		rule, err := rs.toDomain()
		if err == nil {
			err = rule.Validate()
		}
		if err != nil {
			warnings = append(warnings, fmt.Errorf("rules[%d] %q skipped: %w", i, rs.Name, err))
			continue
		}
		if seen[rule.Name] {
			warnings = append(warnings, fmt.Errorf("rules[%d] %q duplicates an earlier rule and replaces it", i, rs.Name))
		}
		seen[rule.Name] = true
		rules = append(rules, rule)
	}

	// Later duplicates replace earlier ones in place.
	return policy.NewRegistry(rules...).GetAll(), warnings
}

// toDomain converts a rule entry. An empty priority means medium and a
// missing enabled flag means enabled.
func (s RuleSpec) toDomain() (domain.DetectionRule, error) {
	priority := domain.PriorityMedium
	if s.Priority != "" {
		p, err := domain.ParsePriority(s.Priority)
		if err != nil {
			return domain.DetectionRule{}, err
		}
		priority = p
	}

	enabled := true
	if s.Enabled != nil {
		enabled = *s.Enabled
	}

	return domain.DetectionRule{
		Name:           strings.TrimSpace(s.Name),
		Priority:       priority,
		MaxCPUPercent:  s.MaxCPUPercent,
		MaxMemoryMB:    s.MaxMemoryMB,
		NamePattern:    s.NamePattern,
		CmdlinePattern: s.CmdlinePattern,
		Enabled:        enabled,
	}, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

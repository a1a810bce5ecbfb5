// Package policy decides which processes a detection rule applies to and
// holds the set of rules the daemon enforces.
package policy

import (
	"strings"

	"github.com/eliteGoblin/focusd/reaper/internal/domain"
)

// Matches reports whether every active criterion of rule holds for proc.
// Thresholds are strict: usage equal to the limit does not match.
// A disabled rule never matches.
func Matches(rule domain.DetectionRule, proc domain.Process) bool {
	if !rule.Enabled {
		return false
	}

	if rule.MaxCPUPercent > 0 && proc.CPUPercent <= rule.MaxCPUPercent {
		return false
	}

	if rule.MaxMemoryMB > 0 && proc.MemoryMB <= rule.MaxMemoryMB {
		return false
	}

	if rule.NamePattern != "" && !strings.Contains(proc.Name, rule.NamePattern) {
		return false
	}

	if rule.CmdlinePattern != "" && !strings.Contains(proc.Cmdline, rule.CmdlinePattern) {
		return false
	}

	return true
}

// MatchName is the loose ad-hoc filter: case-insensitive containment,
// and an empty pattern matches everything. It is intentionally different
// from DetectionRule.NamePattern, which is case-sensitive.
func MatchName(proc domain.Process, pattern string) bool {
	if pattern == "" {
		return true
	}
	return strings.Contains(strings.ToLower(proc.Name), strings.ToLower(pattern))
}

// ExceedsCPU reports whether proc is above the rule's CPU limit.
// Always false when the CPU criterion is disabled.
func ExceedsCPU(proc domain.Process, rule domain.DetectionRule) bool {
	if rule.MaxCPUPercent <= 0 {
		return false
	}
	return proc.CPUPercent > rule.MaxCPUPercent
}

// ExceedsMemory reports whether proc is above the rule's memory limit.
// Always false when the memory criterion is disabled.
func ExceedsMemory(proc domain.Process, rule domain.DetectionRule) bool {
	if rule.MaxMemoryMB <= 0 {
		return false
	}
	return proc.MemoryMB > rule.MaxMemoryMB
}

// Reasons lists the criteria that made rule fire for proc, for logging.
func Reasons(rule domain.DetectionRule, proc domain.Process) []string {
	var reasons []string
	if ExceedsCPU(proc, rule) {
		reasons = append(reasons, "cpu")
	}
	if ExceedsMemory(proc, rule) {
		reasons = append(reasons, "memory")
	}
	if rule.NamePattern != "" {
		reasons = append(reasons, "name")
	}
	if rule.CmdlinePattern != "" {
		reasons = append(reasons, "cmdline")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "match-all")
	}
	return reasons
}

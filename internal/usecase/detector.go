// Package usecase contains application business logic.
package usecase

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/reaper/internal/domain"
	"github.com/eliteGoblin/focusd/reaper/internal/policy"
)

// SelectStats reports what Select excluded before matching.
type SelectStats struct {
	RejectedProcs int
	RejectedRules int
}

// Detector picks flagged processes out of a snapshot.
type Detector struct {
	logger *zap.Logger
}

// NewDetector creates a new detection engine.
func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{logger: logger}
}

// Select returns one Detection per process matched by at least one enabled
// rule, in input order. Invalid processes and invalid rules are dropped
// before matching. Detection.Rule is the highest-priority match; ties go to
// the rule that comes first.
func (d *Detector) Select(processes []domain.Process, rules []domain.DetectionRule) []domain.Detection {
	detections, _ := d.SelectWithStats(processes, rules)
	return detections
}

// SelectWithStats is Select plus counts of rejected inputs.
func (d *Detector) SelectWithStats(processes []domain.Process, rules []domain.DetectionRule) ([]domain.Detection, SelectStats) {
	var stats SelectStats

	active := make([]domain.DetectionRule, 0, len(rules))
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			stats.RejectedRules++
			d.logger.Warn("skipping invalid rule",
				zap.String("rule", rule.Name),
				zap.Error(err))
			continue
		}
		if rule.Enabled {
			active = append(active, rule)
		}
	}

	var detections []domain.Detection
	for _, proc := range processes {
		if err := proc.Validate(); err != nil {
			stats.RejectedProcs++
			d.logger.Debug("skipping invalid process",
				zap.Int("pid", proc.PID),
				zap.String("name", proc.Name),
				zap.Error(err))
			continue
		}

		var matched []domain.DetectionRule
		for _, rule := range active {
			if policy.Matches(rule, proc) {
				matched = append(matched, rule)
			}
		}
		if len(matched) == 0 {
			continue
		}

		detections = append(detections, domain.Detection{
			Process: proc,
			Rule:    highestPriority(matched),
			Matched: matched,
		})
	}

	return detections, stats
}

// highestPriority expects a non-empty slice.
func highestPriority(rules []domain.DetectionRule) domain.DetectionRule {
	best := rules[0]
	for _, rule := range rules[1:] {
		if rule.Priority.HigherThan(best.Priority) {
			best = rule
		}
	}
	return best
}

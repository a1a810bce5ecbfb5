package policy

import (
	"sort"

	"github.com/eliteGoblin/focusd/reaper/internal/domain"
)

// Preset is a built-in rule operators can enable by name instead of
// spelling out thresholds in the config file.
type Preset struct {
	Description string
	Rule        domain.DetectionRule
}

// builtinPresets are tuned for shared CI and compute nodes.
var builtinPresets = map[string]Preset{
	"cpu-runaway": {
		Description: "any process pinning a core above 95%",
		Rule: domain.DetectionRule{
			Name:          "cpu-runaway",
			Priority:      domain.PriorityHigh,
			MaxCPUPercent: 95,
			Enabled:       true,
		},
	},
	"memory-hog": {
		Description: "any process holding more than 8 GiB resident",
		Rule: domain.DetectionRule{
			Name:        "memory-hog",
			Priority:    domain.PriorityMedium,
			MaxMemoryMB: 8192,
			Enabled:     true,
		},
	},
	"crypto-miner": {
		Description: "known miner binaries regardless of usage",
		Rule: domain.DetectionRule{
			Name:           "crypto-miner",
			Priority:       domain.PriorityHigh,
			CmdlinePattern: "stratum+tcp://",
			Enabled:        true,
		},
	},
	"xmrig": {
		Description: "xmrig miner by process name",
		Rule: domain.DetectionRule{
			Name:        "xmrig",
			Priority:    domain.PriorityHigh,
			NamePattern: "xmrig",
			Enabled:     true,
		},
	},
}

// LookupPreset returns the preset with the given name.
func LookupPreset(name string) (Preset, bool) {
	p, ok := builtinPresets[name]
	return p, ok
}

// PresetNames returns all preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(builtinPresets))
	for name := range builtinPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithPresets returns rules extended by the named presets.
// Explicit rules win over a preset of the same name; unknown names are
// returned so the caller can report them.
func WithPresets(rules []domain.DetectionRule, names []string) ([]domain.DetectionRule, []string) {
	reg := NewRegistry()
	var unknown []string

	for _, name := range names {
		p, ok := LookupPreset(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		reg.Register(p.Rule)
	}
	for _, rule := range rules {
		reg.Register(rule)
	}

	return reg.GetAll(), unknown
}

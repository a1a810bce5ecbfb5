package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eliteGoblin/focusd/reaper/internal/domain"
)

func newRule(name string) domain.DetectionRule {
	return domain.DetectionRule{
		Name:     name,
		Priority: domain.PriorityMedium,
		Enabled:  true,
	}
}

func newProc(pid int, name, cmdline string, cpu float64, mem int64) domain.Process {
	return domain.Process{
		PID:        pid,
		Name:       name,
		Cmdline:    cmdline,
		CPUPercent: cpu,
		MemoryMB:   mem,
		Status:     domain.StatusRunning,
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name string
		rule func(r *domain.DetectionRule)
		proc domain.Process
		want bool
	}{
		{
			name: "cpu above threshold",
			rule: func(r *domain.DetectionRule) { r.MaxCPUPercent = 80 },
			proc: newProc(100, "stress", "stress -c 4", 95, 10),
			want: true,
		},
		{
			name: "cpu at threshold does not match",
			rule: func(r *domain.DetectionRule) { r.MaxCPUPercent = 80 },
			proc: newProc(100, "stress", "stress -c 4", 80, 10),
			want: false,
		},
		{
			name: "cpu below threshold",
			rule: func(r *domain.DetectionRule) { r.MaxCPUPercent = 80 },
			proc: newProc(100, "stress", "stress -c 4", 50, 10),
			want: false,
		},
		{
			name: "memory above threshold",
			rule: func(r *domain.DetectionRule) { r.MaxMemoryMB = 512 },
			proc: newProc(100, "java", "java -jar app.jar", 1, 2048),
			want: true,
		},
		{
			name: "memory at threshold does not match",
			rule: func(r *domain.DetectionRule) { r.MaxMemoryMB = 512 },
			proc: newProc(100, "java", "java -jar app.jar", 1, 512),
			want: false,
		},
		{
			name: "both thresholds must hold",
			rule: func(r *domain.DetectionRule) { r.MaxCPUPercent = 50; r.MaxMemoryMB = 512 },
			proc: newProc(100, "java", "java -jar app.jar", 90, 100),
			want: false,
		},
		{
			name: "name pattern substring",
			rule: func(r *domain.DetectionRule) { r.NamePattern = "java" },
			proc: newProc(100, "openjdk-java", "", 0, 0),
			want: true,
		},
		{
			name: "name pattern is case sensitive",
			rule: func(r *domain.DetectionRule) { r.NamePattern = "java" },
			proc: newProc(100, "JAVA", "", 0, 0),
			want: false,
		},
		{
			name: "cmdline pattern matches",
			rule: func(r *domain.DetectionRule) { r.CmdlinePattern = "java" },
			proc: newProc(100, "app", "/usr/bin/java -jar app.jar", 0, 0),
			want: true,
		},
		{
			name: "cmdline pattern mismatch",
			rule: func(r *domain.DetectionRule) { r.CmdlinePattern = "java" },
			proc: newProc(100, "app", "/usr/bin/python app.py", 0, 0),
			want: false,
		},
		{
			name: "zero thresholds and empty patterns match all",
			rule: func(r *domain.DetectionRule) {},
			proc: newProc(1, "init", "/sbin/init", 0, 0),
			want: true,
		},
		{
			name: "disabled rule never matches",
			rule: func(r *domain.DetectionRule) { r.Enabled = false },
			proc: newProc(100, "anything", "", 100, 1 << 20),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := newRule("test")
			tt.rule(&rule)
			assert.Equal(t, tt.want, Matches(rule, tt.proc))
		})
	}
}

func TestMatches_DisabledRuleNeverMatches(t *testing.T) {
	procs := []domain.Process{
		newProc(1, "init", "/sbin/init", 0, 0),
		newProc(2, "java", "java -jar x.jar", 100, 1 << 30),
		newProc(3, "", "", 50, 10),
	}
	rules := []domain.DetectionRule{
		{Name: "all", Priority: domain.PriorityHigh},
		{Name: "cpu", Priority: domain.PriorityHigh, MaxCPUPercent: 1},
		{Name: "mem", Priority: domain.PriorityLow, MaxMemoryMB: 1},
		{Name: "java", Priority: domain.PriorityLow, NamePattern: "java", CmdlinePattern: "java"},
	}

	for _, rule := range rules {
		for _, proc := range procs {
			assert.False(t, Matches(rule, proc), "%s vs %s", rule, proc)
		}
	}
}

func TestMatches_MatchAllRule(t *testing.T) {
	rule := newRule("match-all")
	for _, cpu := range []float64{0, 0.1, 50, 99.9, 100} {
		for _, mem := range []int64{0, 1, 4096} {
			assert.True(t, Matches(rule, newProc(42, "p", "p", cpu, mem)))
		}
	}
}

func TestMatches_ThresholdMonotonic(t *testing.T) {
	proc := newProc(1234, "worker", "worker --busy", 75, 100)

	var matched []float64
	for _, threshold := range []float64{50, 60, 70, 80, 90} {
		rule := newRule("cpu")
		rule.MaxCPUPercent = threshold
		if Matches(rule, proc) {
			matched = append(matched, threshold)
		}
	}

	assert.Equal(t, []float64{50, 60, 70}, matched)
}

func TestMatchName(t *testing.T) {
	proc := newProc(1, "Firefox-Bin", "", 0, 0)

	tests := []struct {
		pattern string
		want    bool
	}{
		{"", true},
		{"Firefox-Bin", true},
		{"fox", true},
		{"FIREFOX", true},
		{"chrome", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchName(proc, tt.pattern))
		})
	}
}

func TestExceedsCPU(t *testing.T) {
	rule := newRule("cpu")
	rule.MaxCPUPercent = 80

	assert.False(t, ExceedsCPU(newProc(1, "p", "", 50, 0), rule))
	assert.False(t, ExceedsCPU(newProc(1, "p", "", 80, 0), rule))
	assert.True(t, ExceedsCPU(newProc(1, "p", "", 80.1, 0), rule))
	assert.True(t, ExceedsCPU(newProc(1, "p", "", 100, 0), rule))

	rule.MaxCPUPercent = 0
	assert.False(t, ExceedsCPU(newProc(1, "p", "", 100, 0), rule), "disabled criterion")
}

func TestExceedsMemory(t *testing.T) {
	rule := newRule("mem")
	rule.MaxMemoryMB = 1024

	assert.False(t, ExceedsMemory(newProc(1, "p", "", 0, 512), rule))
	assert.False(t, ExceedsMemory(newProc(1, "p", "", 0, 1024), rule))
	assert.True(t, ExceedsMemory(newProc(1, "p", "", 0, 1025), rule))
	assert.True(t, ExceedsMemory(newProc(1, "p", "", 0, 1<<40), rule))

	rule.MaxMemoryMB = 0
	assert.False(t, ExceedsMemory(newProc(1, "p", "", 0, 1<<40), rule), "disabled criterion")
}

func TestReasons(t *testing.T) {
	rule := newRule("combo")
	rule.MaxCPUPercent = 50
	rule.NamePattern = "java"

	assert.Equal(t, []string{"cpu", "name"}, Reasons(rule, newProc(1, "java", "", 90, 0)))
	assert.Equal(t, []string{"match-all"}, Reasons(newRule("all"), newProc(1, "x", "", 0, 0)))
}

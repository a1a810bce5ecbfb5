// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ProcessStatus is the scheduler state of a process at snapshot time.
type ProcessStatus int

const (
	StatusRunning ProcessStatus = iota
	StatusSleeping
	StatusStopped
	StatusZombie
)

func (s ProcessStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSleeping:
		return "sleeping"
	case StatusStopped:
		return "stopped"
	case StatusZombie:
		return "zombie"
	}
	return "unknown"
}

// ParseProcessStatus converts a status name back to a ProcessStatus.
func ParseProcessStatus(s string) (ProcessStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "running":
		return StatusRunning, nil
	case "sleeping":
		return StatusSleeping, nil
	case "stopped":
		return StatusStopped, nil
	case "zombie":
		return StatusZombie, nil
	}
	return StatusRunning, fmt.Errorf("unknown process status %q", s)
}

// Process is one entry of a process table snapshot.
// Values are created fresh on every scan and discarded after the tick.
type Process struct {
	PID        int
	Name       string
	Cmdline    string
	CPUPercent float64 // 0.0 - 100.0
	MemoryMB   int64
	Status     ProcessStatus
}

// Validate rejects processes that must never reach the matcher.
func (p Process) Validate() error {
	if p.PID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPID, p.PID)
	}
	if p.CPUPercent < 0 || p.CPUPercent > 100 {
		return fmt.Errorf("%w: %v", ErrInvalidCPU, p.CPUPercent)
	}
	if p.MemoryMB < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMemory, p.MemoryMB)
	}
	return nil
}

// IsValid reports whether Validate succeeds.
func (p Process) IsValid() bool {
	return p.Validate() == nil
}

func (p Process) String() string {
	return fmt.Sprintf("Process[PID=%d, name='%s', CPU=%s%%, MEM=%dMB]",
		p.PID, p.Name, strconv.FormatFloat(p.CPUPercent, 'f', -1, 64), p.MemoryMB)
}

// Priority orders detection rules. High > Medium > Low.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
)

// Value returns the numeric weight used for ordering (High=3, Medium=2, Low=1).
func (p Priority) Value() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// HigherThan reports whether p strictly outranks other.
func (p Priority) HigherThan(other Priority) bool {
	return p.Value() > other.Value()
}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	}
	return "unknown"
}

// ParsePriority accepts "high", "medium" or "low" in any case.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh, nil
	case "medium":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	}
	return 0, fmt.Errorf("%w: unknown priority %q", ErrInvalidRule, s)
}

// DetectionRule flags processes whose usage or identity crosses its criteria.
//
// A threshold of zero disables that criterion; it does not mean "must be 0".
// An empty pattern disables that filter. A rule with no active criteria
// matches every process, unless Enabled is false, which overrides everything.
type DetectionRule struct {
	Name           string
	Priority       Priority
	MaxCPUPercent  float64
	MaxMemoryMB    int64
	NamePattern    string // case-sensitive substring of Process.Name
	CmdlinePattern string // case-sensitive substring of Process.Cmdline
	Enabled        bool
}

// Validate checks the rule invariants.
func (r DetectionRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRule)
	}
	if r.MaxCPUPercent < 0 || r.MaxCPUPercent > 100 {
		return fmt.Errorf("%w: %s: max_cpu_percent %v out of range [0,100]", ErrInvalidRule, r.Name, r.MaxCPUPercent)
	}
	if r.MaxMemoryMB < 0 {
		return fmt.Errorf("%w: %s: max_memory_mb %d is negative", ErrInvalidRule, r.Name, r.MaxMemoryMB)
	}
	if r.Priority.Value() == 0 {
		return fmt.Errorf("%w: %s: priority not set", ErrInvalidRule, r.Name)
	}
	return nil
}

// IsValid reports whether Validate succeeds.
func (r DetectionRule) IsValid() bool {
	return r.Validate() == nil
}

func (r DetectionRule) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rule: %s [%s]", r.Name, r.Priority)
	if r.MaxCPUPercent > 0 {
		fmt.Fprintf(&b, " CPU>%s%%", strconv.FormatFloat(r.MaxCPUPercent, 'f', -1, 64))
	}
	if r.MaxMemoryMB > 0 {
		fmt.Fprintf(&b, " MEM>%dMB", r.MaxMemoryMB)
	}
	if r.NamePattern != "" {
		fmt.Fprintf(&b, " pattern:%s", r.NamePattern)
	}
	if r.CmdlinePattern != "" {
		fmt.Fprintf(&b, " cmdline:%s", r.CmdlinePattern)
	}
	if r.Enabled {
		b.WriteString(" (enabled)")
	} else {
		b.WriteString(" (disabled)")
	}
	return b.String()
}

// Defaults applied when no configuration file is present.
const (
	DefaultCheckIntervalSecs = 60
	DefaultGracePeriodSecs   = 5
	DefaultLogFile           = "/var/log/reaper.log"
)

// MaxDurationSecs is the largest second count a time.Duration can hold.
const MaxDurationSecs = int64(math.MaxInt64 / int64(time.Second))

// Seconds converts secs to a duration, saturating at the largest
// representable value instead of overflowing.
func Seconds(secs int64) time.Duration {
	if secs > MaxDurationSecs {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs) * time.Second
}

// Config is the process-wide, read-only daemon configuration.
type Config struct {
	CheckIntervalSecs int64
	Rules             []DetectionRule // order carries no meaning; priority decides
	DryRun            bool
	LogFile           string
	GracePeriodSecs   int64
}

// DefaultConfig returns the configuration used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		CheckIntervalSecs: DefaultCheckIntervalSecs,
		Rules:             []DetectionRule{},
		DryRun:            false,
		LogFile:           DefaultLogFile,
		GracePeriodSecs:   DefaultGracePeriodSecs,
	}
}

// Validate checks the config invariants. Rules are validated separately
// at the matching boundary.
func (c Config) Validate() error {
	if c.CheckIntervalSecs <= 0 {
		return fmt.Errorf("%w: check_interval_secs must be > 0, got %d", ErrInvalidConfig, c.CheckIntervalSecs)
	}
	if c.CheckIntervalSecs > MaxDurationSecs {
		return fmt.Errorf("%w: check_interval_secs must be <= %d, got %d", ErrInvalidConfig, MaxDurationSecs, c.CheckIntervalSecs)
	}
	if c.LogFile == "" {
		return fmt.Errorf("%w: log_file must not be empty", ErrInvalidConfig)
	}
	if c.GracePeriodSecs < 0 {
		return fmt.Errorf("%w: grace_period_secs must be >= 0, got %d", ErrInvalidConfig, c.GracePeriodSecs)
	}
	if c.GracePeriodSecs > MaxDurationSecs {
		return fmt.Errorf("%w: grace_period_secs must be <= %d, got %d", ErrInvalidConfig, MaxDurationSecs, c.GracePeriodSecs)
	}
	return nil
}

// CheckInterval returns the scan interval as a duration.
func (c Config) CheckInterval() time.Duration {
	return Seconds(c.CheckIntervalSecs)
}

// GracePeriod returns the graceful-termination wait as a duration.
func (c Config) GracePeriod() time.Duration {
	return Seconds(c.GracePeriodSecs)
}

func (c Config) String() string {
	return fmt.Sprintf("Config[interval=%ds, rules=%d, dry_run=%t, log=%s, grace=%ds]",
		c.CheckIntervalSecs, len(c.Rules), c.DryRun, c.LogFile, c.GracePeriodSecs)
}

// ActionResult is the terminal outcome of one termination attempt.
type ActionResult int

const (
	ResultSuccess          ActionResult = iota // process confirmed gone
	ResultAlreadyDead                          // gone before the attempt started
	ResultPermissionDenied                     // OS refused the signal
	ResultNotFound                             // vanished mid-attempt
	ResultTimedOut                             // survived grace period and force kill
	ResultFailed                               // anything else, including pid <= 0
)

func (r ActionResult) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultAlreadyDead:
		return "already_dead"
	case ResultPermissionDenied:
		return "permission_denied"
	case ResultNotFound:
		return "not_found"
	case ResultTimedOut:
		return "timed_out"
	case ResultFailed:
		return "failed"
	}
	return "unknown"
}

// ParseActionResult converts a stored result name back to an ActionResult.
func ParseActionResult(s string) (ActionResult, error) {
	for r := ResultSuccess; r <= ResultFailed; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return ResultFailed, fmt.Errorf("unknown action result %q", s)
}

// Detection is a flagged process together with the rules that matched it.
type Detection struct {
	Process Process
	Rule    DetectionRule   // highest-priority match, first encountered on ties
	Matched []DetectionRule // every match, in rule-list order
}

// TerminationRecord captures what happened to one flagged process in a tick.
type TerminationRecord struct {
	PID        int
	Name       string
	Rule       string
	Priority   Priority
	Result     ActionResult
	DryRun     bool
	StartedAt  time.Time
	DurationMs int64
}

// TickResult summarises a single scan-match-act cycle.
type TickResult struct {
	StartedAt     time.Time
	Scanned       int
	RejectedProcs int
	RejectedRules int
	Flagged       int
	Records       []TerminationRecord
	Skipped       bool // snapshot failed, nothing was acted on
	Err           error
	DurationMs    int64
}

// Count returns how many records ended with the given result.
func (t TickResult) Count(result ActionResult) int {
	n := 0
	for _, r := range t.Records {
		if r.Result == result {
			n++
		}
	}
	return n
}

// Daemon identifies a running reaper instance.
type Daemon struct {
	PID        int
	StartedAt  time.Time
	AppVersion string
	Mode       string // "user" or "system"
}

// DaemonStatus is the persisted liveness view of the daemon.
type DaemonStatus struct {
	PID           int
	StartedAt     time.Time
	LastHeartbeat time.Time
	AppVersion    string
	Mode          string
}

// Phase is the daemon loop's position within a cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseScanning
	PhaseMatching
	PhaseActing
	PhaseSleeping
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseScanning:
		return "scanning"
	case PhaseMatching:
		return "matching"
	case PhaseActing:
		return "acting"
	case PhaseSleeping:
		return "sleeping"
	case PhaseStopped:
		return "stopped"
	}
	return "unknown"
}

// PhaseObserver is notified on every phase transition. It may be nil.
type PhaseObserver func(Phase)

// Notify calls the observer if set.
func (o PhaseObserver) Notify(p Phase) {
	if o != nil {
		o(p)
	}
}

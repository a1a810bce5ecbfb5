package usecase

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/focusd/reaper/internal/domain"
	"github.com/eliteGoblin/focusd/reaper/internal/policy"
)

// DefaultMaxConcurrent bounds parallel termination attempts within a tick.
const DefaultMaxConcurrent = 8

// EnforcerOption customizes an Enforcer.
type EnforcerOption func(*Enforcer)

// WithMaxConcurrent bounds how many processes are terminated in parallel.
func WithMaxConcurrent(n int) EnforcerOption {
	return func(e *Enforcer) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

// WithProtectedPIDs replaces the set of PIDs that are never flagged.
// By default only the current process is protected.
func WithProtectedPIDs(pids ...int) EnforcerOption {
	return func(e *Enforcer) {
		e.protected = make(map[int]bool, len(pids))
		for _, pid := range pids {
			e.protected[pid] = true
		}
	}
}

// Enforcer runs one scan-match-act cycle.
type Enforcer struct {
	source        domain.ProcessSource
	ruleStore     domain.RuleStore
	detector      *Detector
	terminator    *Terminator
	config        domain.Config
	maxConcurrent int
	protected     map[int]bool
	logger        *zap.Logger
}

// NewEnforcer creates a tick orchestrator. cfg must already be validated.
func NewEnforcer(
	source domain.ProcessSource,
	rs domain.RuleStore,
	terminator *Terminator,
	cfg domain.Config,
	logger *zap.Logger,
	opts ...EnforcerOption,
) *Enforcer {
	e := &Enforcer{
		source:        source,
		ruleStore:     rs,
		detector:      NewDetector(logger),
		terminator:    terminator,
		config:        cfg,
		maxConcurrent: DefaultMaxConcurrent,
		protected:     map[int]bool{os.Getpid(): true},
		logger:        logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunTick scans, matches and acts once, reporting each phase to observe.
// A failed snapshot skips the tick without acting; a failed termination never
// stops the others.
func (e *Enforcer) RunTick(ctx context.Context, observe domain.PhaseObserver) domain.TickResult {
	start := time.Now()
	result := domain.TickResult{
		StartedAt: start,
		Records:   make([]domain.TerminationRecord, 0),
	}

	observe.Notify(domain.PhaseScanning)
	procs, err := e.source.Scan(ctx)
	if err != nil {
		e.logger.Warn("process snapshot failed, skipping tick", zap.Error(err))
		result.Skipped = true
		result.Err = err
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}
	result.Scanned = len(procs)

	observe.Notify(domain.PhaseMatching)
	detections, stats := e.detector.SelectWithStats(e.unprotected(procs), e.ruleStore.GetAll())
	result.RejectedProcs = stats.RejectedProcs
	result.RejectedRules = stats.RejectedRules

	detections = uniqueByPID(detections)
	result.Flagged = len(detections)

	observe.Notify(domain.PhaseActing)
	if len(detections) > 0 {
		result.Records = e.act(ctx, detections)
	}

	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

// act terminates every detection, keeping records in detection order.
func (e *Enforcer) act(ctx context.Context, detections []domain.Detection) []domain.TerminationRecord {
	records := make([]domain.TerminationRecord, len(detections))

	var g errgroup.Group
	g.SetLimit(e.maxConcurrent)
	for i, det := range detections {
		g.Go(func() error {
			records[i] = e.terminate(ctx, det)
			return nil
		})
	}
	_ = g.Wait()

	return records
}

func (e *Enforcer) terminate(ctx context.Context, det domain.Detection) domain.TerminationRecord {
	start := time.Now()
	proc := det.Process

	var result domain.ActionResult
	if e.config.DryRun {
		result = e.terminator.Simulate(ctx, proc.PID, e.config.GracePeriodSecs)
	} else {
		result = e.terminator.Terminate(ctx, proc.PID, e.config.GracePeriodSecs)
	}

	fields := []zap.Field{
		zap.Int("pid", proc.PID),
		zap.String("name", proc.Name),
		zap.String("rule", det.Rule.Name),
		zap.Stringer("priority", det.Rule.Priority),
		zap.Strings("reasons", policy.Reasons(det.Rule, proc)),
		zap.Int("matched_rules", len(det.Matched)),
		zap.Stringer("result", result),
		zap.Bool("dry_run", e.config.DryRun),
	}
	switch result {
	case domain.ResultSuccess, domain.ResultAlreadyDead:
		e.logger.Info("flagged process handled", fields...)
	default:
		e.logger.Warn("failed to terminate flagged process", fields...)
	}

	return domain.TerminationRecord{
		PID:        proc.PID,
		Name:       proc.Name,
		Rule:       det.Rule.Name,
		Priority:   det.Rule.Priority,
		Result:     result,
		DryRun:     e.config.DryRun,
		StartedAt:  start,
		DurationMs: time.Since(start).Milliseconds(),
	}
}

func (e *Enforcer) unprotected(procs []domain.Process) []domain.Process {
	if len(e.protected) == 0 {
		return procs
	}
	result := make([]domain.Process, 0, len(procs))
	for _, p := range procs {
		if e.protected[p.PID] {
			continue
		}
		result = append(result, p)
	}
	return result
}

// uniqueByPID keeps the first detection of every PID.
func uniqueByPID(detections []domain.Detection) []domain.Detection {
	seen := make(map[int]bool, len(detections))
	result := detections[:0:0]
	for _, d := range detections {
		if seen[d.Process.PID] {
			continue
		}
		seen[d.Process.PID] = true
		result = append(result, d)
	}
	return result
}

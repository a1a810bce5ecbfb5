package usecase

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/eliteGoblin/focusd/reaper/internal/domain"
)

const (
	// DefaultPollInterval is how often liveness is checked during the grace period.
	DefaultPollInterval = 200 * time.Millisecond
	// DefaultForceRecheckWindow bounds the wait for the kernel to reap a
	// process after SIGKILL.
	DefaultForceRecheckWindow = time.Second
)

// TerminatorOption customizes a Terminator.
type TerminatorOption func(*Terminator)

// WithPollInterval sets the liveness polling cadence.
func WithPollInterval(d time.Duration) TerminatorOption {
	return func(t *Terminator) {
		if d > 0 {
			t.pollInterval = d
		}
	}
}

// WithForceRecheckWindow sets how long to wait for exit after the force signal.
func WithForceRecheckWindow(d time.Duration) TerminatorOption {
	return func(t *Terminator) {
		if d >= 0 {
			t.forceRecheckWindow = d
		}
	}
}

// Terminator drives one process from flagged to a terminal ActionResult:
// graceful signal, grace-period wait, forceful signal, final re-check.
type Terminator struct {
	controller         domain.ProcessController
	logger             *zap.Logger
	pollInterval       time.Duration
	forceRecheckWindow time.Duration
	inflight           singleflight.Group
}

// NewTerminator creates a termination controller.
func NewTerminator(pc domain.ProcessController, logger *zap.Logger, opts ...TerminatorOption) *Terminator {
	t := &Terminator{
		controller:         pc,
		logger:             logger,
		pollInterval:       DefaultPollInterval,
		forceRecheckWindow: DefaultForceRecheckWindow,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Terminate signals pid and escalates until the process is gone or the
// escalation is exhausted. Concurrent calls for the same pid share a single
// attempt and its result.
//
// Cancelling ctx cuts the grace wait short and escalates straight to the
// force signal; the attempt itself always runs to a terminal outcome so a
// process is never left half-signaled.
func (t *Terminator) Terminate(ctx context.Context, pid int, graceSecs int64) domain.ActionResult {
	if pid <= 0 {
		return domain.ResultFailed
	}
	return t.once("kill:"+strconv.Itoa(pid), func() domain.ActionResult {
		return t.escalate(ctx, pid, graceSecs)
	})
}

// Simulate performs the liveness checks of Terminate without sending any
// signal and returns the outcome a real attempt is expected to produce.
func (t *Terminator) Simulate(ctx context.Context, pid int, graceSecs int64) domain.ActionResult {
	if pid <= 0 {
		return domain.ResultFailed
	}
	return t.once("dry:"+strconv.Itoa(pid), func() domain.ActionResult {
		if !t.controller.IsAlive(pid) {
			return domain.ResultAlreadyDead
		}
		t.logger.Info("dry run: would terminate process",
			zap.Int("pid", pid),
			zap.Int64("grace_period_secs", graceSecs))
		return domain.ResultSuccess
	})
}

// SafeKillWithGrace is true only when the process was confirmed gone by
// this attempt. Use Terminate to learn why it failed.
func (t *Terminator) SafeKillWithGrace(ctx context.Context, proc domain.Process, graceSecs int64) bool {
	return t.Terminate(ctx, proc.PID, graceSecs) == domain.ResultSuccess
}

func (t *Terminator) once(key string, fn func() domain.ActionResult) domain.ActionResult {
	v, _, _ := t.inflight.Do(key, func() (interface{}, error) {
		return fn(), nil
	})
	return v.(domain.ActionResult)
}

func (t *Terminator) escalate(ctx context.Context, pid int, graceSecs int64) domain.ActionResult {
	// Mitigates, but cannot rule out, PID reuse since the snapshot was taken.
	if !t.controller.IsAlive(pid) {
		return domain.ResultAlreadyDead
	}

	if err := t.controller.SendGraceful(pid); err != nil {
		return t.signalFailure(pid, "graceful", err)
	}

	if t.waitForExit(ctx, pid, graceSecs) {
		t.logger.Debug("process exited after graceful signal", zap.Int("pid", pid))
		return domain.ResultSuccess
	}

	t.logger.Info("process survived grace period, sending force kill",
		zap.Int("pid", pid),
		zap.Int64("grace_period_secs", graceSecs))

	if err := t.controller.SendForce(pid); err != nil {
		return t.signalFailure(pid, "force", err)
	}

	if t.recheck(pid) {
		return domain.ResultSuccess
	}

	t.logger.Warn("process survived force kill", zap.Int("pid", pid))
	return domain.ResultTimedOut
}

// waitForExit polls until pid is gone (true) or the grace period ends (false).
func (t *Terminator) waitForExit(ctx context.Context, pid int, graceSecs int64) bool {
	if graceSecs <= 0 {
		return !t.controller.IsAlive(pid)
	}

	grace := domain.Seconds(graceSecs)
	deadline := time.Now().Add(grace)
	interval := t.pollInterval
	if interval > grace {
		interval = grace
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if !t.controller.IsAlive(pid) {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}

		select {
		case <-ctx.Done():
			t.logger.Info("shutdown requested during grace period, escalating",
				zap.Int("pid", pid))
			return !t.controller.IsAlive(pid)
		case <-ticker.C:
		}
	}
}

// recheck gives the kernel a bounded window to reap pid after SIGKILL.
func (t *Terminator) recheck(pid int) bool {
	deadline := time.Now().Add(t.forceRecheckWindow)
	for {
		if !t.controller.IsAlive(pid) {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		if remaining > t.pollInterval {
			remaining = t.pollInterval
		}
		time.Sleep(remaining)
	}
}

func (t *Terminator) signalFailure(pid int, stage string, err error) domain.ActionResult {
	result := domain.ResultFailed
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		result = domain.ResultPermissionDenied
	case errors.Is(err, domain.ErrProcessNotFound):
		result = domain.ResultNotFound
	}

	t.logger.Warn("failed to signal process",
		zap.Int("pid", pid),
		zap.String("stage", stage),
		zap.Stringer("result", result),
		zap.Error(err))
	return result
}

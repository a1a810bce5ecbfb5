// Package daemon implements the reaper's long-running scan loop.
package daemon

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/reaper/internal/domain"
)

// TickRunner executes one scan-match-act cycle.
type TickRunner interface {
	RunTick(ctx context.Context, observe domain.PhaseObserver) domain.TickResult
}

// pruner is implemented by journals that can drop old records.
type pruner interface {
	Prune(keep int) (int64, error)
}

// Config holds reaper loop configuration.
type Config struct {
	CheckInterval     time.Duration // Sleep between ticks
	HeartbeatInterval time.Duration // How often to refresh the journal heartbeat
	PruneInterval     time.Duration // How often to trim the journal
	HistoryRetention  int           // Journal records to keep, 0 keeps all
}

// DefaultConfig returns default loop configuration.
func DefaultConfig() Config {
	return Config{
		CheckInterval:     domain.DefaultCheckIntervalSecs * time.Second,
		HeartbeatInterval: 30 * time.Second,
		PruneInterval:     time.Hour,
		HistoryRetention:  10000,
	}
}

// Reaper runs ticks until its context is cancelled.
// Ticks never overlap: the next one starts CheckInterval after the previous
// one finished.
type Reaper struct {
	config    Config
	runner    TickRunner
	journal   domain.Journal
	reporters []domain.OutcomeReporter
	daemon    domain.Daemon
	logger    *zap.Logger
	phase     atomic.Int32
}

// NewReaper creates the daemon loop. journal may be nil; when set it also
// receives every tick result.
func NewReaper(
	config Config,
	runner TickRunner,
	journal domain.Journal,
	reporters []domain.OutcomeReporter,
	daemon domain.Daemon,
	logger *zap.Logger,
) *Reaper {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultConfig().CheckInterval
	}
	all := make([]domain.OutcomeReporter, 0, len(reporters)+1)
	all = append(all, reporters...)
	if journal != nil {
		all = append(all, journal)
	}
	return &Reaper{
		config:    config,
		runner:    runner,
		journal:   journal,
		reporters: all,
		daemon:    daemon,
		logger:    logger,
	}
}

// Phase returns where the loop currently is.
func (r *Reaper) Phase() domain.Phase {
	return domain.Phase(r.phase.Load())
}

func (r *Reaper) setPhase(p domain.Phase) {
	r.phase.Store(int32(p))
}

// Run starts the reaper loop. This blocks until ctx is cancelled, in which
// case ctx.Err() is returned. The first tick doubles as a startup probe: if
// the process source cannot produce a snapshot, Run fails immediately.
func (r *Reaper) Run(ctx context.Context) error {
	defer r.setPhase(domain.PhaseStopped)

	r.logger.Info("reaper daemon started",
		zap.Int("pid", r.daemon.PID),
		zap.String("version", r.daemon.AppVersion),
		zap.Duration("check_interval", r.config.CheckInterval))

	r.heartbeat()
	r.prune()

	heartbeatTicker := time.NewTicker(nonZero(r.config.HeartbeatInterval, DefaultConfig().HeartbeatInterval))
	pruneTicker := time.NewTicker(nonZero(r.config.PruneInterval, DefaultConfig().PruneInterval))
	defer func() {
		heartbeatTicker.Stop()
		pruneTicker.Stop()
	}()

	first := true
	for {
		r.setPhase(domain.PhaseIdle)
		if err := ctx.Err(); err != nil {
			r.logger.Info("reaper daemon stopping")
			return err
		}

		result := r.runner.RunTick(ctx, r.setPhase)
		if first && result.Skipped {
			r.logger.Error("process source unusable", zap.Error(result.Err))
			return fmt.Errorf("process source unusable: %w", result.Err)
		}
		first = false

		r.report(ctx, result)

		r.setPhase(domain.PhaseSleeping)
		if !r.sleep(ctx, heartbeatTicker.C, pruneTicker.C) {
			r.logger.Info("reaper daemon stopping")
			return ctx.Err()
		}
	}
}

// sleep waits CheckInterval. It returns false if ctx was cancelled first.
func (r *Reaper) sleep(ctx context.Context, heartbeat, prune <-chan time.Time) bool {
	timer := time.NewTimer(r.config.CheckInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case <-heartbeat:
			r.heartbeat()
		case <-prune:
			r.prune()
		}
	}
}

// report hands the result to every reporter. Outcomes of a tick interrupted
// by shutdown are still delivered.
func (r *Reaper) report(ctx context.Context, result domain.TickResult) {
	reportCtx := context.WithoutCancel(ctx)
	for _, reporter := range r.reporters {
		if err := reporter.Report(reportCtx, result); err != nil {
			r.logger.Warn("failed to report tick result",
				zap.String("reporter", fmt.Sprintf("%T", reporter)),
				zap.Error(err))
		}
	}
}

func (r *Reaper) heartbeat() {
	if r.journal == nil {
		return
	}
	if err := r.journal.Heartbeat(r.daemon); err != nil {
		r.logger.Warn("failed to update heartbeat", zap.Error(err))
	}
}

func (r *Reaper) prune() {
	p, ok := r.journal.(pruner)
	if !ok || r.config.HistoryRetention <= 0 {
		return
	}
	deleted, err := p.Prune(r.config.HistoryRetention)
	if err != nil {
		r.logger.Warn("failed to prune journal", zap.Error(err))
		return
	}
	if deleted > 0 {
		r.logger.Debug("pruned journal", zap.Int64("deleted", deleted))
	}
}

func nonZero(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

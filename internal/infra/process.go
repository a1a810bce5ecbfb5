// Package infra implements infrastructure concerns (process table, signals, journal).
package infra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/eliteGoblin/focusd/reaper/internal/domain"
)

const bytesPerMB = 1024 * 1024

// ProcessTable implements domain.ProcessSource using gopsutil.
type ProcessTable struct {
	logger *zap.Logger
}

// NewProcessTable creates a process source backed by the OS process table.
func NewProcessTable(logger *zap.Logger) *ProcessTable {
	return &ProcessTable{logger: logger}
}

// Scan reads every process visible to the caller. Processes that exit while
// being read are skipped.
func (t *ProcessTable) Scan(ctx context.Context) ([]domain.Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	result := make([]domain.Process, 0, len(procs))
	skipped := 0
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		proc, ok := readProcess(ctx, p)
		if !ok {
			skipped++
			continue
		}
		result = append(result, proc)
	}

	if skipped > 0 {
		t.logger.Debug("process snapshot skipped processes",
			zap.Int("skipped", skipped),
			zap.Int("total", len(procs)))
	}
	return result, nil
}

// readProcess fails only when the name is unreadable, which means the
// process is gone. Other fields fall back to zero values.
func readProcess(ctx context.Context, p *process.Process) (domain.Process, bool) {
	name, err := p.NameWithContext(ctx)
	if err != nil || name == "" {
		return domain.Process{}, false
	}

	proc := domain.Process{
		PID:    int(p.Pid),
		Name:   name,
		Status: domain.StatusRunning,
	}

	if cmdline, err := p.CmdlineWithContext(ctx); err == nil {
		proc.Cmdline = cmdline
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		proc.CPUPercent = clampPercent(cpu)
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		proc.MemoryMB = int64(mem.RSS / bytesPerMB)
	}
	if status, err := p.StatusWithContext(ctx); err == nil && len(status) > 0 {
		proc.Status = mapStatus(status[0])
	}
	return proc, true
}

// clampPercent keeps multi-threaded usage, which gopsutil reports per core
// and can exceed 100, inside the domain range.
func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func mapStatus(s string) domain.ProcessStatus {
	switch s {
	case process.Sleep, process.Idle, process.Wait, process.Lock:
		return domain.StatusSleeping
	case process.Stop:
		return domain.StatusStopped
	case process.Zombie:
		return domain.StatusZombie
	default:
		return domain.StatusRunning
	}
}

// SignalController implements domain.ProcessController with POSIX signals.
type SignalController struct{}

// NewSignalController creates a new signal-based process controller.
func NewSignalController() *SignalController {
	return &SignalController{}
}

// SendGraceful sends SIGTERM.
func (c *SignalController) SendGraceful(pid int) error {
	return c.signal(pid, unix.SIGTERM)
}

// SendForce sends SIGKILL.
func (c *SignalController) SendForce(pid int) error {
	return c.signal(pid, unix.SIGKILL)
}

// IsAlive reports whether pid exists and has not become a zombie.
// Zombies have already exited and only wait to be reaped by their parent.
func (c *SignalController) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return false
	}

	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	status, err := p.Status()
	if err != nil {
		// Exists but unreadable: treat as alive, the signal will tell.
		return true
	}
	return len(status) == 0 || status[0] != process.Zombie
}

func (c *SignalController) signal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidPID, pid)
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return classifySignalError(pid, sig, err)
	}
	if err := p.SendSignal(sig); err != nil {
		return classifySignalError(pid, sig, err)
	}
	return nil
}

// classifySignalError maps OS errors onto the domain sentinels.
func classifySignalError(pid int, sig syscall.Signal, err error) error {
	name := unix.SignalName(sig)
	switch {
	case errors.Is(err, os.ErrProcessDone),
		errors.Is(err, unix.ESRCH),
		errors.Is(err, process.ErrorProcessNotRunning):
		return fmt.Errorf("send %s to pid %d: %w", name, pid, domain.ErrProcessNotFound)
	case errors.Is(err, unix.EPERM), errors.Is(err, os.ErrPermission):
		return fmt.Errorf("send %s to pid %d: %w", name, pid, domain.ErrPermissionDenied)
	default:
		return fmt.Errorf("send %s to pid %d: %w", name, pid, err)
	}
}

var (
	_ domain.ProcessSource     = (*ProcessTable)(nil)
	_ domain.ProcessController = (*SignalController)(nil)
)

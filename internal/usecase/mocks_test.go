package usecase

import (
	"context"
	"sync"

	"github.com/eliteGoblin/focusd/reaper/internal/domain"
)

// mockProcessSource implements domain.ProcessSource for testing
type mockProcessSource struct {
	procs   []domain.Process
	scanErr error
	scans   int
}

func (m *mockProcessSource) Scan(ctx context.Context) ([]domain.Process, error) {
	m.scans++
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	return m.procs, nil
}

// mockProcessController implements domain.ProcessController for testing.
// Processes die on the first signal they do not ignore.
type mockProcessController struct {
	mu          sync.Mutex
	alive       map[int]bool
	ignoreTerm  map[int]bool
	ignoreKill  map[int]bool
	gracefulErr map[int]error
	forceErr    map[int]error
	graceful    []int
	force       []int
	aliveChecks int
	block       chan struct{} // if set, SendGraceful waits for it to close
}

func newMockProcessController(alivePIDs ...int) *mockProcessController {
	m := &mockProcessController{
		alive:       make(map[int]bool),
		ignoreTerm:  make(map[int]bool),
		ignoreKill:  make(map[int]bool),
		gracefulErr: make(map[int]error),
		forceErr:    make(map[int]error),
	}
	for _, pid := range alivePIDs {
		m.alive[pid] = true
	}
	return m
}

func (m *mockProcessController) SendGraceful(pid int) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graceful = append(m.graceful, pid)
	if err := m.gracefulErr[pid]; err != nil {
		return err
	}
	if !m.ignoreTerm[pid] {
		m.alive[pid] = false
	}
	return nil
}

func (m *mockProcessController) SendForce(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.force = append(m.force, pid)
	if err := m.forceErr[pid]; err != nil {
		return err
	}
	if !m.ignoreKill[pid] {
		m.alive[pid] = false
	}
	return nil
}

func (m *mockProcessController) IsAlive(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aliveChecks++
	return m.alive[pid]
}

func (m *mockProcessController) signalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.graceful) + len(m.force)
}

func (m *mockProcessController) gracefulPIDs() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.graceful...)
}

func (m *mockProcessController) forcePIDs() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.force...)
}

func (m *mockProcessController) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.graceful) + len(m.force) + m.aliveChecks
}

func proc(pid int, name string, cpu float64, mem int64) domain.Process {
	return domain.Process{
		PID:        pid,
		Name:       name,
		Cmdline:    "/usr/bin/" + name,
		CPUPercent: cpu,
		MemoryMB:   mem,
		Status:     domain.StatusRunning,
	}
}

func rule(name string, prio domain.Priority) domain.DetectionRule {
	return domain.DetectionRule{
		Name:     name,
		Priority: prio,
		Enabled:  true,
	}
}

func cpuRule(name string, prio domain.Priority, maxCPU float64) domain.DetectionRule {
	r := rule(name, prio)
	r.MaxCPUPercent = maxCPU
	return r
}

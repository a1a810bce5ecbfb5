// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"fmt"
	"math/rand"
	"os/exec"
	"strconv"
	"time"
)

// Workload is a child process the tests can flag and terminate.
// Its command line carries a unique marker so rules match only this child.
type Workload struct {
	Marker string
	cmd    *exec.Cmd
	done   chan struct{}
}

// StartSleeper starts a child that exits on SIGTERM.
func StartSleeper() (*Workload, error) {
	marker := newMarker()
	return start(marker, exec.Command("sleep", marker))
}

// StartStubborn starts a child that ignores SIGTERM and only dies on SIGKILL.
// The ignored disposition survives exec, so the marker stays on one process.
func StartStubborn() (*Workload, error) {
	marker := newMarker()
	return start(marker, exec.Command("sh", "-c", fmt.Sprintf(`trap "" TERM; exec sleep %s`, marker)))
}

func start(marker string, cmd *exec.Cmd) (*Workload, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	w := &Workload{
		Marker: marker,
		cmd:    cmd,
		done:   make(chan struct{}),
	}
	// Reap the child so it never lingers as a zombie.
	go func() {
		_ = cmd.Wait()
		close(w.done)
	}()
	// Give sh time to install the trap and exec.
	time.Sleep(100 * time.Millisecond)
	return w, nil
}

// PID returns the child's process ID.
func (w *Workload) PID() int {
	return w.cmd.Process.Pid
}

// CmdlinePattern matches this workload's command line and nothing else.
func (w *Workload) CmdlinePattern() string {
	return "sleep " + w.Marker
}

// Exited reports whether the child has terminated.
func (w *Workload) Exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// WaitExit waits up to timeout for the child to terminate.
func (w *Workload) WaitExit(timeout time.Duration) bool {
	select {
	case <-w.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Stop kills the child if it is still running.
func (w *Workload) Stop() {
	if !w.Exited() {
		_ = w.cmd.Process.Kill()
	}
	<-w.done
}

// newMarker returns a sleep duration unlikely to be used by anything else.
func newMarker() string {
	return strconv.Itoa(700000 + rand.Intn(200000))
}

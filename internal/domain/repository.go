package domain

import "context"

// ProcessSource reads the OS process table.
// Implementation: uses gopsutil for cross-platform support.
type ProcessSource interface {
	// Scan returns one full snapshot. Ordering across calls is not stable.
	Scan(ctx context.Context) ([]Process, error)
}

// ProcessController delivers signals and probes liveness.
// Errors must wrap ErrPermissionDenied or ErrProcessNotFound when they apply.
type ProcessController interface {
	// SendGraceful asks the process to exit (SIGTERM).
	SendGraceful(pid int) error

	// SendForce kills the process (SIGKILL).
	SendForce(pid int) error

	// IsAlive checks if a PID exists and is not a zombie.
	IsAlive(pid int) bool
}

// RuleStore provides access to the configured detection rules.
type RuleStore interface {
	// GetAll returns every registered rule, enabled or not.
	GetAll() []DetectionRule

	// GetByName returns the rule with the given name.
	GetByName(name string) (*DetectionRule, error)

	// List returns rule names in registration order.
	List() []string
}

// OutcomeReporter receives the result of every tick.
type OutcomeReporter interface {
	Report(ctx context.Context, result TickResult) error
}

// Journal persists termination outcomes and daemon liveness.
// Implementation: SQLCipher encrypted database.
type Journal interface {
	OutcomeReporter

	// Recent returns the newest records first.
	Recent(limit int) ([]TerminationRecord, error)

	// Heartbeat stores the daemon's PID and refreshes its timestamp.
	Heartbeat(daemon Daemon) error

	// Status returns the last heartbeat, or nil if the daemon never ran.
	Status() (*DaemonStatus, error)

	// Close releases resources (e.g., database connection).
	Close() error
}

// KeyProvider holds the journal encryption key.
type KeyProvider interface {
	// LoadKey returns the stored key, or ErrJournalKeyCorrupt if it is unusable.
	LoadKey() ([]byte, error)

	// StoreKey persists a new key. An existing key is never replaced.
	StoreKey(key []byte) error

	KeyExists() bool
}

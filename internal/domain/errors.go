package domain

import "errors"

var (
	ErrInvalidPID    = errors.New("invalid process ID")
	ErrInvalidCPU    = errors.New("cpu usage out of range")
	ErrInvalidMemory = errors.New("negative memory usage")
	ErrInvalidRule   = errors.New("invalid detection rule")
	ErrInvalidConfig = errors.New("invalid config")

	// Returned by ProcessController implementations.
	ErrProcessNotFound  = errors.New("process not found")
	ErrPermissionDenied = errors.New("permission denied")

	ErrRuleNotFound = errors.New("rule not found")

	// Returned while opening the journal.
	ErrJournalKeyMissing  = errors.New("journal key file missing for existing journal")
	ErrJournalKeyCorrupt  = errors.New("journal key file is corrupt")
	ErrJournalKeyMismatch = errors.New("journal key does not open journal")
)

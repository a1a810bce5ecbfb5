package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// RunMode describes whether the daemon runs with root privileges.
type RunMode string

const (
	// ModeUser can only signal the invoking user's processes.
	ModeUser RunMode = "user"
	// ModeSystem runs as root and can signal any process.
	ModeSystem RunMode = "system"
)

const (
	// SystemConfigPath is the config file searched first when running as root.
	SystemConfigPath = "/etc/reaper/reaper.yaml"
	systemDataDir    = "/var/lib/reaper"
)

// Paths holds the on-disk locations that depend on the run mode.
type Paths struct {
	Mode    RunMode
	DataDir string // encrypted journal and its key
	IsRoot  bool
}

// DetectPaths determines locations based on effective UID.
func DetectPaths() *Paths {
	if os.Geteuid() == 0 {
		return &Paths{
			Mode:    ModeSystem,
			DataDir: systemDataDir,
			IsRoot:  true,
		}
	}
	return UserPaths()
}

// UserPaths returns user mode locations regardless of current euid.
// Under sudo the invoking user's home is used.
func UserPaths() *Paths {
	return &Paths{
		Mode:    ModeUser,
		DataDir: filepath.Join(GetRealUserHome(), ".reaper"),
		IsRoot:  os.Geteuid() == 0,
	}
}

// String returns a human-readable description of the mode.
func (m RunMode) String() string {
	switch m {
	case ModeSystem:
		return "system (root, all processes)"
	case ModeUser:
		return "user (own processes only)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
// Under sudo, os.UserHomeDir() returns root's home, so SUDO_USER is consulted first.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}

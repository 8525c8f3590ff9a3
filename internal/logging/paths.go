package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.findx/logs/). Falls
// back to a temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".findx", "logs")
	}
	return filepath.Join(home, ".findx", "logs")
}

// DefaultLogPath returns the default findx log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "findx.log")
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}

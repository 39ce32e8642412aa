// Package pid guards against two collectors running against the same
// store by way of a PID file.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/sensorsd/internal/errors"
)

const defaultFile = "sensorsd.pid"

// DefaultPath returns the PID file location used when none is configured.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), defaultFile)
}

func resolve(path string) string {
	if path == "" {
		return DefaultPath()
	}
	return path
}

// Write records the current process ID at path, or DefaultPath when path is
// empty. A file left behind by a dead process is replaced.
func Write(path string) error {
	errFactory := errors.New()
	path = resolve(path)

	if running, err := owner(path); err != nil {
		return errFactory.Wrap(errors.ErrPIDFile, err)
	} else if running != 0 {
		return errFactory.WithData(errors.ErrAlreadyRunning, running)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errFactory.Wrap(errors.ErrPIDFile, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrPIDFile, err)
	}

	return nil
}

// owner returns the PID of a live process holding path, or 0.
func owner(path string) (int, error) {
	bytes, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(bytes)))
	if err != nil || pid <= 0 {
		// Garbage is treated as stale.
		return 0, nil
	}

	if pid == os.Getpid() {
		return 0, nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, nil
	}

	if err := process.Signal(syscall.Signal(0)); err != nil {
		return 0, nil
	}

	return pid, nil
}

// Remove deletes the PID file at path, or DefaultPath when path is empty.
func Remove(path string) error {
	path = resolve(path)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrPIDFile, err)
	}

	return nil
}

// Package procutil implements PID-file locking and liveness probing for
// the Trader subprocess model: a Trader writes its PID file on startup
// and removes it on clean shutdown; the Manager's TraderProxy uses the
// same file to decide whether a previously spawned subprocess is still
// alive. Grounded on original_source/src/manager/core/trader_proxy.py's
// pid_file handling (exists + os.kill(pid, 0) liveness probe, stale-file
// reaping, SIGTERM-then-SIGKILL stop sequence).
package procutil

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// PidFilePath returns the conventional PID file path for accountID under
// socketDir, matching the qtrader_<account_id>.pid convention named in
// spec.md §6.4.
func PidFilePath(socketDir, accountID string) string {
	return socketDir + "/qtrader_" + accountID + ".pid"
}

// SocketPath returns the conventional IPC socket path for accountID.
func SocketPath(socketDir, accountID string) string {
	return socketDir + "/qtrader_" + accountID + ".sock"
}

// IsProcessAlive reports whether pid names a running process, using the
// signal-0 probe idiom (os.kill(pid, 0) sends no signal but still
// reports ESRCH if the process is gone).
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// ReadPidFile returns the pid recorded at path, or 0 if the file does
// not exist. A malformed file is treated as not-present (0, nil) so
// startup can proceed and overwrite it rather than refusing to start.
func ReadPidFile(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("procutil: read pid file %s: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, nil
	}
	return pid, nil
}

// AcquireOrReap checks path for a live owner. If the recorded PID is
// still alive, it returns an error (the caller must refuse to start). If
// the PID file is absent or stale (process no longer alive), it is
// removed so startup can proceed, per spec.md §4.8: only a *live*
// conflicting PID is a startup error.
func AcquireOrReap(path string) error {
	pid, err := ReadPidFile(path)
	if err != nil {
		return err
	}
	if pid == 0 {
		return nil
	}
	if IsProcessAlive(pid) {
		return fmt.Errorf("procutil: pid file %s names running process %d", path, pid)
	}
	_ = os.Remove(path)
	return nil
}

// WritePidFile writes the current process's PID to path.
func WritePidFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// RemovePidFile removes path, ignoring a not-exists error.
func RemovePidFile(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("procutil: remove pid file %s: %w", path, err)
	}
	return nil
}

// StopProcess sends SIGTERM to pid and waits up to graceTimeout for it
// to exit (polled via the signal-0 probe), escalating to SIGKILL if it
// is still alive once the grace period elapses.
func StopProcess(pid int, graceTimeout time.Duration) error {
	if !IsProcessAlive(pid) {
		return nil
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("procutil: sigterm pid %d: %w", pid, err)
	}

	deadline := time.Now().Add(graceTimeout)
	for time.Now().Before(deadline) {
		if !IsProcessAlive(pid) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	if IsProcessAlive(pid) {
		if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
			return fmt.Errorf("procutil: sigkill pid %d: %w", pid, err)
		}
	}
	return nil
}

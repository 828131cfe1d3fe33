package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const (
	pidFilePerms = 0o644
	pidDirPerms  = 0o755
)

// errDaemonNotRunning is returned when no live watch daemon owns the PID file.
var errDaemonNotRunning = errors.New("no running spmirror sync process")

// acquirePIDFile creates path, takes a non-blocking exclusive flock on it and
// writes the current PID. The lock is what makes the daemon single-instance;
// the PID is for reload and status. release drops the lock and removes the
// file.
func acquirePIDFile(path string) (release func(), err error) {
	if path == "" {
		return nil, fmt.Errorf("PID file path is empty: cannot determine data directory")
	}

	if err := os.MkdirAll(filepath.Dir(path), pidDirPerms); err != nil {
		return nil, fmt.Errorf("creating PID file directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePerms)
	if err != nil {
		return nil, fmt.Errorf("opening PID file: %w", err)
	}

	fail := func(err error) (func(), error) {
		f.Close()
		return nil, err
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return fail(fmt.Errorf("another spmirror sync is already running (could not lock %s): %w", path, err))
	}

	if err := f.Truncate(0); err != nil {
		return fail(fmt.Errorf("truncating PID file: %w", err))
	}

	if _, err := f.WriteString(strconv.Itoa(os.Getpid()) + "\n"); err != nil {
		return fail(fmt.Errorf("writing PID file: %w", err))
	}

	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("syncing PID file: %w", err))
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

// readPID returns the PID recorded in path.
func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file %s", path)
	}

	return pid, nil
}

// daemonPID returns the PID of the live daemon owning pidPath. A PID file
// left behind by a dead process is removed.
func daemonPID(pidPath string) (int, error) {
	pid, err := readPID(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w (no PID file at %s)", errDaemonNotRunning, pidPath)
		}

		return 0, err
	}

	// Signal 0 probes for existence without delivering anything.
	if err := syscall.Kill(pid, syscall.Signal(0)); err != nil && !errors.Is(err, syscall.EPERM) {
		os.Remove(pidPath)
		return 0, fmt.Errorf("%w (PID %d is gone, stale PID file removed)", errDaemonNotRunning, pid)
	}

	return pid, nil
}

// signalDaemon sends sig to the daemon owning pidPath.
func signalDaemon(pidPath string, sig syscall.Signal) (int, error) {
	pid, err := daemonPID(pidPath)
	if err != nil {
		return 0, err
	}

	if err := syscall.Kill(pid, sig); err != nil {
		return 0, fmt.Errorf("sending %s to daemon (PID %d): %w", sig, pid, err)
	}

	return pid, nil
}

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

// pidFilePermissions: owner rw, group/other r.
const pidFilePermissions = 0o644

// pidFileName sits next to the database so one watcher owns one mirror.
const pidFileName = "watch.pid"

// lockFileName is held by every process that runs passes against a mirror.
const lockFileName = "mirror.lock"

// errNoDaemon is returned when no live watcher owns the PID file.
var errNoDaemon = errors.New("no running watcher")

// errMirrorBusy is returned when another process holds the mirror lock.
var errMirrorBusy = errors.New("another sync or watch is already running")

// pidFilePath returns the watcher PID file for a database path.
func pidFilePath(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), pidFileName)
}

func lockFilePath(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), lockFileName)
}

// lockMirror takes an exclusive flock on the mirror's lock file. It never
// waits: a held lock fails with errMirrorBusy. The returned release drops
// the lock; the file itself is left in place.
func lockMirror(dbPath string) (release func(), err error) {
	if dbPath == "" {
		return nil, errors.New("database path is empty, cannot lock mirror")
	}

	path := lockFilePath(dbPath)

	if mkdirErr := os.MkdirAll(filepath.Dir(path), dataDirPermissions); mkdirErr != nil {
		return nil, fmt.Errorf("creating lock file directory: %w", mkdirErr)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		return nil, fmt.Errorf("%w (could not lock %s)", errMirrorBusy, path)
	}

	return func() { f.Close() }, nil
}

// writePIDFile writes the current process ID to path and acquires an exclusive
// flock. Returns a cleanup function that removes the file and releases the
// lock. If the lock cannot be acquired, another watcher is already running.
func writePIDFile(path string) (cleanup func(), err error) {
	if path == "" {
		return nil, errors.New("PID file path is empty, cannot determine data directory")
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(path), dataDirPermissions); mkdirErr != nil {
		return nil, fmt.Errorf("creating PID file directory: %w", mkdirErr)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening PID file: %w", err)
	}

	// Non-blocking exclusive lock: fails immediately if another process holds it.
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		return nil, fmt.Errorf("another watcher is already running (could not lock %s)", path)
	}

	if err := writePID(f); err != nil {
		f.Close()

		return nil, err
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncating PID file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}

	// Sync so readers see the PID immediately.
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing PID file: %w", err)
	}

	return nil
}

// readPIDFile reads the PID from the given file path.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in %s: %w", path, err)
	}

	return pid, nil
}

// liveDaemon returns the process named by the PID file if it is alive.
// Stale PID files (process dead) are removed and reported as errNoDaemon.
func liveDaemon(pidPath string) (*os.Process, error) {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w (no PID file at %s)", errNoDaemon, pidPath)
		}

		return nil, err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("finding process %d: %w", pid, err)
	}

	// Signal 0 checks liveness without delivering anything.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(pidPath)

		return nil, fmt.Errorf("%w (PID %d is gone, stale PID file removed)", errNoDaemon, pid)
	}

	return proc, nil
}

// sendSIGHUP asks the running watcher to reload its config.
func sendSIGHUP(pidPath string) (int, error) {
	proc, err := liveDaemon(pidPath)
	if err != nil {
		return 0, err
	}

	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return 0, fmt.Errorf("sending SIGHUP to watcher (PID %d): %w", proc.Pid, err)
	}

	return proc.Pid, nil
}

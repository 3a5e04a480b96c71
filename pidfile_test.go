package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFilePath_NextToDatabase(t *testing.T) {
	assert.Equal(t, filepath.Join("/var", "lib", "ultima", "watch.pid"),
		pidFilePath(filepath.Join("/var", "lib", "ultima", "mirror.db")))
}

func TestWritePIDFile_WritesAndCleansUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "watch.pid")

	cleanup, err := writePIDFile(path)
	require.NoError(t, err)

	pid, err := readPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	cleanup()

	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWritePIDFile_SecondWriterFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.pid")

	cleanup, err := writePIDFile(path)
	require.NoError(t, err)
	defer cleanup()

	// flock is per open file description, so a second open in the same
	// process still conflicts.
	_, err = writePIDFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestWritePIDFile_EmptyPath(t *testing.T) {
	_, err := writePIDFile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestReadPIDFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid\n"), 0o600))

	_, err := readPIDFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PID")
}

func TestLiveDaemon_MissingFile(t *testing.T) {
	_, err := liveDaemon(filepath.Join(t.TempDir(), "watch.pid"))
	require.ErrorIs(t, err, errNoDaemon)
}

func TestLiveDaemon_StaleFileRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.pid")

	// PIDs this large are above every kernel's pid_max.
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(1<<30)+"\n"), 0o600))

	_, err := liveDaemon(path)
	require.ErrorIs(t, err, errNoDaemon)

	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestSendSIGHUP_SignalsLiveProcess(t *testing.T) {
	trapSIGHUP(t)

	path := filepath.Join(t.TempDir(), "watch.pid")

	cleanup, err := writePIDFile(path)
	require.NoError(t, err)
	defer cleanup()

	pid, err := sendSIGHUP(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestSendSIGHUP_NoDaemon(t *testing.T) {
	_, err := sendSIGHUP(filepath.Join(t.TempDir(), "watch.pid"))
	require.ErrorIs(t, err, errNoDaemon)
}

func TestLockMirror_SecondHolderFailsFast(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "mirror.db")

	release, err := lockMirror(dbPath)
	require.NoError(t, err)

	_, err = lockMirror(dbPath)
	require.ErrorIs(t, err, errMirrorBusy)

	release()

	again, err := lockMirror(dbPath)
	require.NoError(t, err)
	again()
}

func TestLockMirror_EmptyPath(t *testing.T) {
	_, err := lockMirror("")
	require.Error(t, err)
}

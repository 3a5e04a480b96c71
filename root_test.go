package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultimaforsan/ultima/internal/collection"
	"github.com/ultimaforsan/ultima/internal/config"
	"github.com/ultimaforsan/ultima/internal/sync"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests set
// flags through cmd.SetArgs so Cobra parses them.

func TestBuildLogger_Levels(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		level  string
		flags  CLIFlags
		wantOn slog.Level
		offAt  slog.Level
	}{
		{"config info", "info", CLIFlags{}, slog.LevelInfo, slog.LevelDebug},
		{"config warn", "warn", CLIFlags{}, slog.LevelWarn, slog.LevelInfo},
		{"verbose wins", "error", CLIFlags{Verbose: true}, slog.LevelDebug, slog.LevelDebug - 1},
		{"quiet wins", "debug", CLIFlags{Quiet: true}, slog.LevelError, slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Logging.LogLevel = tt.level

			logger := buildLogger(&bytes.Buffer{}, cfg, tt.flags)
			assert.True(t, logger.Handler().Enabled(ctx, tt.wantOn))
			assert.False(t, logger.Handler().Enabled(ctx, tt.offAt))
		})
	}
}

func TestBuildLogger_Formats(t *testing.T) {
	cfg := config.DefaultConfig()

	// A buffer is not a terminal, so auto picks JSON.
	var auto bytes.Buffer
	buildLogger(&auto, cfg, CLIFlags{}).Info("hello")
	assert.True(t, json.Valid(bytes.TrimSpace(auto.Bytes())))

	cfg.Logging.LogFormat = "text"

	var text bytes.Buffer
	buildLogger(&text, cfg, CLIFlags{}).Info("hello")
	assert.Contains(t, text.String(), "msg=hello")

	var nilCfg bytes.Buffer
	buildLogger(&nilCfg, nil, CLIFlags{}).Info("hello")
	assert.NotEmpty(t, nilCfg.String())
}

func TestMustCLIContext_PanicsWhenMissing(t *testing.T) {
	assert.Panics(t, func() { mustCLIContext(context.Background()) })
}

func TestNewRootCmd_RegistersCommands(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{
		"login", "logout", "sync", "watch", "reload", "status",
		"calendars", "events", "edit", "export", "reset-cursor",
	} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

// isolateEnv points every config lookup at a temp dir.
func isolateEnv(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvDB, "")
	t.Setenv(config.EnvLogLevel, "")

	return dir
}

func TestRootCmd_ResetCursorEndToEnd(t *testing.T) {
	dir := isolateEnv(t)
	dbPath := filepath.Join(dir, "mirror.db")

	cc := newTestCLIContext(t)
	cc.Cfg.Store.DBPath = dbPath
	seedMirror(t, cc)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--db", dbPath, "--quiet", "reset-cursor", "events:cal-1"})
	require.NoError(t, cmd.Execute())

	store, err := sync.NewSQLiteStore(context.Background(), dbPath, testLogger(t))
	require.NoError(t, err)
	defer store.Close()

	cur, err := store.GetCursor(context.Background(), collection.Events("cal-1"))
	require.NoError(t, err)
	assert.Empty(t, cur)

	cur, err = store.GetCursor(context.Background(), collection.Events("cal-2"))
	require.NoError(t, err)
	assert.Equal(t, "ev2-tok", cur)

	cmd = newRootCmd()
	cmd.SetArgs([]string{"--db", dbPath, "--quiet", "reset-cursor"})
	require.NoError(t, cmd.Execute())

	cursors, err := store.ListCursors(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cursors)
}

func TestRootCmd_InvalidConfigFails(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[sync]\npoll_interval = \"1s\"\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "calendars"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestRootCmd_ResetCursorRejectsBadCollection(t *testing.T) {
	dir := isolateEnv(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--db", filepath.Join(dir, "m.db"), "reset-cursor", "nope"})

	require.ErrorIs(t, cmd.Execute(), collection.ErrInvalidRef)
}

func TestRootCmd_SyncFailsFastWhileMirrorLocked(t *testing.T) {
	dir := isolateEnv(t)
	dbPath := filepath.Join(dir, "mirror.db")

	release, err := lockMirror(dbPath)
	require.NoError(t, err)
	defer release()

	for _, sub := range []string{"sync", "watch"} {
		cmd := newRootCmd()
		cmd.SetArgs([]string{"--db", dbPath, "--quiet", sub})

		require.ErrorIs(t, cmd.Execute(), errMirrorBusy, sub)
	}

	// Neither command got as far as opening the database.
	_, statErr := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(statErr))
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/ultimaforsan/ultima/internal/tokenfile"
)

func TestTokenState(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	missing := filepath.Join(dir, "missing.json")

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("{"), 0o600))

	expired := filepath.Join(dir, "expired.json")
	require.NoError(t, tokenfile.Save(expired, &oauth2.Token{AccessToken: "a", Expiry: past}, nil))

	refreshable := filepath.Join(dir, "refreshable.json")
	require.NoError(t, tokenfile.Save(refreshable,
		&oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: past}, nil))

	noExpiry := filepath.Join(dir, "no-expiry.json")
	require.NoError(t, tokenfile.Save(noExpiry, &oauth2.Token{AccessToken: "a"}, nil))

	tests := []struct {
		name       string
		path       string
		want       string
		wantExpiry bool
	}{
		{"missing", missing, tokenStateMissing, false},
		{"unreadable", garbage, tokenStateInvalid, false},
		{"expired without refresh", expired, tokenStateExpired, true},
		{"expired with refresh", refreshable, tokenStateValid, true},
		{"no expiry", noExpiry, tokenStateValid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, expiry := tokenState(tt.path, now)
			assert.Equal(t, tt.want, state)
			assert.Equal(t, tt.wantExpiry, expiry != nil)
		})
	}
}

func TestBuildStatus_AfterPass(t *testing.T) {
	cc := newTestCLIContext(t)
	seedMirror(t, cc)

	out, err := buildStatus(context.Background(), cc, defaultRunHistory)
	require.NoError(t, err)

	assert.Equal(t, tokenStateMissing, out.TokenState)
	assert.Equal(t, cc.Cfg.Store.DBPath, out.DBPath)
	assert.Positive(t, out.SchemaVersion)
	assert.Zero(t, out.WatcherPID)

	assert.Equal(t, statusStats{Calendars: 2, SyncEnabled: 2, Events: 3}, out.Stats)
	assert.Len(t, out.Cursors, 3)
	require.Len(t, out.Runs, 3)

	for _, r := range out.Runs {
		assert.Equal(t, "completed", r.State)
		assert.Empty(t, r.Error)
	}

	limited, err := buildStatus(context.Background(), cc, 1)
	require.NoError(t, err)
	assert.Len(t, limited.Runs, 1)
}

func TestPrintStatusText(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	s := &statusOutput{
		TokenState:    tokenStateValid,
		DBPath:        "/tmp/mirror.db",
		SchemaVersion: 1,
		WatcherPID:    4242,
		Stats:         statusStats{Calendars: 2, SyncEnabled: 1, Events: 5, DirtyEvents: 1, Tombstones: 2},
		Cursors: []statusCursor{
			{Collection: "calendars", UpdatedAt: now.Add(-time.Minute)},
		},
		Runs: []statusRun{
			{Collection: "events:cal-1", State: "failed", StartedAt: now, Fetched: 3, Error: "upstream down"},
		},
	}

	var buf bytes.Buffer
	printStatusText(&buf, s, now)

	text := buf.String()
	assert.Contains(t, text, "Token:     valid")
	assert.Contains(t, text, "/tmp/mirror.db (schema v1)")
	assert.Contains(t, text, "running (PID 4242)")
	assert.Contains(t, text, "Calendars: 2 (1 selected)")
	assert.Contains(t, text, "Events:    5 (1 edited locally, 2 tombstones)")
	assert.Contains(t, text, "CURSOR")
	assert.Contains(t, text, "upstream down")
}

func TestPrintStatusText_Empty(t *testing.T) {
	var buf bytes.Buffer
	printStatusText(&buf, &statusOutput{TokenState: tokenStateMissing}, time.Now())

	assert.Contains(t, buf.String(), "Watcher:   not running")
	assert.NotContains(t, buf.String(), "CURSOR")
	assert.NotContains(t, buf.String(), "STARTED")
}

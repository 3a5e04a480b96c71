package main

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	stdsync "sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ultimaforsan/ultima/internal/collection"
	"github.com/ultimaforsan/ultima/internal/config"
	"github.com/ultimaforsan/ultima/internal/gcal"
	"github.com/ultimaforsan/ultima/internal/sync"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T.Log to io.Writer for slog output.
type testLogWriter struct {
	t *testing.T
}

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// newTestCLIContext returns a CLIContext whose files all live in a temp dir.
func newTestCLIContext(t *testing.T) *CLIContext {
	t.Helper()

	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Google.CredentialsFile = filepath.Join(dir, "credentials.json")
	cfg.Google.TokenFile = filepath.Join(dir, "token.json")
	cfg.Store.DBPath = filepath.Join(dir, "data", "mirror.db")

	return &CLIContext{
		Cfg:     cfg,
		CfgPath: filepath.Join(dir, "config.toml"),
		Logger:  testLogger(t),
	}
}

var errUpstreamDown = errors.New("upstream down")

// staticSource answers every fetch of a collection with one final page, or
// with an error.
type staticSource struct {
	mu     stdsync.Mutex
	pages  map[string]*gcal.Page
	errs   map[string]error
	fetchN map[string]int
}

func newStaticSource() *staticSource {
	return &staticSource{
		pages:  make(map[string]*gcal.Page),
		errs:   make(map[string]error),
		fetchN: make(map[string]int),
	}
}

func (s *staticSource) FetchPage(_ context.Context, ref collection.Ref, _, _ string) (*gcal.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetchN[ref.String()]++

	if err := s.errs[ref.String()]; err != nil {
		return nil, err
	}

	if p, ok := s.pages[ref.String()]; ok {
		return p, nil
	}

	return &gcal.Page{NextSyncCursor: "empty"}, nil
}

func (s *staticSource) fetches(ref string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fetchN[ref]
}

// sampleSource lists two calendars with one and two events.
func sampleSource() *staticSource {
	src := newStaticSource()

	src.pages["calendars"] = &gcal.Page{
		Calendars: []gcal.CalendarEntry{
			{ID: "cal-1", Summary: "Work", AccessRole: "owner"},
			{ID: "cal-2", Summary: "Home", AccessRole: "reader"},
		},
		NextSyncCursor: "cal-tok",
	}

	src.pages["events:cal-1"] = &gcal.Page{
		Events: []gcal.EventEntry{
			timedEntry("ev-1", "Standup", "2024-03-04T09:00:00Z", "2024-03-04T09:15:00Z"),
		},
		NextSyncCursor: "ev1-tok",
	}

	src.pages["events:cal-2"] = &gcal.Page{
		Events: []gcal.EventEntry{
			timedEntry("ev-a", "Dentist", "2024-03-05T14:00:00Z", "2024-03-05T15:00:00Z"),
			{
				ID:      "ev-b",
				Summary: "Holiday",
				Start:   &gcal.EventTime{Date: "2024-03-08"},
				End:     &gcal.EventTime{Date: "2024-03-09"},
			},
		},
		NextSyncCursor: "ev2-tok",
	}

	return src
}

func timedEntry(id, title, start, end string) gcal.EventEntry {
	return gcal.EventEntry{
		ID:      id,
		Summary: title,
		Start:   &gcal.EventTime{DateTime: start},
		End:     &gcal.EventTime{DateTime: end},
	}
}

// newTestSession wires a session over src in cc's temp dir.
func newTestSession(t *testing.T, cc *CLIContext, src sync.ListingSource) *syncSession {
	t.Helper()

	s, err := assembleSession(context.Background(), cc.Cfg, src, cc.Logger)
	require.NoError(t, err)

	t.Cleanup(s.Close)

	return s
}

// seedMirror runs one pass of sampleSource into cc's database.
func seedMirror(t *testing.T, cc *CLIContext) {
	t.Helper()

	s, err := assembleSession(context.Background(), cc.Cfg, sampleSource(), cc.Logger)
	require.NoError(t, err)

	_, err = s.Engine.RunPass(context.Background())
	require.NoError(t, err)

	s.Close()
}

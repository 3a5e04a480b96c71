package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ultimaforsan/ultima/internal/collection"
	"github.com/ultimaforsan/ultima/internal/gcal"
)

// fixedNow is the clock used by stores and engines under test.
var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

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

// newTestStore opens a store in a temp dir, closed on cleanup.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "mirror.db"), testLogger(t))
	require.NoError(t, err)

	s.nowFunc = func() time.Time { return fixedNow }

	t.Cleanup(func() { s.Close() })

	return s
}

// newTestEngine wires an engine over src and a fresh store.
func newTestEngine(t *testing.T, src ListingSource) (*Engine, *SQLiteStore) {
	t.Helper()

	store := newTestStore(t)

	e, err := NewEngine(&EngineConfig{Source: src, Store: store, Logger: testLogger(t)})
	require.NoError(t, err)

	e.nowFunc = func() time.Time { return fixedNow }

	return e, store
}

// fetchCall records one FetchPage invocation.
type fetchCall struct {
	Ref        collection.Ref
	SyncCursor string
	PageCursor string
}

type fakeResponse struct {
	page *gcal.Page
	err  error
}

// fakeSource replays queued responses per collection in order and records
// every call. A fetch with nothing queued fails the drain.
type fakeSource struct {
	mu        stdsync.Mutex
	responses map[collection.Ref][]fakeResponse
	calls     []fetchCall

	// entered and release, when set, block every fetch until release is
	// closed, signalling entered first.
	entered chan struct{}
	release chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{responses: make(map[collection.Ref][]fakeResponse)}
}

func (f *fakeSource) queuePages(ref collection.Ref, pages ...*gcal.Page) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range pages {
		f.responses[ref] = append(f.responses[ref], fakeResponse{page: p})
	}
}

func (f *fakeSource) queueError(ref collection.Ref, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.responses[ref] = append(f.responses[ref], fakeResponse{err: err})
}

func (f *fakeSource) FetchPage(ctx context.Context, ref collection.Ref, syncCursor, pageCursor string) (*gcal.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{Ref: ref, SyncCursor: syncCursor, PageCursor: pageCursor})

	queue := f.responses[ref]
	if len(queue) == 0 {
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: no response queued for %s", gcal.ErrRemoteUnavailable, ref)
	}

	next := queue[0]
	f.responses[ref] = queue[1:]
	entered, release := f.entered, f.release
	f.mu.Unlock()

	if release != nil {
		entered <- struct{}{}

		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return next.page, next.err
}

func (f *fakeSource) callsFor(ref collection.Ref) []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []fetchCall

	for _, c := range f.calls {
		if c.Ref == ref {
			out = append(out, c)
		}
	}

	return out
}

// invalidCursorErr mimics what gcal returns for HTTP 410.
func invalidCursorErr() error {
	return &gcal.APIError{StatusCode: 410, Reason: "fullSyncRequired", Message: "gone", Err: gcal.ErrInvalidCursor}
}

var errNetwork = fmt.Errorf("%w: dial tcp: connection refused", gcal.ErrRemoteUnavailable)

func calEntry(id string) gcal.CalendarEntry {
	return gcal.CalendarEntry{
		ID:              id,
		Summary:         "Calendar " + id,
		AccessRole:      "owner",
		BackgroundColor: "#336699",
		ETag:            `"` + id + `-v1"`,
	}
}

func evEntry(id string) gcal.EventEntry {
	return gcal.EventEntry{
		ID:      id,
		Summary: "Event " + id,
		Status:  "confirmed",
		ETag:    `"` + id + `-v1"`,
		Start:   &gcal.EventTime{DateTime: "2024-03-04T09:00:00Z"},
		End:     &gcal.EventTime{DateTime: "2024-03-04T10:00:00Z"},
	}
}

func calPage(next, sync string, entries ...gcal.CalendarEntry) *gcal.Page {
	return &gcal.Page{Calendars: entries, NextPageCursor: next, NextSyncCursor: sync}
}

func evPage(next, sync string, entries ...gcal.EventEntry) *gcal.Page {
	return &gcal.Page{Events: entries, NextPageCursor: next, NextSyncCursor: sync}
}

// seedCalendar inserts a live calendar directly.
func seedCalendar(t *testing.T, s *SQLiteStore, id string) {
	t.Helper()

	_, err := s.MergeCalendar(context.Background(), &Calendar{
		ID:           id,
		Name:         "Calendar " + id,
		AccessRole:   AccessOwner,
		SyncEnabled:  true,
		LastSyncTime: fixedNow,
	})
	require.NoError(t, err)
}

// countRows returns the number of rows in table.
func countRows(t *testing.T, s *SQLiteStore, table string) int {
	t.Helper()

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))

	return n
}

// isMappingErr reports whether err is a MappingError for field.
func isMappingErr(err error, field string) bool {
	var me *MappingError
	return errors.As(err, &me) && me.Field == field
}

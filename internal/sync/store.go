package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ultimaforsan/ultima/internal/collection"
)

// SQL statements for calendar merges.
const (
	sqlCalendarState = `SELECT deleted FROM calendars WHERE id = ?`

	sqlInsertCalendar = `INSERT INTO calendars
		(id, name, description, color, access_role, sync_enabled, etag, last_sync_time, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`

	sqlOverwriteCalendar = `UPDATE calendars SET
		 name = ?, description = ?, color = ?, access_role = ?, sync_enabled = ?,
		 etag = ?, last_sync_time = ?, deleted = 0
		WHERE id = ?`

	sqlSetSyncEnabled = `UPDATE calendars SET sync_enabled = ? WHERE id = ?`

	sqlTombstoneCalendar = `UPDATE calendars SET deleted = 1, etag = ?, last_sync_time = ? WHERE id = ?`

	sqlSelectCalendar = `SELECT id, name, description, color, access_role, sync_enabled,
		etag, last_sync_time, deleted FROM calendars`
)

// SQL statements for event merges.
const (
	sqlCalendarExists = `SELECT 1 FROM calendars WHERE id = ?`

	sqlEventState = `SELECT updated FROM events WHERE calendar_id = ? AND event_id = ?`

	sqlInsertEvent = `INSERT INTO events
		(calendar_id, event_id, title, description, location, start_time, start_zone,
		 end_time, end_zone, etag, source_type, updated, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0)`

	sqlOverwriteEvent = `UPDATE events SET
		 title = ?, description = ?, location = ?, start_time = ?, start_zone = ?,
		 end_time = ?, end_zone = ?, etag = ?, source_type = ?, updated = 0, deleted = 0
		WHERE calendar_id = ? AND event_id = ?`

	sqlRecordEventETag = `UPDATE events SET etag = ? WHERE calendar_id = ? AND event_id = ?`

	sqlTombstoneEvent = `UPDATE events SET deleted = 1, etag = ? WHERE calendar_id = ? AND event_id = ?`

	sqlEditEvent = `UPDATE events SET
		 title = ?, description = ?, location = ?, start_time = ?, start_zone = ?,
		 end_time = ?, end_zone = ?, updated = 1
		WHERE calendar_id = ? AND event_id = ? AND deleted = 0`

	sqlSelectEvent = `SELECT calendar_id, event_id, title, description, location,
		start_time, start_zone, end_time, end_zone, etag, source_type, updated, deleted
		FROM events`
)

// SQL statements for cursors and run history.
const (
	sqlGetCursor = `SELECT sync_cursor FROM sync_cursors WHERE collection = ?`

	sqlUpsertCursor = `INSERT INTO sync_cursors (collection, sync_cursor, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(collection) DO UPDATE SET
		 sync_cursor = excluded.sync_cursor,
		 updated_at = excluded.updated_at`

	sqlDeleteCursor = `DELETE FROM sync_cursors WHERE collection = ?`

	sqlDeleteAllCursors = `DELETE FROM sync_cursors`

	sqlListCursors = `SELECT collection, sync_cursor, updated_at FROM sync_cursors ORDER BY collection`

	sqlInsertRun = `INSERT INTO sync_runs
		(id, collection, state, full_resync, started_at, finished_at,
		 pages, fetched, merged, skipped, warnings, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlListRuns = `SELECT id, collection, state, full_resync, started_at, finished_at,
		pages, fetched, merged, skipped, warnings, error
		FROM sync_runs ORDER BY started_at DESC, id LIMIT ?`

	sqlStats = `SELECT
		(SELECT COUNT(*) FROM calendars WHERE deleted = 0),
		(SELECT COUNT(*) FROM calendars WHERE deleted = 0 AND sync_enabled = 1),
		(SELECT COUNT(*) FROM events WHERE deleted = 0),
		(SELECT COUNT(*) FROM events WHERE updated = 1),
		(SELECT COUNT(*) FROM calendars WHERE deleted = 1) +
		(SELECT COUNT(*) FROM events WHERE deleted = 1),
		(SELECT COUNT(*) FROM sync_cursors)`
)

// SQLiteStore is the sole writer to the mirror database. Every public write
// runs in its own transaction, so a crash loses at most the merge in flight.
type SQLiteStore struct {
	db      *sql.DB
	logger  *slog.Logger
	version int64
	nowFunc func() time.Time // injectable for deterministic tests
}

// NewSQLiteStore opens the SQLite database at dbPath, runs migrations, and
// returns a ready-to-use store. The database uses WAL mode with
// synchronous=FULL and enforced foreign keys.
func NewSQLiteStore(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	version, err := migrate(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("store opened",
		slog.String("db_path", dbPath),
		slog.Int64("schema_version", version),
	)

	return &SQLiteStore{
		db:      db,
		logger:  logger,
		version: version,
		nowFunc: time.Now,
	}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the migration version the database is at.
func (s *SQLiteStore) SchemaVersion() int64 {
	return s.version
}

// MergeCalendar upserts cal by id. The remote always wins for calendars:
// every mutable field is overwritten. A tombstone marks an existing row
// deleted and is ignored for unknown ids; a live record revives a tombstone.
func (s *SQLiteStore) MergeCalendar(ctx context.Context, cal *Calendar) (MergeOutcome, error) {
	var outcome MergeOutcome

	err := s.withTx(ctx, "merging calendar "+cal.ID, func(tx *sql.Tx) error {
		var deleted bool

		err := tx.QueryRowContext(ctx, sqlCalendarState, cal.ID).Scan(&deleted)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			if cal.Deleted {
				outcome = MergeIgnored
				return nil
			}

			outcome = MergeInserted
			_, err = tx.ExecContext(ctx, sqlInsertCalendar,
				cal.ID, cal.Name, nullString(cal.Description), nullString(cal.Color),
				cal.AccessRole.String(), cal.SyncEnabled, nullString(cal.ETag), cal.LastSyncTime.UnixNano())

			return err
		case err != nil:
			return err
		case cal.Deleted:
			outcome = MergeTombstoned
			_, err = tx.ExecContext(ctx, sqlTombstoneCalendar, nullString(cal.ETag), cal.LastSyncTime.UnixNano(), cal.ID)

			return err
		default:
			outcome = MergeUpdated
			_, err = tx.ExecContext(ctx, sqlOverwriteCalendar,
				cal.Name, nullString(cal.Description), nullString(cal.Color), cal.AccessRole.String(),
				cal.SyncEnabled, nullString(cal.ETag), cal.LastSyncTime.UnixNano(), cal.ID)

			return err
		}
	})
	if err != nil {
		return 0, err
	}

	return outcome, nil
}

// MergeEvent upserts ev by (calendar, id). A row with a pending local edit
// keeps its fields and liveness and only records the new etag; any other row
// is overwritten. Returns ErrForeignKeyViolation, writing nothing, when the
// calendar is unknown.
func (s *SQLiteStore) MergeEvent(ctx context.Context, ev *Event) (MergeOutcome, error) {
	var outcome MergeOutcome

	err := s.withTx(ctx, "merging event "+describeEvent(ev), func(tx *sql.Tx) error {
		var one int
		if err := tx.QueryRowContext(ctx, sqlCalendarExists, ev.CalendarID).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: calendar %q", ErrForeignKeyViolation, ev.CalendarID)
			}

			return err
		}

		var updated bool

		err := tx.QueryRowContext(ctx, sqlEventState, ev.CalendarID, ev.ID).Scan(&updated)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			if ev.Deleted {
				outcome = MergeIgnored
				return nil
			}

			outcome = MergeInserted
			_, err = tx.ExecContext(ctx, sqlInsertEvent,
				ev.CalendarID, ev.ID, ev.Title, nullString(ev.Description), nullString(ev.Location),
				ev.Start.UnixNano(), zoneName(ev.Start),
				ev.End.UnixNano(), zoneName(ev.End),
				nullString(ev.ETag), ev.Source.String())

			return classifyConstraint(err, ev.CalendarID)
		case err != nil:
			return err
		case updated:
			outcome = MergePreserved
			_, err = tx.ExecContext(ctx, sqlRecordEventETag, nullString(ev.ETag), ev.CalendarID, ev.ID)

			return err
		case ev.Deleted:
			outcome = MergeTombstoned
			_, err = tx.ExecContext(ctx, sqlTombstoneEvent, nullString(ev.ETag), ev.CalendarID, ev.ID)

			return err
		default:
			outcome = MergeUpdated
			_, err = tx.ExecContext(ctx, sqlOverwriteEvent,
				ev.Title, nullString(ev.Description), nullString(ev.Location),
				ev.Start.UnixNano(), zoneName(ev.Start),
				ev.End.UnixNano(), zoneName(ev.End),
				nullString(ev.ETag), ev.Source.String(), ev.CalendarID, ev.ID)

			return err
		}
	})
	if err != nil {
		return 0, err
	}

	return outcome, nil
}

// EditEvent applies a local edit and marks the event dirty so later pulls
// leave it alone. Returns ErrNotFound for unknown or deleted events.
func (s *SQLiteStore) EditEvent(ctx context.Context, calendarID, eventID string, edit EventEdit) error {
	if edit.Title == "" {
		return fmt.Errorf("%w: title", ErrMissingField)
	}

	if edit.Start.After(edit.End) {
		return fmt.Errorf("%w: start after end", ErrInvalidValue)
	}

	return s.withTx(ctx, "editing event "+calendarID+"/"+eventID, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlEditEvent,
			edit.Title, nullString(edit.Description), nullString(edit.Location),
			edit.Start.UnixNano(), zoneName(edit.Start),
			edit.End.UnixNano(), zoneName(edit.End),
			calendarID, eventID)
		if err != nil {
			return err
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}

		if n == 0 {
			return fmt.Errorf("%w: event %s/%s", ErrNotFound, calendarID, eventID)
		}

		return nil
	})
}

// SetSyncEnabled flips whether calendarID's events are mirrored.
func (s *SQLiteStore) SetSyncEnabled(ctx context.Context, calendarID string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, sqlSetSyncEnabled, enabled, calendarID)
	if err != nil {
		return fmt.Errorf("store: setting sync_enabled on %s: %w", calendarID, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: calendar %q", ErrNotFound, calendarID)
	}

	return nil
}

// GetCalendar returns one calendar, tombstoned or not.
func (s *SQLiteStore) GetCalendar(ctx context.Context, id string) (*Calendar, error) {
	row := s.db.QueryRowContext(ctx, sqlSelectCalendar+` WHERE id = ?`, id)

	cal, err := scanCalendar(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: calendar %q", ErrNotFound, id)
	}

	if err != nil {
		return nil, err
	}

	return cal, nil
}

// ListCalendars returns a snapshot ordered by name.
func (s *SQLiteStore) ListCalendars(ctx context.Context, opts ListOptions) ([]Calendar, error) {
	query := sqlSelectCalendar
	if !opts.IncludeDeleted {
		query += ` WHERE deleted = 0`
	}

	query += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: listing calendars: %w", err)
	}
	defer rows.Close()

	var cals []Calendar

	for rows.Next() {
		cal, err := scanCalendar(rows)
		if err != nil {
			return nil, err
		}

		cals = append(cals, *cal)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating calendars: %w", err)
	}

	return cals, nil
}

// GetEvent returns one event, tombstoned or not.
func (s *SQLiteStore) GetEvent(ctx context.Context, calendarID, eventID string) (*Event, error) {
	row := s.db.QueryRowContext(ctx, sqlSelectEvent+` WHERE calendar_id = ? AND event_id = ?`, calendarID, eventID)

	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: event %s/%s", ErrNotFound, calendarID, eventID)
	}

	if err != nil {
		return nil, err
	}

	return ev, nil
}

// ListEvents returns a snapshot of calendarID's events ordered by start.
// Events overlapping [q.From, q.To) are included.
func (s *SQLiteStore) ListEvents(ctx context.Context, calendarID string, q EventQuery) ([]Event, error) {
	query := sqlSelectEvent + ` WHERE calendar_id = ?`
	args := []any{calendarID}

	if !q.IncludeDeleted {
		query += ` AND deleted = 0`
	}

	if !q.From.IsZero() {
		query += ` AND end_time >= ?`
		args = append(args, q.From.UnixNano())
	}

	if !q.To.IsZero() {
		query += ` AND start_time < ?`
		args = append(args, q.To.UnixNano())
	}

	query += ` ORDER BY start_time, event_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: listing events of %s: %w", calendarID, err)
	}
	defer rows.Close()

	var events []Event

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}

		events = append(events, *ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating events: %w", err)
	}

	return events, nil
}

// GetCursor returns the stored sync cursor for ref, or "" if none.
func (s *SQLiteStore) GetCursor(ctx context.Context, ref collection.Ref) (string, error) {
	var cursor string

	err := s.db.QueryRowContext(ctx, sqlGetCursor, ref.String()).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("store: getting cursor for %s: %w", ref, err)
	}

	return cursor, nil
}

// SaveCursor replaces the stored cursor for ref.
func (s *SQLiteStore) SaveCursor(ctx context.Context, ref collection.Ref, cursor string) error {
	if _, err := s.db.ExecContext(ctx, sqlUpsertCursor, ref.String(), cursor, s.nowFunc().UnixNano()); err != nil {
		return fmt.Errorf("store: saving cursor for %s: %w", ref, err)
	}

	return nil
}

// ClearCursor removes the stored cursor for ref. Missing cursors are fine.
func (s *SQLiteStore) ClearCursor(ctx context.Context, ref collection.Ref) error {
	if _, err := s.db.ExecContext(ctx, sqlDeleteCursor, ref.String()); err != nil {
		return fmt.Errorf("store: clearing cursor for %s: %w", ref, err)
	}

	return nil
}

// ClearAllCursors removes every stored cursor, forcing full resyncs, and
// returns how many were removed.
func (s *SQLiteStore) ClearAllCursors(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqlDeleteAllCursors)
	if err != nil {
		return 0, fmt.Errorf("store: clearing cursors: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: clearing cursors: %w", err)
	}

	return n, nil
}

// ListCursors returns every stored cursor ordered by collection.
func (s *SQLiteStore) ListCursors(ctx context.Context) ([]CursorRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqlListCursors)
	if err != nil {
		return nil, fmt.Errorf("store: listing cursors: %w", err)
	}
	defer rows.Close()

	var out []CursorRecord

	for rows.Next() {
		var (
			key       string
			rec       CursorRecord
			updatedAt int64
		)

		if err := rows.Scan(&key, &rec.Cursor, &updatedAt); err != nil {
			return nil, fmt.Errorf("store: scanning cursor row: %w", err)
		}

		ref, err := collection.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("store: cursor row: %w", err)
		}

		rec.Collection = ref
		rec.UpdatedAt = time.Unix(0, updatedAt)
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating cursors: %w", err)
	}

	return out, nil
}

// RecordRun appends a drain to the run history, assigning an id if unset.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, sqlInsertRun,
		run.ID, run.Collection, run.State.String(), run.FullResync,
		run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(),
		run.Pages, run.Fetched, run.Merged, run.Skipped, run.Warnings, nullString(run.Error))
	if err != nil {
		return fmt.Errorf("store: recording run for %s: %w", run.Collection, err)
	}

	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqlListRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("store: listing runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord

	for rows.Next() {
		var (
			r                 RunRecord
			state             string
			started, finished int64
			errText           sql.NullString
		)

		if err := rows.Scan(&r.ID, &r.Collection, &state, &r.FullResync, &started, &finished,
			&r.Pages, &r.Fetched, &r.Merged, &r.Skipped, &r.Warnings, &errText); err != nil {
			return nil, fmt.Errorf("store: scanning run row: %w", err)
		}

		parsed, err := ParseDrainState(state)
		if err != nil {
			return nil, err
		}

		r.State = parsed
		r.StartedAt = time.Unix(0, started)
		r.FinishedAt = time.Unix(0, finished)
		r.Error = errText.String
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating runs: %w", err)
	}

	return out, nil
}

// Stats counts live rows, dirty events, tombstones and cursors.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	var st StoreStats

	err := s.db.QueryRowContext(ctx, sqlStats).Scan(
		&st.Calendars, &st.SyncEnabled, &st.Events, &st.DirtyEvents, &st.Tombstones, &st.CursorsStored)
	if err != nil {
		return nil, fmt.Errorf("store: reading stats: %w", err)
	}

	return &st, nil
}

// withTx runs fn in a transaction, committing on success. Errors are
// prefixed with what.
func (s *SQLiteStore) withTx(ctx context.Context, what string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: %s: beginning transaction: %w", what, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return fmt.Errorf("store: %s: %w", what, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: %s: committing: %w", what, err)
	}

	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCalendar(row rowScanner) (*Calendar, error) {
	var (
		cal         Calendar
		description sql.NullString
		color       sql.NullString
		role        string
		etag        sql.NullString
		lastSync    int64
	)

	err := row.Scan(&cal.ID, &cal.Name, &description, &color, &role,
		&cal.SyncEnabled, &etag, &lastSync, &cal.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if err != nil {
		return nil, fmt.Errorf("store: scanning calendar row: %w", err)
	}

	cal.AccessRole, err = ParseAccessRole(role)
	if err != nil {
		return nil, fmt.Errorf("store: calendar %s: %w", cal.ID, err)
	}

	cal.Description = description.String
	cal.Color = color.String
	cal.ETag = etag.String
	cal.LastSyncTime = time.Unix(0, lastSync)

	return &cal, nil
}

func scanEvent(row rowScanner) (*Event, error) {
	var (
		ev                 Event
		description        sql.NullString
		location           sql.NullString
		start, end         int64
		startZone, endZone string
		etag               sql.NullString
		source             string
	)

	err := row.Scan(&ev.CalendarID, &ev.ID, &ev.Title, &description, &location,
		&start, &startZone, &end, &endZone, &etag, &source, &ev.Updated, &ev.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if err != nil {
		return nil, fmt.Errorf("store: scanning event row: %w", err)
	}

	ev.Source, err = ParseSourceType(source)
	if err != nil {
		return nil, fmt.Errorf("store: event %s: %w", describeEvent(&ev), err)
	}

	ev.Description = description.String
	ev.Location = location.String
	ev.ETag = etag.String
	ev.Start = inZone(time.Unix(0, start), startZone)
	ev.End = inZone(time.Unix(0, end), endZone)

	return &ev, nil
}

// zoneName returns the persisted form of t's zone: the IANA name when it
// resolves to the same offset on any host, else the fixed offset "±hh:mm".
func zoneName(t time.Time) string {
	name := t.Location().String()

	if name != "" && name != "Local" {
		if loc, err := time.LoadLocation(name); err == nil {
			_, want := t.Zone()
			if _, got := t.In(loc).Zone(); got == want {
				return name
			}
		}
	}

	_, offset := t.Zone()

	return formatOffset(offset)
}

func formatOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}

	return fmt.Sprintf("%c%02d:%02d", sign, seconds/3600, seconds%3600/60)
}

// parseOffset reads a "±hh:mm" zone written by formatOffset.
func parseOffset(zone string) (int, bool) {
	if len(zone) != len("+00:00") || (zone[0] != '+' && zone[0] != '-') || zone[3] != ':' {
		return 0, false
	}

	h, errH := strconv.Atoi(zone[1:3])
	m, errM := strconv.Atoi(zone[4:6])

	if errH != nil || errM != nil || m >= 60 {
		return 0, false
	}

	seconds := h*3600 + m*60
	if zone[0] == '-' {
		seconds = -seconds
	}

	return seconds, true
}

// inZone restores the stored zone; unknown names fall back to UTC.
func inZone(t time.Time, zone string) time.Time {
	if offset, ok := parseOffset(zone); ok {
		return t.In(time.FixedZone(zone, offset))
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		return t.UTC()
	}

	return t.In(loc)
}

// classifyConstraint maps a SQLite foreign-key failure to
// ErrForeignKeyViolation. The explicit existence check normally catches it
// first; this covers rows removed concurrently by another connection.
func classifyConstraint(err error, calendarID string) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return fmt.Errorf("%w: calendar %q", ErrForeignKeyViolation, calendarID)
	}

	return err
}

// nullString converts an empty string to a SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

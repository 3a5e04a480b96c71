package gcal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/ultimaforsan/ultima/internal/collection"
)

// DefaultPageSize is the calendar-list maximum and a reasonable event page.
const DefaultPageSize = 250

// ClientOptions tunes the listing requests.
type ClientOptions struct {
	// Endpoint overrides the API base URL. Tests point it at httptest servers.
	Endpoint    string
	UserAgent   string
	PageSize    int64
	ShowDeleted bool
}

// Client fetches calendar-list and event pages from Google Calendar. It
// satisfies the sync engine's listing-source interface.
type Client struct {
	svc         *calendar.Service
	logger      *slog.Logger
	pageSize    int64
	showDeleted bool
}

// NewClient builds a Client on top of httpClient, which is expected to attach
// credentials (see NewHTTPClient).
func NewClient(ctx context.Context, httpClient *http.Client, opts ClientOptions, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	svcOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if opts.Endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(opts.Endpoint))
	}

	svc, err := calendar.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcal: creating calendar service: %w", err)
	}

	if opts.UserAgent != "" {
		svc.UserAgent = opts.UserAgent
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Client{
		svc:         svc,
		logger:      logger,
		pageSize:    pageSize,
		showDeleted: opts.ShowDeleted,
	}, nil
}

// FetchPage fetches one page of the given collection. An empty syncCursor
// requests a full listing; an empty pageCursor requests the first page.
func (c *Client) FetchPage(ctx context.Context, ref collection.Ref, syncCursor, pageCursor string) (*Page, error) {
	c.logger.Debug("fetching page",
		slog.String("collection", ref.String()),
		slog.Bool("incremental", syncCursor != ""),
		slog.Bool("continuation", pageCursor != ""),
	)

	switch ref.Kind() {
	case collection.KindCalendars:
		return c.fetchCalendars(ctx, syncCursor, pageCursor)
	case collection.KindEvents:
		return c.fetchEvents(ctx, ref.CalendarID(), syncCursor, pageCursor)
	default:
		return nil, fmt.Errorf("gcal: unsupported collection %q", ref.String())
	}
}

func (c *Client) fetchCalendars(ctx context.Context, syncCursor, pageCursor string) (*Page, error) {
	call := c.svc.CalendarList.List().Context(ctx).MaxResults(c.pageSize)

	// showDeleted=false is the API default; sending it together with a sync
	// token is rejected, so only the true case is ever set.
	if c.showDeleted {
		call = call.ShowDeleted(true)
	}

	if syncCursor != "" {
		call = call.SyncToken(syncCursor)
	}

	if pageCursor != "" {
		call = call.PageToken(pageCursor)
	}

	list, err := call.Do()
	if err != nil {
		return nil, classifyError(err)
	}

	page := &Page{
		Calendars:      make([]CalendarEntry, 0, len(list.Items)),
		NextPageCursor: list.NextPageToken,
		NextSyncCursor: list.NextSyncToken,
	}

	for _, item := range list.Items {
		if item == nil {
			continue
		}

		page.Calendars = append(page.Calendars, toCalendarEntry(item))
	}

	return page, nil
}

func (c *Client) fetchEvents(ctx context.Context, calendarID, syncCursor, pageCursor string) (*Page, error) {
	call := c.svc.Events.List(calendarID).Context(ctx).MaxResults(c.pageSize)

	if c.showDeleted {
		call = call.ShowDeleted(true)
	}

	if syncCursor != "" {
		call = call.SyncToken(syncCursor)
	}

	if pageCursor != "" {
		call = call.PageToken(pageCursor)
	}

	list, err := call.Do()
	if err != nil {
		return nil, classifyError(err)
	}

	page := &Page{
		Events:         make([]EventEntry, 0, len(list.Items)),
		NextPageCursor: list.NextPageToken,
		NextSyncCursor: list.NextSyncToken,
	}

	for _, item := range list.Items {
		if item == nil {
			continue
		}

		page.Events = append(page.Events, toEventEntry(item))
	}

	return page, nil
}

func toCalendarEntry(item *calendar.CalendarListEntry) CalendarEntry {
	return CalendarEntry{
		ID:              item.Id,
		Summary:         item.Summary,
		SummaryOverride: item.SummaryOverride,
		Description:     item.Description,
		BackgroundColor: item.BackgroundColor,
		AccessRole:      item.AccessRole,
		ETag:            item.Etag,
		Primary:         item.Primary,
		Deleted:         item.Deleted,
	}
}

func toEventEntry(item *calendar.Event) EventEntry {
	return EventEntry{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Status:      item.Status,
		ETag:        item.Etag,
		Start:       toEventTime(item.Start),
		End:         toEventTime(item.End),
	}
}

func toEventTime(t *calendar.EventDateTime) *EventTime {
	if t == nil {
		return nil
	}

	return &EventTime{
		Date:     t.Date,
		DateTime: t.DateTime,
		TimeZone: t.TimeZone,
	}
}

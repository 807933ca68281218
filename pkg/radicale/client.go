package radicale

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/calmirror/calmirror/internal/config"
	"github.com/calmirror/calmirror/pkg/calendar"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	log "github.com/sirupsen/logrus"
)

// CalendarInfo describes a calendar collection on the Radicale server.
type CalendarInfo struct {
	Name string
	Path string
}

// Client performs CRUD against a Radicale server over CalDAV. It is bound to
// one default calendar (the sync target) but can address others by name for
// the manual REST endpoints. Events are stored as <uid>.ics objects, so a PUT
// with the same UID replaces the previous copy (last write wins).
type Client struct {
	baseUrl         string
	defaultCalendar string
	httpClient      webdav.HTTPClient

	mu        sync.Mutex
	dav       *caldav.Client
	pathCache map[string]string
}

var _ calendar.EventStore = (*Client)(nil)

func NewClient(cfg config.Radicale) *Client {
	httpClient := webdav.HTTPClientWithBasicAuth(&http.Client{Timeout: 30 * time.Second}, cfg.Username, cfg.Password)
	return &Client{
		baseUrl:         cfg.Url,
		defaultCalendar: cfg.Calendar,
		httpClient:      httpClient,
		pathCache:       map[string]string{},
	}
}

func (c *Client) connect() (*caldav.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dav != nil {
		return c.dav, nil
	}
	dav, err := caldav.NewClient(c.httpClient, c.baseUrl)
	if err != nil {
		return nil, fmt.Errorf("could not connect to Radicale at %s: %w", c.baseUrl, err)
	}
	c.dav = dav
	return dav, nil
}

// resolveCalendar finds the collection path for a calendar name. Radicale
// exposes calendars under the principal's home set; names are matched against
// the display name and, as a fallback, the last path segment.
func (c *Client) resolveCalendar(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	if path, ok := c.pathCache[name]; ok {
		c.mu.Unlock()
		return path, nil
	}
	c.mu.Unlock()

	dav, err := c.connect()
	if err != nil {
		return "", err
	}

	principal, err := dav.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("could not find Radicale principal: %w", err)
	}
	homeSet, err := dav.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("could not find Radicale calendar home set: %w", err)
	}
	calendars, err := dav.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("could not list Radicale calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name || lastPathSegment(cal.Path) == name {
			c.mu.Lock()
			c.pathCache[name] = cal.Path
			c.mu.Unlock()
			return cal.Path, nil
		}
	}
	return "", fmt.Errorf("calendar %q not found in Radicale", name)
}

func lastPathSegment(path string) string {
	trimmed := strings.TrimSuffix(path, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

func (c *Client) eventPath(calendarPath, uid string) string {
	if !strings.HasSuffix(calendarPath, "/") {
		calendarPath += "/"
	}
	return calendarPath + uid + ".ics"
}

// Upsert implements calendar.EventStore against the default calendar.
func (c *Client) Upsert(ctx context.Context, event calendar.Event) error {
	return c.PutEvent(ctx, c.defaultCalendar, event)
}

// Delete implements calendar.EventStore against the default calendar.
func (c *Client) Delete(ctx context.Context, uid string) error {
	return c.DeleteEvent(ctx, c.defaultCalendar, uid)
}

// List implements calendar.EventStore against the default calendar.
func (c *Client) List(ctx context.Context, from, to time.Time) ([]calendar.Event, error) {
	return c.ListEvents(ctx, c.defaultCalendar, from, to)
}

// PutEvent creates or replaces an event in the named calendar.
func (c *Client) PutEvent(ctx context.Context, calendarName string, event calendar.Event) error {
	dav, err := c.connect()
	if err != nil {
		return err
	}
	calendarPath, err := c.resolveCalendar(ctx, calendarName)
	if err != nil {
		return err
	}

	cal := eventToICal(event)
	path := c.eventPath(calendarPath, event.UID)
	if _, err := dav.PutCalendarObject(ctx, path, cal); err != nil {
		return fmt.Errorf("could not store event %q in Radicale: %w", event.UID, err)
	}
	log.Debugf("Stored event %q in Radicale calendar %q", event.UID, calendarName)
	return nil
}

// DeleteEvent removes an event by UID. A missing event is not an error: a
// cancelled provider event may never have been mirrored.
func (c *Client) DeleteEvent(ctx context.Context, calendarName string, uid string) error {
	dav, err := c.connect()
	if err != nil {
		return err
	}
	calendarPath, err := c.resolveCalendar(ctx, calendarName)
	if err != nil {
		return err
	}

	path := c.eventPath(calendarPath, uid)
	if err := dav.RemoveAll(ctx, path); err != nil {
		// go-webdav keeps its HTTPError type internal; its Error() output is
		// guaranteed to start with "<code> <status text>", so match on that.
		notFoundPrefix := fmt.Sprintf("%d %s", http.StatusNotFound, http.StatusText(http.StatusNotFound))
		if strings.HasPrefix(err.Error(), notFoundPrefix) {
			log.Warnf("Event %q not found in Radicale, nothing to delete", uid)
			return nil
		}
		return fmt.Errorf("could not delete event %q from Radicale: %w", uid, err)
	}
	log.Infof("Deleted event %q from Radicale calendar %q", uid, calendarName)
	return nil
}

// ListEvents queries the named calendar for events intersecting [from, to].
func (c *Client) ListEvents(ctx context.Context, calendarName string, from, to time.Time) ([]calendar.Event, error) {
	dav, err := c.connect()
	if err != nil {
		return nil, err
	}
	calendarPath, err := c.resolveCalendar(ctx, calendarName)
	if err != nil {
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{
					Name:  "VEVENT",
					Start: from,
					End:   to,
				},
			},
		},
	}
	objects, err := dav.QueryCalendar(ctx, calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("could not query Radicale calendar %q: %w", calendarName, err)
	}

	var events []calendar.Event
	for _, obj := range objects {
		event, err := parseCalendarObject(&obj)
		if err != nil {
			log.Warnf("skipping unparsable calendar object %s: %v", obj.Path, err)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// ListCalendars returns all calendar collections of the principal.
func (c *Client) ListCalendars(ctx context.Context) ([]CalendarInfo, error) {
	dav, err := c.connect()
	if err != nil {
		return nil, err
	}
	principal, err := dav.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not find Radicale principal: %w", err)
	}
	homeSet, err := dav.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("could not find Radicale calendar home set: %w", err)
	}
	calendars, err := dav.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("could not list Radicale calendars: %w", err)
	}

	infos := make([]CalendarInfo, 0, len(calendars))
	for _, cal := range calendars {
		infos = append(infos, CalendarInfo{Name: cal.Name, Path: cal.Path})
	}
	return infos, nil
}

// Ping verifies connectivity and credentials by resolving the principal.
func (c *Client) Ping(ctx context.Context) error {
	dav, err := c.connect()
	if err != nil {
		return err
	}
	if _, err := dav.FindCurrentUserPrincipal(ctx); err != nil {
		return fmt.Errorf("radicale is unreachable: %w", err)
	}
	return nil
}

// BaseUrl exposes the configured server address for status reporting.
func (c *Client) BaseUrl() string {
	return c.baseUrl
}

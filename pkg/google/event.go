package google

import (
	"time"

	"github.com/calmirror/calmirror/pkg/calendar"
	log "github.com/sirupsen/logrus"
	gcal "google.golang.org/api/calendar/v3"
)

const allDayLayout = "2006-01-02"

// toEvent maps a Google Calendar event to the provider-neutral representation.
// The Google event id becomes the UID so that repeated syncs address the same
// object in the local store.
func toEvent(item *gcal.Event) calendar.Event {
	event := calendar.Event{
		UID:         item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Status:      calendar.EventStatus(item.Status),
		URL:         item.HtmlLink,
	}
	if event.Summary == "" {
		event.Summary = "No Title"
	}

	// Cancelled events in incremental listings carry no body beyond the id.
	if event.Status == calendar.EventStatusCancelled {
		return event
	}

	event.StartTime, event.AllDay = parseEventTime(item.Start)
	event.EndTime, _ = parseEventTime(item.End)
	return event
}

// parseEventTime handles both timed events (dateTime) and all-day events
// (date). Timestamps are normalized to UTC.
func parseEventTime(t *gcal.EventDateTime) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			log.Warnf("could not parse event time %q: %v", t.DateTime, err)
			return time.Time{}, false
		}
		return parsed.UTC(), false
	}
	if t.Date != "" {
		parsed, err := time.Parse(allDayLayout, t.Date)
		if err != nil {
			log.Warnf("could not parse event date %q: %v", t.Date, err)
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}

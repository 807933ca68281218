package google

import (
	"testing"
	"time"

	"github.com/calmirror/calmirror/pkg/calendar"
	"github.com/stretchr/testify/assert"
	gcal "google.golang.org/api/calendar/v3"
)

func TestToEvent(t *testing.T) {
	t.Run("maps a timed event", func(t *testing.T) {
		item := &gcal.Event{
			Id:          "google-event-1",
			Summary:     "Planning",
			Description: "Quarterly planning",
			Location:    "Room 4",
			Status:      "confirmed",
			HtmlLink:    "https://calendar.google.com/event?eid=abc",
			Start:       &gcal.EventDateTime{DateTime: "2025-03-10T09:00:00+01:00"},
			End:         &gcal.EventDateTime{DateTime: "2025-03-10T10:00:00+01:00"},
		}

		event := toEvent(item)

		assert.Equal(t, "google-event-1", event.UID)
		assert.Equal(t, "Planning", event.Summary)
		assert.Equal(t, "Quarterly planning", event.Description)
		assert.Equal(t, "Room 4", event.Location)
		assert.Equal(t, calendar.EventStatusConfirmed, event.Status)
		assert.Equal(t, "https://calendar.google.com/event?eid=abc", event.URL)
		assert.False(t, event.AllDay)
		// normalized to UTC
		assert.Equal(t, time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC), event.StartTime)
		assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), event.EndTime)
	})

	t.Run("maps an all-day event", func(t *testing.T) {
		item := &gcal.Event{
			Id:      "google-event-2",
			Summary: "Public holiday",
			Status:  "confirmed",
			Start:   &gcal.EventDateTime{Date: "2025-05-01"},
			End:     &gcal.EventDateTime{Date: "2025-05-02"},
		}

		event := toEvent(item)

		assert.True(t, event.AllDay)
		assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), event.StartTime)
	})

	t.Run("defaults a missing summary", func(t *testing.T) {
		item := &gcal.Event{
			Id:     "google-event-3",
			Status: "confirmed",
			Start:  &gcal.EventDateTime{Date: "2025-05-01"},
		}

		event := toEvent(item)

		assert.Equal(t, "No Title", event.Summary)
	})

	t.Run("keeps only id and status for cancelled events", func(t *testing.T) {
		// cancelled events in incremental listings carry no times
		item := &gcal.Event{Id: "google-event-4", Status: "cancelled"}

		event := toEvent(item)

		assert.Equal(t, "google-event-4", event.UID)
		assert.Equal(t, calendar.EventStatusCancelled, event.Status)
		assert.True(t, event.StartTime.IsZero())
	})
}

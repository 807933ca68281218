package radicale

import (
	"testing"
	"time"

	"github.com/calmirror/calmirror/pkg/calendar"
	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventToICalRoundTrip(t *testing.T) {
	t.Run("timed event", func(t *testing.T) {
		event := calendar.Event{
			UID:         "ev-1",
			Summary:     "Planning",
			Description: "Quarterly planning",
			Location:    "Room 4",
			StartTime:   time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
			EndTime:     time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
			Status:      calendar.EventStatusConfirmed,
			URL:         "https://calendar.google.com/event?eid=abc",
		}

		cal := eventToICal(event)
		parsed, err := parseCalendarObject(&caldav.CalendarObject{Data: cal})

		require.NoError(t, err)
		assert.Equal(t, event.UID, parsed.UID)
		assert.Equal(t, event.Summary, parsed.Summary)
		assert.Equal(t, event.Description, parsed.Description)
		assert.Equal(t, event.Location, parsed.Location)
		assert.Equal(t, event.URL, parsed.URL)
		assert.True(t, event.StartTime.Equal(parsed.StartTime))
		assert.True(t, event.EndTime.Equal(parsed.EndTime))
		assert.False(t, parsed.AllDay)
	})

	t.Run("all-day event", func(t *testing.T) {
		event := calendar.Event{
			UID:       "ev-2",
			Summary:   "Public holiday",
			StartTime: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
			EndTime:   time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC),
			AllDay:    true,
			Status:    calendar.EventStatusConfirmed,
		}

		cal := eventToICal(event)
		parsed, err := parseCalendarObject(&caldav.CalendarObject{Data: cal})

		require.NoError(t, err)
		assert.True(t, parsed.AllDay)
		assert.Equal(t, 2025, parsed.StartTime.Year())
		assert.Equal(t, time.May, parsed.StartTime.Month())
	})

	t.Run("produced document carries the required calendar props", func(t *testing.T) {
		cal := eventToICal(calendar.Event{UID: "ev-3", Summary: "X", StartTime: time.Now()})

		version, err := cal.Props.Text(ical.PropVersion)
		require.NoError(t, err)
		assert.Equal(t, "2.0", version)
		require.Len(t, cal.Children, 1)
		assert.Equal(t, ical.CompEvent, cal.Children[0].Name)
	})
}

func TestParseCalendarObject_NoEvent(t *testing.T) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodId)

	_, err := parseCalendarObject(&caldav.CalendarObject{Data: cal})

	assert.Error(t, err)
}

package webhook

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNotification(t *testing.T) {
	t.Run("reads the X-Goog headers", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/webhook/google-calendar", nil)
		req.Header.Set("X-Goog-Channel-ID", "channel-1")
		req.Header.Set("X-Goog-Resource-ID", "resource-1")
		req.Header.Set("X-Goog-Resource-State", "exists")
		req.Header.Set("X-Goog-Resource-URI", "https://www.googleapis.com/calendar/v3/calendars/primary/events")
		req.Header.Set("X-Goog-Message-Number", "42")

		n := ParseNotification(req)

		assert.Equal(t, "channel-1", n.ChannelId)
		assert.Equal(t, "resource-1", n.ResourceId)
		assert.Equal(t, "exists", n.ResourceState)
		assert.Equal(t, "42", n.MessageNumber)
		assert.False(t, n.IsEmpty())
	})

	t.Run("falls back to a JSON body", func(t *testing.T) {
		body := `{"channelId":"channel-2","resourceState":"sync"}`
		req := httptest.NewRequest("POST", "/webhook/google-calendar", strings.NewReader(body))

		n := ParseNotification(req)

		assert.Equal(t, "channel-2", n.ChannelId)
		assert.Equal(t, "sync", n.ResourceState)
	})

	t.Run("no headers and no body is a test ping", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/webhook/google-calendar", nil)

		n := ParseNotification(req)

		assert.True(t, n.IsEmpty())
	})
}

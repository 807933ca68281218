package webhook

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/calmirror/calmirror/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Receive(t *testing.T) {
	t.Run("answers a test ping without queuing work", func(t *testing.T) {
		// given
		repo := task.NewStubRepository()
		queue := task.NewQueue(repo, nil, task.Options{})
		handler := NewHandler(queue, nil, "primary")

		// when
		req := httptest.NewRequest("POST", "/webhook/google-calendar", nil)
		w := httptest.NewRecorder()
		handler.Receive(w, req)

		// then
		assert.Equal(t, 200, w.Code)
		unfinished, err := repo.FindUnfinished(context.Background())
		require.NoError(t, err)
		assert.Empty(t, unfinished)
	})

	t.Run("queues a notification task and returns its id", func(t *testing.T) {
		// given
		repo := task.NewStubRepository()
		queue := task.NewQueue(repo, nil, task.Options{})
		handler := NewHandler(queue, nil, "primary")

		// when
		req := httptest.NewRequest("POST", "/webhook/google-calendar", nil)
		req.Header.Set("X-Goog-Channel-ID", "channel-1")
		req.Header.Set("X-Goog-Resource-State", "exists")
		w := httptest.NewRecorder()
		handler.Receive(w, req)

		// then
		assert.Equal(t, 202, w.Code)
		var response map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.NotEmpty(t, response["taskId"])
		assert.Equal(t, "queued", response["status"])

		queued, err := repo.Get(context.Background(), response["taskId"])
		require.NoError(t, err)
		assert.Equal(t, task.KindNotification, queued.Kind)

		var notification Notification
		require.NoError(t, json.Unmarshal(queued.Payload, &notification))
		assert.Equal(t, "channel-1", notification.ChannelId)
		assert.Equal(t, "exists", notification.ResourceState)
	})
}

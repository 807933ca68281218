package task

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_GetStatus(t *testing.T) {
	t.Run("returns the task state", func(t *testing.T) {
		// given
		repo := NewStubRepository()
		now := time.Now()
		require.NoError(t, repo.Store(context.Background(), Task{
			Id:        "task-1",
			Kind:      KindSync,
			Status:    StatusCompleted,
			Result:    json.RawMessage(`{"syncedCount":5}`),
			CreatedAt: now,
			UpdatedAt: now,
		}))
		handler := NewHandler(repo)

		// when
		req := mux.SetURLVars(httptest.NewRequest("GET", "/api/sync/status/task-1", nil), map[string]string{"taskId": "task-1"})
		w := httptest.NewRecorder()
		handler.GetStatus(w, req)

		// then
		assert.Equal(t, 200, w.Code)
		var dto TaskDto
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dto))
		assert.Equal(t, "task-1", dto.Id)
		assert.Equal(t, string(StatusCompleted), dto.Status)
		assert.JSONEq(t, `{"syncedCount":5}`, string(dto.Result))
	})

	t.Run("returns 404 for an unknown task", func(t *testing.T) {
		handler := NewHandler(NewStubRepository())

		req := mux.SetURLVars(httptest.NewRequest("GET", "/api/sync/status/nope", nil), map[string]string{"taskId": "nope"})
		w := httptest.NewRecorder()
		handler.GetStatus(w, req)

		assert.Equal(t, 404, w.Code)
	})
}

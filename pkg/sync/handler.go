package sync

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/calmirror/calmirror/internal/rest"
	"github.com/calmirror/calmirror/pkg/task"
	log "github.com/sirupsen/logrus"
)

// Request is the payload of a manually triggered sync task.
type Request struct {
	CalendarId string `json:"calendarId"`
	SyncType   string `json:"syncType"`
}

type Handler struct {
	queue             *task.Queue
	defaultCalendarId string
}

func NewHandler(queue *task.Queue, defaultCalendarId string) *Handler {
	return &Handler{queue: queue, defaultCalendarId: defaultCalendarId}
}

// TriggerSync accepts a manual sync request and queues it for the worker
// pool. The body is optional; missing fields fall back to the configured
// calendar and an incremental run.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var request Request
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil && !errors.Is(err, io.EOF) {
		rest.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if request.CalendarId == "" {
		request.CalendarId = h.defaultCalendarId
	}
	if request.SyncType == "" {
		request.SyncType = SyncTypeIncremental
	}
	if request.SyncType != SyncTypeFull && request.SyncType != SyncTypeIncremental {
		rest.WriteError(w, http.StatusBadRequest, "syncType must be \"full\" or \"incremental\"")
		return
	}

	payload, err := json.Marshal(request)
	if err != nil {
		rest.WriteError(w, http.StatusInternalServerError, "Failed to queue sync")
		return
	}
	t, err := h.queue.Enqueue(r.Context(), task.KindSync, payload)
	if err != nil {
		log.Errorf("failed to queue sync task: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to queue sync")
		return
	}

	rest.WriteJSON(w, http.StatusAccepted, map[string]string{
		"taskId":  t.Id,
		"status":  string(t.Status),
		"message": "Sync queued",
	})
}

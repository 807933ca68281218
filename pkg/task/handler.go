package task

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/calmirror/calmirror/internal/rest"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type TaskDto struct {
	Id        string          `json:"id"`
	Kind      string          `json:"kind"`
	Status    string          `json:"status"`
	Retries   int             `json:"retries"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// GetStatus returns the current state of a task by id so callers can poll
// the outcome of work accepted asynchronously.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	taskId := mux.Vars(r)["taskId"]

	t, err := h.repo.Get(r.Context(), taskId)
	if errors.Is(err, ErrTaskNotFound) {
		rest.WriteError(w, http.StatusNotFound, "Task not found")
		return
	} else if err != nil {
		log.Errorf("failed to get task %s: %v", taskId, err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to get task")
		return
	}

	rest.WriteJSON(w, http.StatusOK, TaskDto{
		Id:        t.Id,
		Kind:      t.Kind,
		Status:    string(t.Status),
		Retries:   t.Retries,
		Result:    t.Result,
		Error:     t.Error,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	})
}

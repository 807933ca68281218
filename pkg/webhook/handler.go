package webhook

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/calmirror/calmirror/internal/rest"
	"github.com/calmirror/calmirror/pkg/task"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type ChannelDto struct {
	ChannelId  string `json:"channelId"`
	ResourceId string `json:"resourceId"`
	CalendarId string `json:"calendarId"`
	Expiration string `json:"expiration"`
}

type RegisterChannelDto struct {
	CalendarId string `json:"calendarId"`
}

type Handler struct {
	queue             *task.Queue
	channels          *ChannelService
	defaultCalendarId string
}

func NewHandler(queue *task.Queue, channels *ChannelService, defaultCalendarId string) *Handler {
	return &Handler{queue: queue, channels: channels, defaultCalendarId: defaultCalendarId}
}

// Receive accepts a Google Calendar push notification, queues the sync work
// and returns immediately. Google retries delivery on non-2xx responses, so
// slow sync work must never run inside this handler.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	notification := ParseNotification(r)
	if notification.IsEmpty() {
		log.Info("Received webhook test notification")
		rest.WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"message": "Test notification received",
		})
		return
	}

	log.Infof("Received webhook notification: channel=%s state=%s message=%s",
		notification.ChannelId, notification.ResourceState, notification.MessageNumber)

	payload, err := json.Marshal(notification)
	if err != nil {
		rest.WriteError(w, http.StatusInternalServerError, "Failed to queue notification")
		return
	}
	t, err := h.queue.Enqueue(r.Context(), task.KindNotification, payload)
	if err != nil {
		log.Errorf("failed to queue notification task: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to queue notification")
		return
	}

	rest.WriteJSON(w, http.StatusAccepted, map[string]string{
		"taskId": t.Id,
		"status": string(t.Status),
	})
}

// RegisterChannel creates a push notification channel for a calendar.
func (h *Handler) RegisterChannel(w http.ResponseWriter, r *http.Request) {
	var dto RegisterChannelDto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		dto = RegisterChannelDto{}
	}
	if dto.CalendarId == "" {
		dto.CalendarId = h.defaultCalendarId
	}

	channel, err := h.channels.Register(r.Context(), dto.CalendarId)
	if err != nil {
		log.Errorf("failed to register watch channel: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to register watch channel")
		return
	}
	rest.WriteJSON(w, http.StatusCreated, toChannelDto(channel))
}

func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.channels.List(r.Context())
	if err != nil {
		log.Errorf("failed to list watch channels: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to get watch channels")
		return
	}
	dtos := make([]ChannelDto, 0, len(channels))
	for _, channel := range channels {
		dtos = append(dtos, toChannelDto(channel))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

func (h *Handler) StopChannel(w http.ResponseWriter, r *http.Request) {
	channelId := mux.Vars(r)["channelId"]

	err := h.channels.Stop(r.Context(), channelId)
	if errors.Is(err, ErrChannelNotFound) {
		rest.WriteError(w, http.StatusNotFound, "Watch channel not found")
		return
	} else if err != nil {
		log.Errorf("failed to stop watch channel %s: %v", channelId, err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to stop watch channel")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toChannelDto(channel Channel) ChannelDto {
	return ChannelDto{
		ChannelId:  channel.ChannelId,
		ResourceId: channel.ResourceId,
		CalendarId: channel.CalendarId,
		Expiration: channel.Expiration.UTC().Format(time.RFC3339),
	}
}

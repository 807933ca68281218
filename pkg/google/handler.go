package google

import (
	"errors"
	"net/http"

	"github.com/calmirror/calmirror/internal/rest"
	log "github.com/sirupsen/logrus"
)

type CalendarDto struct {
	Id      string `json:"id"`
	Summary string `json:"summary"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	calendars, err := h.service.ListCalendars(r.Context())
	if errors.Is(err, ErrUnauthenticated) {
		rest.WriteError(w, http.StatusUnauthorized, "Google authentication required")
		return
	} else if err != nil {
		log.Errorf("failed to list Google calendars: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to get calendars")
		return
	}

	dtos := make([]CalendarDto, 0, len(calendars))
	for _, cal := range calendars {
		dtos = append(dtos, CalendarDto{Id: cal.ID, Summary: cal.Summary})
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

package radicale

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/calmirror/calmirror/internal/rest"
	"github.com/calmirror/calmirror/pkg/calendar"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type StatusDto struct {
	Status    string `json:"status"`
	Url       string `json:"url"`
	Connected bool   `json:"connected"`
}

type CalendarDto struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type EventDto struct {
	Uid         string    `json:"uid,omitempty"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Url         string    `json:"url,omitempty"`
}

type ContactDto struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Organization string `json:"organization,omitempty"`
}

type AddressBookDto struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Contacts is the CardDAV surface the handler needs, implemented by
// ContactsClient.
type Contacts interface {
	ListAddressBooks(ctx context.Context) ([]AddressBookInfo, error)
	CreateContact(ctx context.Context, addressBookName string, contact Contact) (string, error)
}

type Handler struct {
	client   *Client
	contacts Contacts
}

func NewHandler(client *Client, contacts Contacts) *Handler {
	return &Handler{client: client, contacts: contacts}
}

// Status reports whether the Radicale server is reachable with the configured
// credentials.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		log.Debugf("Radicale status check failed: %v", err)
		rest.WriteJSON(w, http.StatusOK, StatusDto{Status: "disconnected", Url: h.client.BaseUrl(), Connected: false})
		return
	}
	rest.WriteJSON(w, http.StatusOK, StatusDto{Status: "connected", Url: h.client.BaseUrl(), Connected: true})
}

func (h *Handler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	calendars, err := h.client.ListCalendars(r.Context())
	if err != nil {
		log.Errorf("failed to list Radicale calendars: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to get calendars")
		return
	}
	dtos := make([]CalendarDto, 0, len(calendars))
	for _, cal := range calendars {
		dtos = append(dtos, CalendarDto{Name: cal.Name, Path: cal.Path})
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

// CreateEvent stores a manually supplied event in the named calendar.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	calendarName := mux.Vars(r)["calendarName"]

	var dto EventDto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if dto.Summary == "" {
		rest.WriteError(w, http.StatusBadRequest, "summary is required")
		return
	}

	event := calendar.Event{
		UID:         dto.Uid,
		Summary:     dto.Summary,
		Description: dto.Description,
		Location:    dto.Location,
		StartTime:   dto.Start,
		EndTime:     dto.End,
		Status:      calendar.EventStatusConfirmed,
	}
	if event.UID == "" {
		event.UID = uuid.New().String()
	}

	if err := h.client.PutEvent(r.Context(), calendarName, event); err != nil {
		log.Errorf("failed to create event in calendar %q: %v", calendarName, err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to create event")
		return
	}
	rest.WriteJSON(w, http.StatusCreated, map[string]string{
		"message": "Event created successfully",
		"eventId": event.UID,
	})
}

// GetEvents lists events of the named calendar in the requested range.
// Defaults cover now-30d to now+30d when the range is not given.
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	calendarName := mux.Vars(r)["calendarName"]

	from := time.Now().AddDate(0, 0, -30)
	to := time.Now().AddDate(0, 0, 30)
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			rest.WriteError(w, http.StatusBadRequest, "invalid from date")
			return
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			rest.WriteError(w, http.StatusBadRequest, "invalid to date")
			return
		}
		to = parsed
	}

	events, err := h.client.ListEvents(r.Context(), calendarName, from, to)
	if err != nil {
		log.Errorf("failed to list events in calendar %q: %v", calendarName, err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to get events")
		return
	}

	dtos := make([]EventDto, 0, len(events))
	for _, event := range events {
		dtos = append(dtos, EventDto{
			Uid:         event.UID,
			Summary:     event.Summary,
			Description: event.Description,
			Location:    event.Location,
			Start:       event.StartTime,
			End:         event.EndTime,
			Url:         event.URL,
		})
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

// ListAddressBooks returns all address book collections.
func (h *Handler) ListAddressBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.contacts.ListAddressBooks(r.Context())
	if err != nil {
		log.Errorf("failed to list Radicale address books: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to get address books")
		return
	}
	dtos := make([]AddressBookDto, 0, len(books))
	for _, book := range books {
		dtos = append(dtos, AddressBookDto{Name: book.Name, Path: book.Path})
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

// CreateContact stores a vCard in the named address book.
func (h *Handler) CreateContact(w http.ResponseWriter, r *http.Request) {
	addressBookName := mux.Vars(r)["addressBookName"]

	var dto ContactDto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if dto.FirstName == "" && dto.LastName == "" {
		rest.WriteError(w, http.StatusBadRequest, "a name is required")
		return
	}

	uid, err := h.contacts.CreateContact(r.Context(), addressBookName, Contact{
		FirstName:    dto.FirstName,
		LastName:     dto.LastName,
		Email:        dto.Email,
		Phone:        dto.Phone,
		Organization: dto.Organization,
	})
	if err != nil {
		log.Errorf("failed to create contact: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to create contact")
		return
	}
	rest.WriteJSON(w, http.StatusCreated, map[string]string{
		"message":   "Contact created successfully",
		"contactId": uid,
	})
}

package app

import (
	"net/http"

	"github.com/calmirror/calmirror/internal/config"
	"github.com/calmirror/calmirror/internal/rest"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies, cfg config.Application) {

	// Google push notifications
	r.HandleFunc("/webhook/google-calendar", deps.WebhookHandler.Receive).Methods("POST")

	// Sync
	r.HandleFunc("/api/sync", deps.SyncHandler.TriggerSync).Methods("POST")
	r.HandleFunc("/api/sync/status/{taskId}", deps.TaskHandler.GetStatus).Methods("GET")

	// Watch channels
	r.HandleFunc("/api/channels", deps.WebhookHandler.RegisterChannel).Methods("POST")
	r.HandleFunc("/api/channels", deps.WebhookHandler.ListChannels).Methods("GET")
	r.HandleFunc("/api/channels/{channelId}", deps.WebhookHandler.StopChannel).Methods("DELETE")

	// Radicale
	r.HandleFunc("/api/radicale/status", deps.RadicaleHandler.Status).Methods("GET")
	r.HandleFunc("/api/radicale/calendars", deps.RadicaleHandler.ListCalendars).Methods("GET")
	r.HandleFunc("/api/radicale/calendars/{calendarName}/events", deps.RadicaleHandler.CreateEvent).Methods("POST")
	r.HandleFunc("/api/radicale/calendars/{calendarName}/events", deps.RadicaleHandler.GetEvents).Methods("GET")
	r.HandleFunc("/api/radicale/addressbooks", deps.RadicaleHandler.ListAddressBooks).Methods("GET")
	r.HandleFunc("/api/radicale/addressbooks/{addressBookName}/contacts", deps.RadicaleHandler.CreateContact).Methods("POST")

	// Google integration
	r.HandleFunc("/api/integrations/google/auth/login", deps.GoogleAuth.OAuthLogin).Methods("GET")
	r.HandleFunc("/api/integrations/google/auth/callback", deps.GoogleAuth.OAuthCallback).Methods("GET")
	r.HandleFunc("/api/integrations/google/auth/logout", deps.GoogleAuth.OAuthLogout).Methods("DELETE")
	r.HandleFunc("/api/integrations/google/calendars", deps.GoogleHandler.ListCalendars).Methods("GET")

	// Operability
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		rest.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

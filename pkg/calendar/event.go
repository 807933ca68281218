package calendar

import "time"

type EventStatus string

const (
	EventStatusConfirmed EventStatus = "confirmed"
	EventStatusTentative EventStatus = "tentative"
	EventStatusCancelled EventStatus = "cancelled"
)

// Event is the provider-neutral representation of a calendar entry. UID is the
// provider event id and doubles as the object name in the local store, which is
// what makes repeated syncs idempotent.
type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string
	StartTime   time.Time
	EndTime     time.Time
	// AllDay marks events carried as dates rather than timestamps.
	AllDay bool
	Status EventStatus
	// URL points back at the event in the provider's UI.
	URL string
}

// SyncPage is one listing result from the provider. NextSyncToken is only set
// once the provider has returned the final page of a listing.
type SyncPage struct {
	Events        []Event
	NextSyncToken string
}

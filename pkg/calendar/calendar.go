package calendar

import (
	"context"
	"errors"
	"time"
)

// ErrSyncTokenExpired is returned by Provider.ListChanges when the given
// cursor is no longer accepted. The caller must discard the cursor and fall
// back to a full listing.
var ErrSyncTokenExpired = errors.New("sync token expired")

// Provider lists events on the remote (third-party) calendar.
type Provider interface {
	// ListEvents returns every event of the calendar and a fresh sync token.
	ListEvents(ctx context.Context, calendarId string) (SyncPage, error)
	// ListChanges returns events changed since the given sync token.
	ListChanges(ctx context.Context, calendarId string, syncToken string) (SyncPage, error)
}

// EventStore mirrors provider events into the local calendar server.
type EventStore interface {
	// Upsert creates or replaces the event keyed by its UID.
	Upsert(ctx context.Context, event Event) error
	// Delete removes the event with the given UID. Deleting an unknown UID is
	// not an error.
	Delete(ctx context.Context, uid string) error
	List(ctx context.Context, from, to time.Time) ([]Event, error)
}

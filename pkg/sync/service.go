package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/calmirror/calmirror/internal/event_bus"
	"github.com/calmirror/calmirror/pkg/calendar"
	"github.com/calmirror/calmirror/pkg/synctoken"
	log "github.com/sirupsen/logrus"
)

const (
	SyncTypeFull        = "full"
	SyncTypeIncremental = "incremental"
)

// Notification resource states sent by Google Calendar push notifications.
const (
	StateSync      = "sync"
	StateExists    = "exists"
	StateNotExists = "not_exists"
)

// Result summarizes one sync run. It is stored as the task result so callers
// polling the task status can see what happened.
type Result struct {
	CalendarId  string `json:"calendarId"`
	SyncType    string `json:"syncType"`
	SyncedCount int    `json:"syncedCount"`
	TotalCount  int    `json:"totalCount"`
}

// Service mirrors a provider calendar into the local event store. Full syncs
// replay the whole calendar and obtain a fresh sync token; incremental syncs
// apply only the changes since the stored token.
type Service struct {
	provider calendar.Provider
	store    calendar.EventStore
	tokens   *synctoken.Store
	bus      *event_bus.EventBus
}

func NewService(provider calendar.Provider, store calendar.EventStore, tokens *synctoken.Store, bus *event_bus.EventBus) *Service {
	return &Service{
		provider: provider,
		store:    store,
		tokens:   tokens,
		bus:      bus,
	}
}

// Sync runs an incremental sync when a token is stored for the calendar and a
// full sync otherwise.
func (s *Service) Sync(ctx context.Context, calendarId string) (Result, error) {
	if s.tokens.Get(calendarId) == "" {
		return s.FullSync(ctx, calendarId)
	}
	return s.IncrementalSync(ctx, calendarId)
}

// FullSync lists every event of the calendar, mirrors them all into the local
// store and saves the returned sync token for later incremental runs.
func (s *Service) FullSync(ctx context.Context, calendarId string) (Result, error) {
	log.Infof("Starting full sync of calendar %q", calendarId)

	page, err := s.provider.ListEvents(ctx, calendarId)
	if err != nil {
		return Result{}, fmt.Errorf("full sync of calendar %q failed: %w", calendarId, err)
	}

	result := Result{CalendarId: calendarId, SyncType: SyncTypeFull, TotalCount: len(page.Events)}
	synced, err := s.apply(ctx, page.Events)
	result.SyncedCount = synced
	if err != nil {
		// The token is not saved so the retry replays the full listing.
		// Replays are safe because events are stored keyed by UID.
		return result, fmt.Errorf("full sync of calendar %q failed: %w", calendarId, err)
	}

	if page.NextSyncToken != "" {
		if err := s.tokens.Set(calendarId, page.NextSyncToken); err != nil {
			return result, fmt.Errorf("could not save sync token for calendar %q: %w", calendarId, err)
		}
	} else {
		log.Warnf("Full sync of calendar %q returned no sync token", calendarId)
	}

	log.Infof("Full sync of calendar %q done: %d/%d events", calendarId, result.SyncedCount, result.TotalCount)
	s.publishCompleted(result)
	return result, nil
}

// IncrementalSync applies the changes since the stored sync token. When no
// token is stored, or the provider rejects it as expired, it falls back to a
// full sync.
func (s *Service) IncrementalSync(ctx context.Context, calendarId string) (Result, error) {
	token := s.tokens.Get(calendarId)
	if token == "" {
		log.Infof("No sync token for calendar %q, falling back to full sync", calendarId)
		return s.FullSync(ctx, calendarId)
	}

	log.Infof("Starting incremental sync of calendar %q", calendarId)
	page, err := s.provider.ListChanges(ctx, calendarId, token)
	if errors.Is(err, calendar.ErrSyncTokenExpired) {
		log.Warnf("Sync token for calendar %q expired, falling back to full sync", calendarId)
		if err := s.tokens.Clear(calendarId); err != nil {
			return Result{}, fmt.Errorf("could not clear expired sync token for calendar %q: %w", calendarId, err)
		}
		return s.FullSync(ctx, calendarId)
	} else if err != nil {
		return Result{}, fmt.Errorf("incremental sync of calendar %q failed: %w", calendarId, err)
	}

	result := Result{CalendarId: calendarId, SyncType: SyncTypeIncremental, TotalCount: len(page.Events)}
	synced, err := s.apply(ctx, page.Events)
	result.SyncedCount = synced
	if err != nil {
		return result, fmt.Errorf("incremental sync of calendar %q failed: %w", calendarId, err)
	}

	if page.NextSyncToken != "" {
		if err := s.tokens.Set(calendarId, page.NextSyncToken); err != nil {
			return result, fmt.Errorf("could not save sync token for calendar %q: %w", calendarId, err)
		}
	}

	log.Infof("Incremental sync of calendar %q done: %d/%d events", calendarId, result.SyncedCount, result.TotalCount)
	s.publishCompleted(result)
	return result, nil
}

// ProcessNotification reacts to a push notification resource state. "sync"
// confirms a freshly created channel and seeds the mirror with a full sync,
// "exists" signals changed events, "not_exists" means the watched resource is
// gone and there is nothing to mirror.
func (s *Service) ProcessNotification(ctx context.Context, calendarId, state string) (Result, error) {
	switch state {
	case StateSync:
		return s.FullSync(ctx, calendarId)
	case StateExists:
		return s.IncrementalSync(ctx, calendarId)
	case StateNotExists:
		log.Warnf("Watched resource for calendar %q no longer exists", calendarId)
		return Result{CalendarId: calendarId, SyncType: "skipped"}, nil
	default:
		log.Warnf("Ignoring notification with unknown resource state %q for calendar %q", state, calendarId)
		return Result{CalendarId: calendarId, SyncType: "skipped"}, nil
	}
}

// apply mirrors the given events into the local store. Cancelled events are
// deleted, everything else is upserted keyed by UID so replays converge on the
// same state.
func (s *Service) apply(ctx context.Context, events []calendar.Event) (int, error) {
	synced := 0
	for _, event := range events {
		if event.UID == "" {
			log.Warnf("Skipping event without UID (%q)", event.Summary)
			continue
		}
		if event.Status == calendar.EventStatusCancelled {
			if err := s.store.Delete(ctx, event.UID); err != nil {
				return synced, fmt.Errorf("could not delete event %q: %w", event.UID, err)
			}
			log.Debugf("Deleted cancelled event %q", event.UID)
		} else {
			if err := s.store.Upsert(ctx, event); err != nil {
				return synced, fmt.Errorf("could not store event %q: %w", event.UID, err)
			}
			log.Debugf("Stored event %q (%s)", event.UID, event.Summary)
		}
		synced++
	}
	return synced, nil
}

func (s *Service) publishCompleted(result Result) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event_bus.NewEvent(event_bus.SyncCompletedEvent, event_bus.SyncCompleted{
		CalendarId:  result.CalendarId,
		SyncType:    result.SyncType,
		SyncedCount: result.SyncedCount,
		TotalCount:  result.TotalCount,
	}))
}

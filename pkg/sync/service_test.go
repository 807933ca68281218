package sync

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/calmirror/calmirror/internal/event_bus"
	"github.com/calmirror/calmirror/pkg/calendar"
	"github.com/calmirror/calmirror/pkg/synctoken"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type providerStub struct {
	fullPage    calendar.SyncPage
	fullErr     error
	changesPage calendar.SyncPage
	changesErr  error

	fullCalls    int
	changesCalls int
	lastToken    string
}

func (p *providerStub) ListEvents(ctx context.Context, calendarId string) (calendar.SyncPage, error) {
	p.fullCalls++
	return p.fullPage, p.fullErr
}

func (p *providerStub) ListChanges(ctx context.Context, calendarId string, syncToken string) (calendar.SyncPage, error) {
	p.changesCalls++
	p.lastToken = syncToken
	return p.changesPage, p.changesErr
}

type storeStub struct {
	events    map[string]calendar.Event
	upsertErr error
}

func newStoreStub() *storeStub {
	return &storeStub{events: map[string]calendar.Event{}}
}

func (s *storeStub) Upsert(ctx context.Context, event calendar.Event) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.events[event.UID] = event
	return nil
}

func (s *storeStub) Delete(ctx context.Context, uid string) error {
	delete(s.events, uid)
	return nil
}

func (s *storeStub) List(ctx context.Context, from, to time.Time) ([]calendar.Event, error) {
	var events []calendar.Event
	for _, event := range s.events {
		events = append(events, event)
	}
	return events, nil
}

func newTokenStore(t *testing.T) *synctoken.Store {
	t.Helper()
	return synctoken.NewStore(filepath.Join(t.TempDir(), "sync_tokens.json"))
}

func event(uid, summary string) calendar.Event {
	return calendar.Event{
		UID:       uid,
		Summary:   summary,
		StartTime: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		Status:    calendar.EventStatusConfirmed,
	}
}

func cancelled(uid string) calendar.Event {
	return calendar.Event{UID: uid, Status: calendar.EventStatusCancelled}
}

func TestService_FullSync(t *testing.T) {
	// given
	provider := &providerStub{
		fullPage: calendar.SyncPage{
			Events:        []calendar.Event{event("ev-1", "Standup"), event("ev-2", "Review")},
			NextSyncToken: "token-1",
		},
	}
	store := newStoreStub()
	tokens := newTokenStore(t)
	service := NewService(provider, store, tokens, event_bus.NewEventBus())

	// when
	result, err := service.FullSync(context.Background(), "primary")

	// then
	require.NoError(t, err)
	assert.Equal(t, SyncTypeFull, result.SyncType)
	assert.Equal(t, 2, result.SyncedCount)
	assert.Equal(t, 2, result.TotalCount)
	assert.Len(t, store.events, 2)
	assert.Equal(t, "token-1", tokens.Get("primary"))
}

func TestService_FullSync_ReplayConvergesOnSameState(t *testing.T) {
	// given
	provider := &providerStub{
		fullPage: calendar.SyncPage{
			Events:        []calendar.Event{event("ev-1", "Standup"), event("ev-2", "Review")},
			NextSyncToken: "token-1",
		},
	}
	store := newStoreStub()
	service := NewService(provider, store, newTokenStore(t), nil)

	// when the same listing is applied twice
	_, err := service.FullSync(context.Background(), "primary")
	require.NoError(t, err)
	_, err = service.FullSync(context.Background(), "primary")
	require.NoError(t, err)

	// then events are stored once, keyed by UID
	assert.Len(t, store.events, 2)
}

func TestService_FullSync_DoesNotSaveTokenOnStoreFailure(t *testing.T) {
	// given
	provider := &providerStub{
		fullPage: calendar.SyncPage{
			Events:        []calendar.Event{event("ev-1", "Standup")},
			NextSyncToken: "token-1",
		},
	}
	store := newStoreStub()
	store.upsertErr = errors.New("radicale is down")
	tokens := newTokenStore(t)
	service := NewService(provider, store, tokens, nil)

	// when
	_, err := service.FullSync(context.Background(), "primary")

	// then the run fails and the token stays unset so a retry replays everything
	assert.Error(t, err)
	assert.Equal(t, "", tokens.Get("primary"))
}

func TestService_IncrementalSync(t *testing.T) {
	t.Run("applies changes and advances the token", func(t *testing.T) {
		// given
		provider := &providerStub{
			changesPage: calendar.SyncPage{
				Events:        []calendar.Event{event("ev-2", "Review (moved)"), cancelled("ev-1")},
				NextSyncToken: "token-2",
			},
		}
		store := newStoreStub()
		store.events["ev-1"] = event("ev-1", "Standup")
		store.events["ev-2"] = event("ev-2", "Review")
		tokens := newTokenStore(t)
		require.NoError(t, tokens.Set("primary", "token-1"))
		service := NewService(provider, store, tokens, event_bus.NewEventBus())

		// when
		result, err := service.IncrementalSync(context.Background(), "primary")

		// then
		require.NoError(t, err)
		assert.Equal(t, SyncTypeIncremental, result.SyncType)
		assert.Equal(t, 2, result.SyncedCount)
		assert.Equal(t, "token-1", provider.lastToken)
		assert.Equal(t, "token-2", tokens.Get("primary"))

		// cancelled event is gone, changed event is replaced
		assert.NotContains(t, store.events, "ev-1")
		assert.Equal(t, "Review (moved)", store.events["ev-2"].Summary)
	})

	t.Run("falls back to full sync when no token is stored", func(t *testing.T) {
		// given
		provider := &providerStub{
			fullPage: calendar.SyncPage{
				Events:        []calendar.Event{event("ev-1", "Standup")},
				NextSyncToken: "token-1",
			},
		}
		service := NewService(provider, newStoreStub(), newTokenStore(t), nil)

		// when
		result, err := service.IncrementalSync(context.Background(), "primary")

		// then
		require.NoError(t, err)
		assert.Equal(t, SyncTypeFull, result.SyncType)
		assert.Equal(t, 1, provider.fullCalls)
		assert.Equal(t, 0, provider.changesCalls)
	})

	t.Run("clears an expired token and runs a full sync", func(t *testing.T) {
		// given
		provider := &providerStub{
			changesErr: calendar.ErrSyncTokenExpired,
			fullPage: calendar.SyncPage{
				Events:        []calendar.Event{event("ev-1", "Standup")},
				NextSyncToken: "token-fresh",
			},
		}
		tokens := newTokenStore(t)
		require.NoError(t, tokens.Set("primary", "token-stale"))
		store := newStoreStub()
		service := NewService(provider, store, tokens, nil)

		// when
		result, err := service.IncrementalSync(context.Background(), "primary")

		// then
		require.NoError(t, err)
		assert.Equal(t, SyncTypeFull, result.SyncType)
		assert.Equal(t, 1, provider.changesCalls)
		assert.Equal(t, 1, provider.fullCalls)
		assert.Equal(t, "token-fresh", tokens.Get("primary"))
		assert.Len(t, store.events, 1)
	})
}

func TestService_ProcessNotification(t *testing.T) {
	tests := []struct {
		name            string
		state           string
		wantFullCalls   int
		wantChangeCalls int
		wantSyncType    string
	}{
		{name: "sync state seeds the mirror with a full sync", state: StateSync, wantFullCalls: 1, wantSyncType: SyncTypeFull},
		{name: "exists state triggers an incremental sync", state: StateExists, wantChangeCalls: 1, wantSyncType: SyncTypeIncremental},
		{name: "not_exists state is logged and skipped", state: StateNotExists, wantSyncType: "skipped"},
		{name: "unknown state is skipped", state: "no-such-state", wantSyncType: "skipped"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// given
			provider := &providerStub{
				fullPage:    calendar.SyncPage{NextSyncToken: "token-1"},
				changesPage: calendar.SyncPage{NextSyncToken: "token-2"},
			}
			tokens := newTokenStore(t)
			require.NoError(t, tokens.Set("primary", "token-0"))
			service := NewService(provider, newStoreStub(), tokens, nil)

			// when
			result, err := service.ProcessNotification(context.Background(), "primary", tt.state)

			// then
			require.NoError(t, err)
			assert.Equal(t, tt.wantSyncType, result.SyncType)
			assert.Equal(t, tt.wantFullCalls, provider.fullCalls)
			assert.Equal(t, tt.wantChangeCalls, provider.changesCalls)
		})
	}
}

func TestService_Sync(t *testing.T) {
	// given a stored token
	provider := &providerStub{changesPage: calendar.SyncPage{NextSyncToken: "token-2"}}
	tokens := newTokenStore(t)
	require.NoError(t, tokens.Set("primary", "token-1"))
	service := NewService(provider, newStoreStub(), tokens, nil)

	// when
	result, err := service.Sync(context.Background(), "primary")

	// then the incremental path is taken
	require.NoError(t, err)
	assert.Equal(t, SyncTypeIncremental, result.SyncType)
}

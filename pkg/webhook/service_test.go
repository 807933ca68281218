package webhook

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/calmirror/calmirror/internal/utils"
	"github.com/calmirror/calmirror/pkg/calendar"
	"github.com/calmirror/calmirror/pkg/google"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type googleStub struct {
	watchCalls   int
	stoppedIds   []string
	watchFactory func(calendarId string) google.WatchChannel
}

func (g *googleStub) ListEvents(ctx context.Context, calendarId string) (calendar.SyncPage, error) {
	return calendar.SyncPage{}, nil
}

func (g *googleStub) ListChanges(ctx context.Context, calendarId string, syncToken string) (calendar.SyncPage, error) {
	return calendar.SyncPage{}, nil
}

func (g *googleStub) ListCalendars(ctx context.Context) ([]google.CalendarItem, error) {
	return nil, nil
}

func (g *googleStub) Watch(ctx context.Context, calendarId, webhookUrl string) (google.WatchChannel, error) {
	g.watchCalls++
	return g.watchFactory(calendarId), nil
}

func (g *googleStub) StopWatch(ctx context.Context, channelId, resourceId string) error {
	g.stoppedIds = append(g.stoppedIds, channelId)
	return nil
}

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func setupChannelService(t *testing.T) (*googleStub, *StubChannelRepository, *ChannelService) {
	t.Helper()
	googleService := &googleStub{}
	counter := 0
	googleService.watchFactory = func(calendarId string) google.WatchChannel {
		counter++
		return google.WatchChannel{
			ChannelId:  fmt.Sprintf("channel-%d", counter),
			ResourceId: fmt.Sprintf("resource-%d", counter),
			CalendarId: calendarId,
			Expiration: testNow.Add(7 * 24 * time.Hour),
		}
	}
	repo := NewStubChannelRepository()
	service := NewChannelService(googleService, repo, "https://mirror.example.com/webhook/google-calendar", &utils.MockClock{FixedNow: testNow})
	return googleService, repo, service
}

func TestChannelService_Register(t *testing.T) {
	// given
	googleService, repo, service := setupChannelService(t)

	// when
	channel, err := service.Register(context.Background(), "primary")

	// then
	require.NoError(t, err)
	assert.Equal(t, 1, googleService.watchCalls)
	assert.Equal(t, "primary", channel.CalendarId)

	stored, err := repo.Get(context.Background(), channel.ChannelId)
	require.NoError(t, err)
	assert.Equal(t, channel.ResourceId, stored.ResourceId)
	assert.Equal(t, testNow, stored.CreatedAt)
}

func TestChannelService_Register_RequiresWebhookUrl(t *testing.T) {
	googleService := &googleStub{}
	service := NewChannelService(googleService, NewStubChannelRepository(), "", &utils.MockClock{FixedNow: testNow})

	_, err := service.Register(context.Background(), "primary")

	assert.Error(t, err)
	assert.Equal(t, 0, googleService.watchCalls)
}

func TestChannelService_Stop(t *testing.T) {
	// given
	googleService, repo, service := setupChannelService(t)
	channel, err := service.Register(context.Background(), "primary")
	require.NoError(t, err)

	// when
	require.NoError(t, service.Stop(context.Background(), channel.ChannelId))

	// then Google was told and the record is gone
	assert.Equal(t, []string{channel.ChannelId}, googleService.stoppedIds)
	_, err = repo.Get(context.Background(), channel.ChannelId)
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestChannelService_Stop_UnknownChannel(t *testing.T) {
	_, _, service := setupChannelService(t)

	err := service.Stop(context.Background(), "no-such-channel")

	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestChannelService_Reconcile(t *testing.T) {
	t.Run("registers a channel when none exists", func(t *testing.T) {
		// given
		googleService, repo, service := setupChannelService(t)

		// when
		require.NoError(t, service.Reconcile(context.Background(), "primary", 144*time.Hour))

		// then
		assert.Equal(t, 1, googleService.watchCalls)
		channels, err := repo.FindAll(context.Background())
		require.NoError(t, err)
		assert.Len(t, channels, 1)
	})

	t.Run("keeps a channel that is far from expiring", func(t *testing.T) {
		// given an active channel expiring in 7 days
		googleService, _, service := setupChannelService(t)
		_, err := service.Register(context.Background(), "primary")
		require.NoError(t, err)
		googleService.watchCalls = 0

		// when reconciling with a 144h window
		require.NoError(t, service.Reconcile(context.Background(), "primary", 144*time.Hour))

		// then nothing changes
		assert.Equal(t, 0, googleService.watchCalls)
		assert.Empty(t, googleService.stoppedIds)
	})

	t.Run("replaces a channel expiring within the window", func(t *testing.T) {
		// given a channel that expires in one hour
		googleService, repo, service := setupChannelService(t)
		require.NoError(t, repo.Store(context.Background(), Channel{
			ChannelId:  "stale-channel",
			ResourceId: "stale-resource",
			CalendarId: "primary",
			Expiration: testNow.Add(time.Hour),
			CreatedAt:  testNow.Add(-6 * 24 * time.Hour),
		}))

		// when
		require.NoError(t, service.Reconcile(context.Background(), "primary", 144*time.Hour))

		// then the stale channel was stopped and a fresh one registered
		assert.Equal(t, []string{"stale-channel"}, googleService.stoppedIds)
		assert.Equal(t, 1, googleService.watchCalls)

		channels, err := repo.FindAll(context.Background())
		require.NoError(t, err)
		require.Len(t, channels, 1)
		assert.NotEqual(t, "stale-channel", channels[0].ChannelId)
	})

	t.Run("ignores channels of other calendars", func(t *testing.T) {
		// given a live channel for a different calendar
		googleService, _, service := setupChannelService(t)
		_, err := service.Register(context.Background(), "team-calendar")
		require.NoError(t, err)
		googleService.watchCalls = 0

		// when
		require.NoError(t, service.Reconcile(context.Background(), "primary", 144*time.Hour))

		// then a channel for primary is still created
		assert.Equal(t, 1, googleService.watchCalls)
	})
}

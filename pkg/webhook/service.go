package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calmirror/calmirror/internal/utils"
	"github.com/calmirror/calmirror/pkg/google"
	log "github.com/sirupsen/logrus"
)

// ChannelService manages the push notification channels that let Google
// notify the webhook endpoint about calendar changes.
type ChannelService struct {
	google     google.Service
	repo       ChannelRepository
	webhookUrl string
	clock      utils.Clock
}

func NewChannelService(googleService google.Service, repo ChannelRepository, webhookUrl string, clock utils.Clock) *ChannelService {
	return &ChannelService{
		google:     googleService,
		repo:       repo,
		webhookUrl: webhookUrl,
		clock:      clock,
	}
}

// Register creates a new push notification channel for the calendar and
// records it for later renewal.
func (s *ChannelService) Register(ctx context.Context, calendarId string) (Channel, error) {
	if s.webhookUrl == "" {
		return Channel{}, errors.New("webhook URL is not configured")
	}

	watch, err := s.google.Watch(ctx, calendarId, s.webhookUrl)
	if err != nil {
		return Channel{}, fmt.Errorf("could not register watch channel for calendar %q: %w", calendarId, err)
	}

	channel := Channel{
		ChannelId:  watch.ChannelId,
		ResourceId: watch.ResourceId,
		CalendarId: calendarId,
		Expiration: watch.Expiration,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.Store(ctx, channel); err != nil {
		return Channel{}, fmt.Errorf("could not store watch channel: %w", err)
	}
	return channel, nil
}

// Stop stops the channel at Google and removes its record.
func (s *ChannelService) Stop(ctx context.Context, channelId string) error {
	channel, err := s.repo.Get(ctx, channelId)
	if err != nil {
		return err
	}
	if err := s.google.StopWatch(ctx, channel.ChannelId, channel.ResourceId); err != nil {
		// Channels Google no longer knows about still need their record gone.
		log.Warnf("failed to stop watch channel %s at Google: %v", channelId, err)
	}
	return s.repo.Delete(ctx, channelId)
}

func (s *ChannelService) List(ctx context.Context) ([]Channel, error) {
	return s.repo.FindAll(ctx)
}

// Reconcile makes sure the calendar has a live channel. A missing channel is
// registered; channels expiring within the given window are replaced.
func (s *ChannelService) Reconcile(ctx context.Context, calendarId string, within time.Duration) error {
	channels, err := s.repo.FindAll(ctx)
	if err != nil {
		return err
	}

	deadline := s.clock.Now().Add(within)
	active := 0
	for _, channel := range channels {
		if channel.CalendarId != calendarId {
			continue
		}
		if channel.Expiration.Before(deadline) {
			log.Infof("Watch channel %s for calendar %q expires %s, replacing", channel.ChannelId, calendarId, channel.Expiration)
			if err := s.Stop(ctx, channel.ChannelId); err != nil {
				log.Errorf("failed to remove expiring channel %s: %v", channel.ChannelId, err)
			}
			continue
		}
		active++
	}

	if active > 0 {
		return nil
	}
	channel, err := s.Register(ctx, calendarId)
	if err != nil {
		return err
	}
	log.Infof("Registered watch channel %s for calendar %q (expires %s)", channel.ChannelId, calendarId, channel.Expiration)
	return nil
}

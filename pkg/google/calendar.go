package google

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/calmirror/calmirror/pkg/calendar"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// watchTTLSeconds is the maximum channel lifetime Google allows (7 days).
const watchTTLSeconds = "604800"

// WatchChannel describes an active push notification channel.
type WatchChannel struct {
	ChannelId  string
	ResourceId string
	CalendarId string
	Expiration time.Time
}

type CalendarItem struct {
	ID      string
	Summary string
}

// Service is the Google Calendar side of the mirror: event listings (full and
// incremental) plus push notification channel management.
type Service interface {
	calendar.Provider
	ListCalendars(ctx context.Context) ([]CalendarItem, error)
	Watch(ctx context.Context, calendarId, webhookUrl string) (WatchChannel, error)
	StopWatch(ctx context.Context, channelId, resourceId string) error
}

type ServiceImpl struct {
	auth *Auth
}

func NewService(auth *Auth) *ServiceImpl {
	return &ServiceImpl{auth: auth}
}

func (s *ServiceImpl) prepareService(ctx context.Context) (*gcal.Service, error) {
	client, err := s.auth.Client(ctx)
	if err != nil {
		return nil, err
	}
	service, err := gcal.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar client: %w", err)
	}
	return service, nil
}

// ListEvents performs a full listing of the calendar. The request carries no
// time filters: the API only hands out a nextSyncToken for unfiltered
// listings, and the token is the whole point of the full sync.
func (s *ServiceImpl) ListEvents(ctx context.Context, calendarId string) (calendar.SyncPage, error) {
	service, err := s.prepareService(ctx)
	if err != nil {
		return calendar.SyncPage{}, err
	}

	var page calendar.SyncPage
	pageToken := ""
	for {
		call := service.Events.List(calendarId).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		result, err := call.Do()
		if err != nil {
			return calendar.SyncPage{}, classifyAPIError(err, "unable to retrieve events from Google Calendar")
		}
		for _, item := range result.Items {
			page.Events = append(page.Events, toEvent(item))
		}
		if result.NextPageToken == "" {
			page.NextSyncToken = result.NextSyncToken
			break
		}
		pageToken = result.NextPageToken
	}

	log.Infof("Fetched %d events from Google Calendar %q", len(page.Events), calendarId)
	return page, nil
}

// ListChanges lists only the events changed since the given sync token.
// Deleted events come back with status cancelled.
func (s *ServiceImpl) ListChanges(ctx context.Context, calendarId string, syncToken string) (calendar.SyncPage, error) {
	service, err := s.prepareService(ctx)
	if err != nil {
		return calendar.SyncPage{}, err
	}

	var page calendar.SyncPage
	pageToken := ""
	for {
		call := service.Events.List(calendarId).SyncToken(syncToken).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		result, err := call.Do()
		if err != nil {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == 410 {
				log.Warnf("Sync token for calendar %q expired", calendarId)
				return calendar.SyncPage{}, calendar.ErrSyncTokenExpired
			}
			return calendar.SyncPage{}, classifyAPIError(err, "unable to retrieve changed events from Google Calendar")
		}
		for _, item := range result.Items {
			page.Events = append(page.Events, toEvent(item))
		}
		if result.NextPageToken == "" {
			page.NextSyncToken = result.NextSyncToken
			break
		}
		pageToken = result.NextPageToken
	}

	log.Infof("Fetched %d changed events from Google Calendar %q", len(page.Events), calendarId)
	return page, nil
}

func (s *ServiceImpl) ListCalendars(ctx context.Context) ([]CalendarItem, error) {
	service, err := s.prepareService(ctx)
	if err != nil {
		return nil, err
	}
	calendars, err := service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, classifyAPIError(err, "unable to retrieve calendars from Google Calendar")
	}
	var items []CalendarItem
	for _, cal := range calendars.Items {
		items = append(items, CalendarItem{
			ID:      cal.Id,
			Summary: cal.Summary,
		})
	}
	return items, nil
}

// Watch registers a push notification channel for the calendar.
func (s *ServiceImpl) Watch(ctx context.Context, calendarId, webhookUrl string) (WatchChannel, error) {
	service, err := s.prepareService(ctx)
	if err != nil {
		return WatchChannel{}, err
	}

	request := &gcal.Channel{
		Id:      uuid.New().String(),
		Type:    "web_hook",
		Address: webhookUrl,
		Params:  map[string]string{"ttl": watchTTLSeconds},
	}
	result, err := service.Events.Watch(calendarId, request).Context(ctx).Do()
	if err != nil {
		return WatchChannel{}, classifyAPIError(err, "unable to set up Google Calendar watch channel")
	}

	// Expiration comes back as unix milliseconds.
	expiration := time.Time{}
	if result.Expiration > 0 {
		expiration = time.UnixMilli(result.Expiration)
	}
	log.Infof("Watching Google Calendar %q via channel %s (expires %s)", calendarId, result.Id, expiration)
	return WatchChannel{
		ChannelId:  result.Id,
		ResourceId: result.ResourceId,
		CalendarId: calendarId,
		Expiration: expiration,
	}, nil
}

// StopWatch stops an active push notification channel.
func (s *ServiceImpl) StopWatch(ctx context.Context, channelId, resourceId string) error {
	service, err := s.prepareService(ctx)
	if err != nil {
		return err
	}
	err = service.Channels.Stop(&gcal.Channel{Id: channelId, ResourceId: resourceId}).Context(ctx).Do()
	if err != nil {
		return classifyAPIError(err, "unable to stop Google Calendar watch channel")
	}
	log.Infof("Stopped Google Calendar watch channel %s", channelId)
	return nil
}

// classifyAPIError wraps Google API errors so that credential problems are
// recognizable as terminal by the task queue.
func classifyAPIError(err error, msg string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == 401 || apiErr.Code == 403) {
		return fmt.Errorf("%s: %s: %w", msg, strconv.Itoa(apiErr.Code)+" "+apiErr.Message, ErrUnauthenticated)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

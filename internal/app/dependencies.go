package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/calmirror/calmirror/internal/config"
	"github.com/calmirror/calmirror/internal/event_bus"
	"github.com/calmirror/calmirror/internal/metrics"
	"github.com/calmirror/calmirror/internal/scheduler"
	"github.com/calmirror/calmirror/internal/utils"
	"github.com/calmirror/calmirror/pkg/google"
	"github.com/calmirror/calmirror/pkg/radicale"
	"github.com/calmirror/calmirror/pkg/sync"
	"github.com/calmirror/calmirror/pkg/synctoken"
	"github.com/calmirror/calmirror/pkg/task"
	"github.com/calmirror/calmirror/pkg/webhook"
	log "github.com/sirupsen/logrus"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Bus     *event_bus.EventBus
	Metrics *metrics.Recorder

	GoogleAuth    *google.Auth
	GoogleService google.Service
	GoogleHandler *google.Handler

	RadicaleClient   *radicale.Client
	RadicaleContacts *radicale.ContactsClient
	RadicaleHandler  *radicale.Handler

	SyncTokens  *synctoken.Store
	SyncService *sync.Service
	SyncHandler *sync.Handler

	TaskRepo    task.Repository
	TaskQueue   *task.Queue
	TaskHandler *task.Handler

	ChannelRepo    webhook.ChannelRepository
	ChannelService *webhook.ChannelService
	WebhookHandler *webhook.Handler

	Scheduler *scheduler.Scheduler

	Clock utils.Clock
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *sql.DB, cfg config.Application) (*Dependencies, error) {
	deps := &Dependencies{}

	deps.Clock = &utils.SystemClock{}
	deps.Bus = event_bus.NewEventBus()
	deps.Metrics = metrics.NewRecorder()
	deps.Metrics.SubscribeTo(deps.Bus)

	googleAuth, err := google.NewAuth(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not set up Google auth: %w", err)
	}
	deps.GoogleAuth = googleAuth
	deps.GoogleService = google.NewService(deps.GoogleAuth)
	deps.GoogleHandler = google.NewHandler(deps.GoogleService)

	deps.RadicaleClient = radicale.NewClient(cfg.Radicale)
	deps.RadicaleContacts = radicale.NewContactsClient(cfg.Radicale)
	deps.RadicaleHandler = radicale.NewHandler(deps.RadicaleClient, deps.RadicaleContacts)

	deps.SyncTokens = synctoken.NewStore(cfg.Sync.TokensFile)
	deps.SyncService = sync.NewService(deps.GoogleService, deps.RadicaleClient, deps.SyncTokens, deps.Bus)

	deps.TaskRepo = task.NewRepository(db)
	deps.TaskQueue = task.NewQueue(deps.TaskRepo, deps.Bus, task.Options{
		Workers:      cfg.Sync.Workers,
		MaxRetries:   cfg.Sync.MaxRetries,
		RetryBackoff: cfg.Sync.RetryBackoff,
		IsTerminal: func(err error) bool {
			return errors.Is(err, google.ErrUnauthenticated)
		},
	})
	deps.TaskHandler = task.NewHandler(deps.TaskRepo)
	deps.SyncHandler = sync.NewHandler(deps.TaskQueue, cfg.Google.CalendarId)

	deps.ChannelRepo = webhook.NewChannelRepository(db)
	deps.ChannelService = webhook.NewChannelService(deps.GoogleService, deps.ChannelRepo, cfg.Google.WebhookUrl, deps.Clock)
	deps.WebhookHandler = webhook.NewHandler(deps.TaskQueue, deps.ChannelService, cfg.Google.CalendarId)

	deps.Scheduler = scheduler.New(deps.TaskQueue, cfg.Sync, cfg.Google.CalendarId)

	registerTaskHandlers(deps, cfg)
	return deps, nil
}

// registerTaskHandlers binds each task kind to the service call that executes
// it on the worker pool.
func registerTaskHandlers(deps *Dependencies, cfg config.Application) {
	runSync := func(ctx context.Context, t task.Task) (json.RawMessage, error) {
		var request sync.Request
		if err := json.Unmarshal(t.Payload, &request); err != nil {
			return nil, fmt.Errorf("invalid sync payload: %w", err)
		}
		if request.CalendarId == "" {
			request.CalendarId = cfg.Google.CalendarId
		}

		var result sync.Result
		var err error
		if request.SyncType == sync.SyncTypeFull {
			result, err = deps.SyncService.FullSync(ctx, request.CalendarId)
		} else {
			result, err = deps.SyncService.IncrementalSync(ctx, request.CalendarId)
		}
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	}
	deps.TaskQueue.Register(task.KindSync, runSync)
	deps.TaskQueue.Register(task.KindPeriodicSync, runSync)

	deps.TaskQueue.Register(task.KindNotification, func(ctx context.Context, t task.Task) (json.RawMessage, error) {
		var notification webhook.Notification
		if err := json.Unmarshal(t.Payload, &notification); err != nil {
			return nil, fmt.Errorf("invalid notification payload: %w", err)
		}

		// The notification carries no calendar id; the channel record does.
		calendarId := cfg.Google.CalendarId
		channel, err := deps.ChannelRepo.Get(ctx, notification.ChannelId)
		if err == nil {
			calendarId = channel.CalendarId
		} else if !errors.Is(err, webhook.ErrChannelNotFound) {
			return nil, err
		} else {
			log.Warnf("Notification from unknown channel %s, using configured calendar", notification.ChannelId)
		}

		result, err := deps.SyncService.ProcessNotification(ctx, calendarId, notification.ResourceState)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	})

	deps.TaskQueue.Register(task.KindChannelSetup, func(ctx context.Context, t task.Task) (json.RawMessage, error) {
		err := deps.ChannelService.Reconcile(ctx, cfg.Google.CalendarId, cfg.Sync.ChannelRefreshInterval)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{"status": "reconciled"})
	})
}

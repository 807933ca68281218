package scheduler

import (
	"context"
	"encoding/json"

	"github.com/calmirror/calmirror/internal/config"
	"github.com/calmirror/calmirror/pkg/sync"
	"github.com/calmirror/calmirror/pkg/task"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Scheduler enqueues the recurring background work: the periodic incremental
// sync that catches anything the push notifications missed, and the watch
// channel renewal that replaces channels before Google expires them.
type Scheduler struct {
	cron       *cron.Cron
	queue      *task.Queue
	cfg        config.Sync
	calendarId string
}

func New(queue *task.Queue, cfg config.Sync, calendarId string) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		queue:      queue,
		cfg:        cfg,
		calendarId: calendarId,
	}
}

func (s *Scheduler) Start() {
	s.cron.Schedule(cron.Every(s.cfg.Interval), cron.FuncJob(s.enqueuePeriodicSync))
	s.cron.Schedule(cron.Every(s.cfg.ChannelRefreshInterval), cron.FuncJob(s.enqueueChannelSetup))
	s.cron.Start()

	// Make sure a watch channel exists right away instead of waiting for the
	// first renewal tick.
	s.enqueueChannelSetup()

	log.Infof("Scheduler started: sync every %s, channel refresh every %s", s.cfg.Interval, s.cfg.ChannelRefreshInterval)
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) enqueuePeriodicSync() {
	payload, err := json.Marshal(sync.Request{
		CalendarId: s.calendarId,
		SyncType:   sync.SyncTypeIncremental,
	})
	if err != nil {
		log.Errorf("failed to marshal periodic sync payload: %v", err)
		return
	}
	if _, err := s.queue.Enqueue(context.Background(), task.KindPeriodicSync, payload); err != nil {
		log.Errorf("failed to queue periodic sync: %v", err)
	}
}

func (s *Scheduler) enqueueChannelSetup() {
	if _, err := s.queue.Enqueue(context.Background(), task.KindChannelSetup, nil); err != nil {
		log.Errorf("failed to queue watch channel setup: %v", err)
	}
}

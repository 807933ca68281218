package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/calmirror/calmirror/internal/event_bus"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// HandlerFunc executes one task. The returned JSON document is stored as the
// task result.
type HandlerFunc func(ctx context.Context, t Task) (json.RawMessage, error)

type Options struct {
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// IsTerminal reports errors that must not be retried, such as
	// authentication failures that need manual intervention.
	IsTerminal func(error) bool
}

// Queue runs tasks on a pool of workers outside the request path. Task state
// is persisted through the Repository so status polling survives restarts;
// transient failures are re-queued after a fixed backoff up to MaxRetries.
type Queue struct {
	repo Repository
	bus  *event_bus.EventBus
	opts Options

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewQueue(repo Repository, bus *event_bus.EventBus, opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		repo:     repo,
		bus:      bus,
		opts:     opts,
		handlers: map[string]HandlerFunc{},
		tasks:    make(chan Task, 256),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register binds a handler to a task kind. Must be called before Start.
func (q *Queue) Register(kind string, h HandlerFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = h
}

func (q *Queue) handler(kind string) HandlerFunc {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.handlers[kind]
}

// Start launches the worker pool and re-queues tasks that were left
// unfinished by a previous run. Workers come up first so a backlog larger
// than the channel buffer drains instead of deadlocking the startup.
func (q *Queue) Start() error {
	unfinished, err := q.repo.FindUnfinished(q.ctx)
	if err != nil {
		return fmt.Errorf("could not load unfinished tasks: %w", err)
	}

	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}

	for _, t := range unfinished {
		if t.Status == StatusRunning {
			t.Status = StatusQueued
			t.UpdatedAt = time.Now()
			if err := q.repo.Update(q.ctx, t); err != nil {
				log.Errorf("failed to re-queue task %s: %v", t.Id, err)
				continue
			}
		}
		select {
		case q.tasks <- t:
		case <-q.ctx.Done():
			return nil
		}
	}
	if len(unfinished) > 0 {
		log.Infof("Re-queued %d unfinished tasks", len(unfinished))
	}

	log.Infof("Task queue started with %d workers", q.opts.Workers)
	return nil
}

// Stop cancels the workers and waits for in-flight tasks to return.
func (q *Queue) Stop() {
	q.cancel()
	q.wg.Wait()
}

// Enqueue persists a new task and hands it to the worker pool. It never
// blocks on task execution.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload json.RawMessage) (Task, error) {
	now := time.Now()
	t := Task{
		Id:        uuid.New().String(),
		Kind:      kind,
		Payload:   payload,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.repo.Store(ctx, t); err != nil {
		return Task{}, err
	}
	q.publishState(t)

	select {
	case q.tasks <- t:
	default:
		// Queue buffer is full; the task is persisted and will be picked up
		// on the next restart, but this points at a stuck downstream.
		log.Errorf("task queue buffer full, task %s deferred", t.Id)
	}
	return t, nil
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case t := <-q.tasks:
			q.run(t)
		}
	}
}

func (q *Queue) run(t Task) {
	t.Status = StatusRunning
	t.UpdatedAt = time.Now()
	if err := q.repo.Update(q.ctx, t); err != nil {
		log.Errorf("failed to mark task %s running: %v", t.Id, err)
		return
	}
	q.publishState(t)

	handler := q.handler(t.Kind)
	if handler == nil {
		q.fail(t, fmt.Errorf("no handler registered for task kind %q", t.Kind))
		return
	}

	result, err := handler(q.ctx, t)
	if err == nil {
		t.Status = StatusCompleted
		t.Result = result
		t.Error = ""
		t.UpdatedAt = time.Now()
		if err := q.repo.Update(q.ctx, t); err != nil {
			log.Errorf("failed to mark task %s completed: %v", t.Id, err)
			return
		}
		q.publishState(t)
		log.Debugf("Task %s (%s) completed", t.Id, t.Kind)
		return
	}

	if q.opts.IsTerminal != nil && q.opts.IsTerminal(err) {
		log.Errorf("task %s failed with non-retryable error: %v", t.Id, err)
		q.fail(t, err)
		return
	}
	if t.Retries >= q.opts.MaxRetries {
		log.Errorf("max retries reached for task %s: %v", t.Id, err)
		q.fail(t, fmt.Errorf("max retries reached: %w", err))
		return
	}

	t.Retries++
	t.Status = StatusQueued
	t.Error = err.Error()
	t.UpdatedAt = time.Now()
	if updateErr := q.repo.Update(q.ctx, t); updateErr != nil {
		log.Errorf("failed to re-queue task %s: %v", t.Id, updateErr)
		return
	}
	q.publishState(t)
	log.Infof("Retrying task %s in %s (attempt %d/%d): %v", t.Id, q.opts.RetryBackoff, t.Retries, q.opts.MaxRetries, err)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		select {
		case <-q.ctx.Done():
		case <-time.After(q.opts.RetryBackoff):
			select {
			case q.tasks <- t:
			case <-q.ctx.Done():
			}
		}
	}()
}

func (q *Queue) fail(t Task, err error) {
	t.Status = StatusFailed
	t.Error = err.Error()
	t.UpdatedAt = time.Now()
	if updateErr := q.repo.Update(q.ctx, t); updateErr != nil {
		log.Errorf("failed to mark task %s failed: %v", t.Id, updateErr)
		return
	}
	q.publishState(t)
}

func (q *Queue) publishState(t Task) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(event_bus.NewEvent(event_bus.TaskStateChangedEvent, event_bus.TaskStateChanged{
		TaskId: t.Id,
		Kind:   t.Kind,
		Status: string(t.Status),
	}))
}

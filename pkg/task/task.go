package task

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const (
	KindNotification = "notification"
	KindSync         = "sync"
	KindPeriodicSync = "periodic_sync"
	KindChannelSetup = "channel_setup"
)

// Task is one queued sync attempt. Payload and Result are JSON documents; the
// queue does not interpret them beyond handing the payload to the registered
// handler and storing whatever the handler returns.
type Task struct {
	Id        string
	Kind      string
	Payload   json.RawMessage
	Status    Status
	Retries   int
	Result    json.RawMessage
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Finished reports whether the task reached a terminal state.
func (t Task) Finished() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

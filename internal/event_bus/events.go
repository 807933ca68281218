package event_bus

const (
	SyncCompletedEvent    EventType = "sync.completed"
	TaskStateChangedEvent EventType = "task.state_changed"
)

// SyncCompleted is published after a full or incremental sync run finished.
type SyncCompleted struct {
	CalendarId  string
	SyncType    string
	SyncedCount int
	TotalCount  int
}

// TaskStateChanged is published on every task state transition.
type TaskStateChanged struct {
	TaskId string
	Kind   string
	Status string
}

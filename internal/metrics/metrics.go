package metrics

import (
	"github.com/calmirror/calmirror/internal/event_bus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exports sync and task counters to Prometheus. It is fed from the
// event bus so that workers do not depend on the metrics registry directly.
type Recorder struct {
	tasksTotal   *prometheus.CounterVec
	syncRuns     *prometheus.CounterVec
	eventsSynced prometheus.Counter
	eventsSeen   prometheus.Counter
}

func NewRecorder() *Recorder {
	return &Recorder{
		tasksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "calmirror_tasks_total",
			Help: "Task state transitions by kind and status.",
		}, []string{"kind", "status"}),
		syncRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "calmirror_sync_runs_total",
			Help: "Completed sync runs by type.",
		}, []string{"type"}),
		eventsSynced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "calmirror_events_synced_total",
			Help: "Events successfully mirrored to the local store.",
		}),
		eventsSeen: promauto.NewCounter(prometheus.CounterOpts{
			Name: "calmirror_events_seen_total",
			Help: "Events returned by the provider across all sync runs.",
		}),
	}
}

// SubscribeTo wires the recorder into the bus.
func (r *Recorder) SubscribeTo(bus *event_bus.EventBus) {
	bus.Subscribe(event_bus.SyncCompletedEvent, func(e event_bus.Event) {
		completed, ok := e.Data.(event_bus.SyncCompleted)
		if !ok {
			return
		}
		r.syncRuns.WithLabelValues(completed.SyncType).Inc()
		r.eventsSynced.Add(float64(completed.SyncedCount))
		r.eventsSeen.Add(float64(completed.TotalCount))
	})
	bus.Subscribe(event_bus.TaskStateChangedEvent, func(e event_bus.Event) {
		changed, ok := e.Data.(event_bus.TaskStateChanged)
		if !ok {
			return
		}
		r.tasksTotal.WithLabelValues(changed.Kind, changed.Status).Inc()
	})
}

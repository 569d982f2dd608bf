// Package offline buffers submissions made while the provider is
// unreachable and replays them in submission order once connectivity
// returns.
package offline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	api "github.com/samvaadcop/orchestrator/api/conversation"
	"github.com/samvaadcop/orchestrator/internal/metrics"
)

// Entry is one deferred submission. The queue owns it until dequeue, at
// which point the outcome belongs to the replay path.
type Entry struct {
	MessageID  string
	Request    api.Request
	Sender     api.Sender
	EnqueuedAt time.Time
}

// OnlineReporter is the connectivity signal the queue gates on.
type OnlineReporter interface {
	Online() bool
}

// ReplayFunc processes one dequeued entry through the pipeline path. The
// returned error is informational: a failed replay becomes a failed message
// and never halts the drain.
type ReplayFunc func(ctx context.Context, entry Entry) error

// Queue is the FIFO offline buffer. Drains snapshot the queue at start:
// entries enqueued while a drain is running wait for the next online edge,
// which keeps every drain pass bounded under continuous submission.
type Queue struct {
	mu       sync.Mutex
	entries  []Entry
	draining bool

	monitor OnlineReporter
	replay  ReplayFunc
	log     *slog.Logger
}

// NewQueue builds an empty queue draining through replay when monitor
// reports online.
func NewQueue(monitor OnlineReporter, replay ReplayFunc) *Queue {
	return &Queue{
		monitor: monitor,
		replay:  replay,
		log:     slog.Default(),
	}
}

// Enqueue appends an entry, stamping EnqueuedAt when unset.
func (q *Queue) Enqueue(entry Entry) {
	q.mu.Lock()
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = time.Now()
	}
	q.entries = append(q.entries, entry)
	depth := len(q.entries)
	q.mu.Unlock()

	metrics.OfflineQueueDepth.Set(float64(depth))
	q.log.Info("submission queued for replay", "messageID", entry.MessageID, "queueDepth", depth)
}

// Len returns the number of waiting entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// DrainIfOnline replays queued entries one at a time in enqueue order. It is
// a no-op when offline, when empty, or when another drain is in progress.
// It returns the number of entries attempted.
func (q *Queue) DrainIfOnline(ctx context.Context) int {
	if !q.monitor.Online() {
		return 0
	}

	q.mu.Lock()
	if q.draining || len(q.entries) == 0 {
		q.mu.Unlock()
		return 0
	}
	q.draining = true
	snapshot := q.entries
	q.entries = nil
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		depth := len(q.entries)
		q.mu.Unlock()
		metrics.OfflineQueueDepth.Set(float64(depth))
	}()

	q.log.Info("draining offline queue", "entries", len(snapshot))
	for _, entry := range snapshot {
		if err := q.replay(ctx, entry); err != nil {
			q.log.Warn("replay failed", "messageID", entry.MessageID, "error", err)
		}
		metrics.OfflineReplays.Inc()
	}
	return len(snapshot)
}

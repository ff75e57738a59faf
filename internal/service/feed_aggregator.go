package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/portal-notify-api/internal/activity"
	"github.com/noah-isme/portal-notify-api/internal/observability"
)

// LoadFailureNotice is shown to viewers while the activity collection cannot be loaded.
const LoadFailureNotice = "failed to load notifications"

// FeedEvent is delivered to aggregator listeners. Exactly one of Snapshot or Notice is set.
type FeedEvent struct {
	Snapshot *activity.Snapshot
	Notice   string
}

// FeedAggregator owns the normalized working set of the activity collection.
type FeedAggregator interface {
	Start(ctx context.Context)
	Stop()
	Snapshot() *activity.Snapshot
	Degraded() bool
	ApplyRead(uid string, ids ...string)
	Listen() (<-chan FeedEvent, func())
}

type feedAggregator struct {
	store  ActivityStore
	logger zerolog.Logger
	now    func() time.Time

	state    atomic.Pointer[activity.Snapshot]
	degraded atomic.Bool
	version  atomic.Uint64

	// mu serialises snapshot swaps with overlay changes.
	mu      sync.Mutex
	overlay map[string]map[string]struct{}

	listenersMu sync.Mutex
	listeners   map[chan FeedEvent]struct{}

	unsubscribe func()
}

// NewFeedAggregator constructs an aggregator over store. It holds an empty snapshot until
// Start delivers the first load.
func NewFeedAggregator(store ActivityStore, logger zerolog.Logger) FeedAggregator {
	a := &feedAggregator{
		store:     store,
		logger:    logger.With().Str("component", "feed_aggregator").Logger(),
		now:       time.Now,
		overlay:   make(map[string]map[string]struct{}),
		listeners: make(map[chan FeedEvent]struct{}),
	}
	a.state.Store(activity.Empty())
	return a
}

func (a *feedAggregator) Start(ctx context.Context) {
	a.unsubscribe = a.store.Subscribe(ctx, a.onSnapshot, a.onError)
}

func (a *feedAggregator) Stop() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
}

func (a *feedAggregator) Snapshot() *activity.Snapshot {
	return a.state.Load()
}

func (a *feedAggregator) Degraded() bool {
	return a.degraded.Load()
}

// ApplyRead marks ids read for uid in the current snapshot and remembers the marks until a
// loaded snapshot confirms them.
func (a *feedAggregator) ApplyRead(uid string, ids ...string) {
	if uid == "" || len(ids) == 0 {
		return
	}

	a.mu.Lock()
	for _, id := range ids {
		readers, ok := a.overlay[id]
		if !ok {
			readers = make(map[string]struct{})
			a.overlay[id] = readers
		}
		readers[uid] = struct{}{}
	}
	current := a.state.Load()
	updated := current.WithRead(uid, ids...)
	changed := updated != current
	if changed {
		a.state.Store(updated)
	}
	a.mu.Unlock()

	if changed {
		a.broadcast(FeedEvent{Snapshot: updated})
	}
}

// Listen registers a listener. Each listener holds at most one undelivered event; a newer
// event replaces an unread older one.
func (a *feedAggregator) Listen() (<-chan FeedEvent, func()) {
	ch := make(chan FeedEvent, 1)

	a.listenersMu.Lock()
	a.listeners[ch] = struct{}{}
	a.listenersMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.listenersMu.Lock()
			delete(a.listeners, ch)
			a.listenersMu.Unlock()
		})
	}
}

func (a *feedAggregator) onSnapshot(docs map[string]activity.Document) {
	version := a.version.Add(1)
	snapshot, warnings := activity.Build(version, a.now().UTC(), docs)
	for _, warning := range warnings {
		a.logger.Warn().Str("record_id", warning.RecordID).Str("reason", warning.Reason).Msg("malformed activity record")
	}
	observability.MalformedRecords().Add(float64(len(warnings)))

	a.mu.Lock()
	snapshot = a.applyOverlay(snapshot)
	a.state.Store(snapshot)
	a.mu.Unlock()

	if a.degraded.Swap(false) {
		a.logger.Info().Uint64("version", version).Msg("activity feed recovered")
	}

	observability.SnapshotReloads().WithLabelValues("ok").Inc()
	observability.SnapshotRecords().Set(float64(snapshot.Len()))
	a.logger.Debug().Uint64("version", version).Int("records", snapshot.Len()).Msg("activity snapshot loaded")

	a.broadcast(FeedEvent{Snapshot: snapshot})
}

// applyOverlay re-applies local read marks the store has not confirmed yet and forgets the
// ones it has. Must be called with a.mu held.
func (a *feedAggregator) applyOverlay(snapshot *activity.Snapshot) *activity.Snapshot {
	for id, readers := range a.overlay {
		record, ok := snapshot.Get(id)
		if !ok {
			delete(a.overlay, id)
			continue
		}
		for uid := range readers {
			if activity.IsRead(record, uid) {
				delete(readers, uid)
				continue
			}
			snapshot = snapshot.WithRead(uid, id)
		}
		if len(readers) == 0 {
			delete(a.overlay, id)
		}
	}
	return snapshot
}

func (a *feedAggregator) onError(err error) {
	observability.SnapshotReloads().WithLabelValues("error").Inc()
	a.logger.Error().Err(err).Msg("failed to load activity records")

	if !a.degraded.Swap(true) {
		a.broadcast(FeedEvent{Notice: LoadFailureNotice})
	}
}

func (a *feedAggregator) broadcast(event FeedEvent) {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()

	for ch := range a.listeners {
		select {
		case ch <- event:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- event:
		default:
		}
	}
}

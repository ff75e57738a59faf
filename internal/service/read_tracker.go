package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/portal-notify-api/internal/observability"
)

const defaultWriteTimeout = 5 * time.Second

// ReadTracker records which viewer has read which record. Marks apply to the local working
// set at once and are persisted in the background; failed writes wait for the viewer's next
// interaction and are retried then.
type ReadTracker interface {
	MarkRead(uid, recordID string)
	Retry(uid string)
	Pending(uid string) []string
	Wait(ctx context.Context) error
}

type readTracker struct {
	store        ActivityStore
	aggregator   FeedAggregator
	writeTimeout time.Duration
	logger       zerolog.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	pending map[string]map[string]struct{}
}

// NewReadTracker constructs a read tracker.
func NewReadTracker(store ActivityStore, aggregator FeedAggregator, writeTimeout time.Duration, logger zerolog.Logger) ReadTracker {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &readTracker{
		store:        store,
		aggregator:   aggregator,
		writeTimeout: writeTimeout,
		logger:       logger.With().Str("component", "read_tracker").Logger(),
		pending:      make(map[string]map[string]struct{}),
	}
}

// MarkRead never blocks on the store.
func (t *readTracker) MarkRead(uid, recordID string) {
	if uid == "" || recordID == "" {
		return
	}
	t.aggregator.ApplyRead(uid, recordID)
	t.persist(uid, recordID, "ok")
}

func (t *readTracker) Retry(uid string) {
	t.mu.Lock()
	queued := t.pending[uid]
	delete(t.pending, uid)
	t.mu.Unlock()

	for recordID := range queued {
		t.persist(uid, recordID, "retried")
	}
}

func (t *readTracker) Pending(uid string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.pending[uid]))
	for recordID := range t.pending[uid] {
		out = append(out, recordID)
	}
	sort.Strings(out)
	return out
}

// Wait blocks until every in-flight write finished or ctx is done.
func (t *readTracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *readTracker) persist(uid, recordID, result string) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), t.writeTimeout)
		defer cancel()

		err := t.store.MarkRead(ctx, recordID, uid)
		switch {
		case err == nil:
			observability.ReadMarks().WithLabelValues(result).Inc()
		case errors.Is(err, gorm.ErrRecordNotFound):
			t.logger.Warn().Str("record_id", recordID).Str("viewer_id", uid).Msg("read mark dropped for missing record")
		default:
			observability.ReadMarks().WithLabelValues("error").Inc()
			t.logger.Warn().Err(err).Str("record_id", recordID).Str("viewer_id", uid).Msg("failed to persist read mark, queued for retry")
			t.enqueue(uid, recordID)
		}
	}()
}

func (t *readTracker) enqueue(uid, recordID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	queued, ok := t.pending[uid]
	if !ok {
		queued = make(map[string]struct{})
		t.pending[uid] = queued
	}
	queued[recordID] = struct{}{}
}

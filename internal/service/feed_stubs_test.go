package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/portal-notify-api/internal/activity"
	"github.com/noah-isme/portal-notify-api/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type memoryActivityRepo struct {
	mu            sync.Mutex
	docs          map[string]activity.Document
	reads         map[string]map[string]bool
	loadErr       error
	markReadErr   error
	updateErr     error
	loads         int
	markReadCalls int
	updates       map[string]map[string]interface{}
}

func newMemoryActivityRepo(docs map[string]activity.Document) *memoryActivityRepo {
	if docs == nil {
		docs = map[string]activity.Document{}
	}
	return &memoryActivityRepo{
		docs:    docs,
		reads:   map[string]map[string]bool{},
		updates: map[string]map[string]interface{}{},
	}
}

func (r *memoryActivityRepo) LoadAll(context.Context) (map[string]activity.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loads++
	if r.loadErr != nil {
		return nil, r.loadErr
	}

	out := make(map[string]activity.Document, len(r.docs))
	for id, doc := range r.docs {
		copied := activity.Document{}
		for key, value := range doc {
			copied[key] = value
		}
		readBy := map[string]interface{}{}
		if existing, ok := doc["readBy"].(map[string]interface{}); ok {
			for key, value := range existing {
				readBy[key] = value
			}
		}
		for viewer := range r.reads[id] {
			readBy[viewer] = true
		}
		copied["readBy"] = readBy
		out[id] = copied
	}
	return out, nil
}

func (r *memoryActivityRepo) MarkRead(_ context.Context, recordID, viewerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.markReadCalls++
	if r.markReadErr != nil {
		return r.markReadErr
	}
	if _, ok := r.docs[recordID]; !ok {
		return gorm.ErrRecordNotFound
	}
	if r.reads[recordID] == nil {
		r.reads[recordID] = map[string]bool{}
	}
	r.reads[recordID][viewerID] = true
	return nil
}

func (r *memoryActivityRepo) Update(_ context.Context, id string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.updateErr != nil {
		return r.updateErr
	}
	doc, ok := r.docs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for key, value := range fields {
		doc[key] = value
	}
	r.updates[id] = fields
	return nil
}

func (r *memoryActivityRepo) UpsertBatch(_ context.Context, records []models.ActivityRecord) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, record := range records {
		doc := activity.Document{"type": record.Type}
		for key, value := range record.Payload {
			doc[key] = value
		}
		r.docs[record.ID] = doc
	}
	return int64(len(records)), nil
}

func (r *memoryActivityRepo) set(fn func(r *memoryActivityRepo)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

func (r *memoryActivityRepo) isRead(recordID, viewerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads[recordID][viewerID]
}

func (r *memoryActivityRepo) markReads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.markReadCalls
}

type memoryUserRepo struct {
	mu              sync.Mutex
	profiles        map[string]models.UserProfile
	markVerifiedErr error
	lookups         int
}

func newMemoryUserRepo(profiles ...models.UserProfile) *memoryUserRepo {
	repo := &memoryUserRepo{profiles: map[string]models.UserProfile{}}
	for _, profile := range profiles {
		repo.profiles[profile.UID] = profile
	}
	return repo
}

func (r *memoryUserRepo) FindByUID(_ context.Context, uid string) (models.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lookups++
	profile, ok := r.profiles[uid]
	if !ok {
		return models.UserProfile{}, gorm.ErrRecordNotFound
	}
	return profile, nil
}

func (r *memoryUserRepo) Names(_ context.Context, uids []string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := map[string]string{}
	for _, uid := range uids {
		if profile, ok := r.profiles[uid]; ok && profile.Name != "" {
			names[uid] = profile.Name
		}
	}
	return names, nil
}

func (r *memoryUserRepo) MarkVerified(_ context.Context, uid string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.markVerifiedErr != nil {
		return r.markVerifiedErr
	}
	profile, ok := r.profiles[uid]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	profile.IsVerified = true
	profile.VerificationDate = &at
	r.profiles[uid] = profile
	return nil
}

func (r *memoryUserRepo) UpsertBatch(_ context.Context, profiles []models.UserProfile) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, profile := range profiles {
		r.profiles[profile.UID] = profile
	}
	return int64(len(profiles)), nil
}

func (r *memoryUserRepo) profile(uid string) models.UserProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.profiles[uid]
}

// startAggregator wires a store and aggregator over repo and waits for the first load.
func startAggregator(t *testing.T, repo *memoryActivityRepo) (ActivityStore, FeedAggregator) {
	t.Helper()

	store := NewActivityStore(repo, nil, "", nil, testLogger())
	aggregator := NewFeedAggregator(store, testLogger())
	aggregator.Start(context.Background())
	t.Cleanup(aggregator.Stop)

	require.Eventually(t, func() bool {
		return aggregator.Snapshot().Version() >= 1
	}, time.Second, 5*time.Millisecond)

	return store, aggregator
}

func waitForVersion(t *testing.T, aggregator FeedAggregator, version uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return aggregator.Snapshot().Version() >= version
	}, time.Second, 5*time.Millisecond)
}

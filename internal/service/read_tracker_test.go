package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-notify-api/internal/activity"
)

func TestReadTrackerAppliesLocallyAndPersists(t *testing.T) {
	repo := newMemoryActivityRepo(map[string]activity.Document{
		"a": {"type": "announcement", "timestamp": float64(1)},
	})
	store, aggregator := startAggregator(t, repo)
	tracker := NewReadTracker(store, aggregator, time.Second, testLogger())

	tracker.MarkRead("u1", "a")
	record, _ := aggregator.Snapshot().Get("a")
	require.True(t, activity.IsRead(record, "u1"))

	require.NoError(t, tracker.Wait(context.Background()))
	require.True(t, repo.isRead("a", "u1"))

	tracker.MarkRead("u1", "a")
	require.NoError(t, tracker.Wait(context.Background()))
	record, _ = aggregator.Snapshot().Get("a")
	require.True(t, activity.IsRead(record, "u1"))
	require.Empty(t, tracker.Pending("u1"))
}

func TestReadTrackerRetriesOnNextInteraction(t *testing.T) {
	repo := newMemoryActivityRepo(map[string]activity.Document{
		"a": {"type": "announcement", "timestamp": float64(1)},
		"b": {"type": "announcement", "timestamp": float64(2)},
	})
	repo.set(func(r *memoryActivityRepo) { r.markReadErr = errors.New("unavailable") })
	store, aggregator := startAggregator(t, repo)
	tracker := NewReadTracker(store, aggregator, time.Second, testLogger())

	tracker.MarkRead("u1", "a")
	tracker.MarkRead("u1", "b")
	require.NoError(t, tracker.Wait(context.Background()))
	require.Equal(t, []string{"a", "b"}, tracker.Pending("u1"))
	require.False(t, repo.isRead("a", "u1"))

	record, _ := aggregator.Snapshot().Get("a")
	require.True(t, activity.IsRead(record, "u1"), "failed persistence never reverts local state")

	repo.set(func(r *memoryActivityRepo) { r.markReadErr = nil })
	tracker.Retry("u2")
	require.Len(t, tracker.Pending("u1"), 2)

	tracker.Retry("u1")
	require.NoError(t, tracker.Wait(context.Background()))
	require.Empty(t, tracker.Pending("u1"))
	require.True(t, repo.isRead("a", "u1"))
	require.True(t, repo.isRead("b", "u1"))
}

func TestReadTrackerDropsMissingRecords(t *testing.T) {
	repo := newMemoryActivityRepo(nil)
	store, aggregator := startAggregator(t, repo)
	tracker := NewReadTracker(store, aggregator, time.Second, testLogger())

	tracker.MarkRead("u1", "ghost")
	require.NoError(t, tracker.Wait(context.Background()))
	require.Empty(t, tracker.Pending("u1"))
}

package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-notify-api/internal/activity"
)

func TestActivityStoreDeliversInitialAndChangedSnapshots(t *testing.T) {
	repo := newMemoryActivityRepo(map[string]activity.Document{
		"a": {"type": "announcement", "timestamp": float64(1)},
	})
	store := NewActivityStore(repo, nil, "", nil, testLogger())

	var deliveries atomic.Int32
	var lastSize atomic.Int32
	unsubscribe := store.Subscribe(context.Background(), func(docs map[string]activity.Document) {
		lastSize.Store(int32(len(docs)))
		deliveries.Add(1)
	}, nil)
	defer unsubscribe()

	require.Eventually(t, func() bool { return deliveries.Load() == 1 }, time.Second, 5*time.Millisecond)

	repo.set(func(r *memoryActivityRepo) {
		r.docs["b"] = activity.Document{"type": "schedule", "timestamp": float64(2)}
	})
	store.NotifyChanged(context.Background())

	require.Eventually(t, func() bool { return lastSize.Load() == 2 }, time.Second, 5*time.Millisecond)

	unsubscribe()
	before := deliveries.Load()
	store.NotifyChanged(context.Background())
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, before, deliveries.Load())
}

func TestActivityStoreCoalescesBursts(t *testing.T) {
	repo := newMemoryActivityRepo(nil)
	store := NewActivityStore(repo, nil, "", nil, testLogger())

	release := make(chan struct{})
	var deliveries atomic.Int32
	unsubscribe := store.Subscribe(context.Background(), func(map[string]activity.Document) {
		if deliveries.Add(1) == 1 {
			<-release
		}
	}, nil)
	defer unsubscribe()

	require.Eventually(t, func() bool { return deliveries.Load() == 1 }, time.Second, 5*time.Millisecond)
	for i := 0; i < 20; i++ {
		store.NotifyChanged(context.Background())
	}
	close(release)

	require.Eventually(t, func() bool { return deliveries.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(2), deliveries.Load())
}

func TestActivityStoreRedisChangeBus(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	clientA := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer clientA.Close()
	clientB := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer clientB.Close()

	repo := newMemoryActivityRepo(nil)
	nodeA := NewActivityStore(repo, clientA, "portal", nil, testLogger())
	nodeB := NewActivityStore(repo, clientB, "portal", nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	nodeB.Start(ctx)

	var deliveries atomic.Int32
	unsubscribe := nodeB.Subscribe(ctx, func(map[string]activity.Document) { deliveries.Add(1) }, nil)
	defer unsubscribe()
	require.Eventually(t, func() bool { return deliveries.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		nodeA.NotifyChanged(ctx)
		return deliveries.Load() >= 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestActivityStoreRedisChangeBusSurvivesReconnect(t *testing.T) {
	server := miniredis.RunT(t)

	clientA := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer clientA.Close()
	clientB := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer clientB.Close()

	repo := newMemoryActivityRepo(nil)
	nodeA := NewActivityStore(repo, clientA, "portal", nil, testLogger())
	nodeB := NewActivityStore(repo, clientB, "portal", nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	nodeB.Start(ctx)

	var deliveries atomic.Int32
	unsubscribe := nodeB.Subscribe(ctx, func(map[string]activity.Document) { deliveries.Add(1) }, nil)
	defer unsubscribe()

	require.Eventually(t, func() bool {
		nodeA.NotifyChanged(ctx)
		return deliveries.Load() >= 2
	}, 2*time.Second, 20*time.Millisecond)

	server.Close()
	require.NoError(t, server.Restart())
	before := deliveries.Load()

	require.Eventually(t, func() bool {
		nodeA.NotifyChanged(ctx)
		return deliveries.Load() >= before+2
	}, 5*time.Second, 50*time.Millisecond)
}

func runNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	ns, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second))
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestActivityStoreNATSChangeBus(t *testing.T) {
	ns := runNATSServer(t)

	connA, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer connA.Close()
	connB, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer connB.Close()

	repo := newMemoryActivityRepo(nil)
	nodeA := NewActivityStore(repo, nil, "portal", connA, testLogger())
	nodeB := NewActivityStore(repo, nil, "portal", connB, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	nodeA.Start(ctx)
	nodeB.Start(ctx)

	var deliveriesA, deliveriesB atomic.Int32
	unsubscribeA := nodeA.Subscribe(ctx, func(map[string]activity.Document) { deliveriesA.Add(1) }, nil)
	defer unsubscribeA()
	unsubscribeB := nodeB.Subscribe(ctx, func(map[string]activity.Document) { deliveriesB.Add(1) }, nil)
	defer unsubscribeB()
	require.Eventually(t, func() bool { return deliveriesA.Load() == 1 && deliveriesB.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		nodeA.NotifyChanged(ctx)
		return deliveriesB.Load() >= 2
	}, 2*time.Second, 20*time.Millisecond)

	sent := deliveriesA.Load()
	require.Eventually(t, func() bool {
		nodeB.NotifyChanged(ctx)
		return deliveriesA.Load() > sent
	}, 2*time.Second, 20*time.Millisecond)
}

func TestFeedAggregatorLoadsAndSorts(t *testing.T) {
	repo := newMemoryActivityRepo(map[string]activity.Document{
		"r1": {"type": "announcement", "timestamp": float64(100)},
		"r2": {"type": "registration", "timestamp": float64(200)},
		"x":  {"type": "mystery"},
	})
	_, aggregator := startAggregator(t, repo)

	snapshot := aggregator.Snapshot()
	require.Equal(t, 3, snapshot.Len())
	require.Equal(t, "r2", activity.ID(snapshot.Records()[0]))
	require.False(t, aggregator.Degraded())
}

func TestFeedAggregatorDegradedNoticeOncePerFailure(t *testing.T) {
	repo := newMemoryActivityRepo(map[string]activity.Document{
		"a": {"type": "announcement", "timestamp": float64(1)},
	})
	store, aggregator := startAggregator(t, repo)

	events, stop := aggregator.Listen()
	defer stop()

	repo.set(func(r *memoryActivityRepo) { r.loadErr = errors.New("store offline") })
	store.NotifyChanged(context.Background())

	select {
	case event := <-events:
		require.Equal(t, LoadFailureNotice, event.Notice)
	case <-time.After(time.Second):
		t.Fatal("expected a notice")
	}
	require.True(t, aggregator.Degraded())
	require.Equal(t, 1, aggregator.Snapshot().Len(), "last known snapshot is kept")

	store.NotifyChanged(context.Background())
	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.loads >= 3
	}, time.Second, 5*time.Millisecond)
	select {
	case event := <-events:
		t.Fatalf("unexpected event while still degraded: %+v", event)
	case <-time.After(30 * time.Millisecond):
	}

	repo.set(func(r *memoryActivityRepo) { r.loadErr = nil })
	store.NotifyChanged(context.Background())

	select {
	case event := <-events:
		require.NotNil(t, event.Snapshot)
	case <-time.After(time.Second):
		t.Fatal("expected a snapshot after recovery")
	}
	require.False(t, aggregator.Degraded())
}

func TestFeedAggregatorReadMarksSurviveReloads(t *testing.T) {
	repo := newMemoryActivityRepo(map[string]activity.Document{
		"a": {"type": "announcement", "timestamp": float64(1)},
	})
	repo.set(func(r *memoryActivityRepo) { r.markReadErr = errors.New("write refused") })
	store, aggregator := startAggregator(t, repo)

	aggregator.ApplyRead("u1", "a")
	record, _ := aggregator.Snapshot().Get("a")
	require.True(t, activity.IsRead(record, "u1"))

	version := aggregator.Snapshot().Version()
	store.NotifyChanged(context.Background())
	waitForVersion(t, aggregator, version+1)

	record, _ = aggregator.Snapshot().Get("a")
	require.True(t, activity.IsRead(record, "u1"), "unconfirmed read mark must not flip back")
}

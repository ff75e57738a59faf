package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/portal-notify-api/internal/activity"
	"github.com/noah-isme/portal-notify-api/internal/repository"
)

// SnapshotHandler receives every full delivery of the activity collection.
type SnapshotHandler func(docs map[string]activity.Document)

// LoadErrorHandler receives failed deliveries.
type LoadErrorHandler func(err error)

// ActivityStore wraps the activity collection: a subscribe primitive that delivers full
// snapshots, the two write shapes the feed needs, and a change bus shared by every node.
type ActivityStore interface {
	Subscribe(ctx context.Context, onSnapshot SnapshotHandler, onError LoadErrorHandler) func()
	MarkRead(ctx context.Context, recordID, viewerID string) error
	UpdateRecord(ctx context.Context, id string, fields map[string]interface{}) error
	NotifyChanged(ctx context.Context)
	Start(ctx context.Context)
}

type activityStore struct {
	repo         repository.ActivityRecordRepository
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	tracer       trace.Tracer
	nodeID       string

	mu          sync.Mutex
	subscribers map[*storeSubscription]struct{}
}

type storeSubscription struct {
	pending    chan struct{}
	onSnapshot SnapshotHandler
	onError    LoadErrorHandler
	cancel     context.CancelFunc
	done       chan struct{}
}

const (
	redisRetryMin = 50 * time.Millisecond
	redisRetryMax = 5 * time.Second
)

type changeEvent struct {
	Source string    `json:"source"`
	SentAt time.Time `json:"sent_at"`
}

// NewActivityStore constructs the store. Redis and NATS are optional; without them changes
// only reach subscribers on this node.
func NewActivityStore(repo repository.ActivityRecordRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) ActivityStore {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":activity"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".activity"
	}

	return &activityStore{
		repo:         repo,
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "activity_store").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/portal-notify-api/internal/service/activity_store"),
		nodeID:       uuid.NewString(),
		subscribers:  make(map[*storeSubscription]struct{}),
	}
}

func (s *activityStore) Start(ctx context.Context) {
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// Subscribe delivers the current collection immediately and again after every change.
// Both callbacks run on one goroutine per subscription; a burst of changes collapses into a
// single pending reload. The returned function stops delivery and waits for the loop to exit.
func (s *activityStore) Subscribe(ctx context.Context, onSnapshot SnapshotHandler, onError LoadErrorHandler) func() {
	ctx, cancel := context.WithCancel(ctx)
	sub := &storeSubscription{
		pending:    make(chan struct{}, 1),
		onSnapshot: onSnapshot,
		onError:    onError,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	sub.pending <- struct{}{}

	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	go s.dispatch(ctx, sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, sub)
			s.mu.Unlock()
			cancel()
			<-sub.done
		})
	}
}

func (s *activityStore) dispatch(ctx context.Context, sub *storeSubscription) {
	defer close(sub.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.pending:
			docs, err := s.load(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				if sub.onError != nil {
					sub.onError(err)
				}
				continue
			}
			if sub.onSnapshot != nil {
				sub.onSnapshot(docs)
			}
		}
	}
}

func (s *activityStore) load(ctx context.Context) (map[string]activity.Document, error) {
	spanCtx, span := s.tracer.Start(ctx, "activity.load")
	defer span.End()

	docs, err := s.repo.LoadAll(spanCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("activity.records", len(docs)))
	return docs, nil
}

func (s *activityStore) MarkRead(ctx context.Context, recordID, viewerID string) error {
	spanCtx, span := s.tracer.Start(ctx, "activity.mark_read", trace.WithAttributes(
		attribute.String("activity.record_id", recordID),
		attribute.String("activity.viewer_id", viewerID),
	))
	defer span.End()

	if err := s.repo.MarkRead(spanCtx, recordID, viewerID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.NotifyChanged(spanCtx)
	return nil
}

func (s *activityStore) UpdateRecord(ctx context.Context, id string, fields map[string]interface{}) error {
	spanCtx, span := s.tracer.Start(ctx, "activity.update_record", trace.WithAttributes(
		attribute.String("activity.record_id", id),
	))
	defer span.End()

	if err := s.repo.Update(spanCtx, id, fields); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.NotifyChanged(spanCtx)
	return nil
}

// NotifyChanged schedules a reload for local subscribers and tells the other nodes.
func (s *activityStore) NotifyChanged(ctx context.Context) {
	s.trigger()
	if err := s.publish(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish activity change")
	}
}

func (s *activityStore) trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subscribers {
		select {
		case sub.pending <- struct{}{}:
		default:
		}
	}
}

func (s *activityStore) publish(ctx context.Context) error {
	payload, err := json.Marshal(changeEvent{Source: s.nodeID, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

// consumeRedis keeps a subscription on the change channel until ctx is done. A lost
// subscription is re-established with backoff, and a successful resubscribe reloads local
// subscribers because changes published meanwhile were missed.
func (s *activityStore) consumeRedis(ctx context.Context) {
	backoff := redisRetryMin
	resubscribed := false

	for ctx.Err() == nil {
		pubsub := s.redis.Subscribe(ctx, s.redisChannel)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("activity redis subscribe failed")
			if !sleepContext(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, redisRetryMax)
			resubscribed = true
			continue
		}

		if resubscribed {
			s.logger.Info().Msg("activity redis subscription restored")
			s.trigger()
		}
		backoff = redisRetryMin

		err := s.receiveRedis(ctx, pubsub)
		_ = pubsub.Close()
		if ctx.Err() != nil {
			return
		}
		s.logger.Error().Err(err).Msg("activity redis subscription lost")
		resubscribed = true
		if !sleepContext(ctx, backoff) {
			return
		}
	}
}

func (s *activityStore) receiveRedis(ctx context.Context, pubsub *redis.PubSub) error {
	stop := context.AfterFunc(ctx, func() { _ = pubsub.Close() })
	defer stop()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *activityStore) consumeNATS(ctx context.Context) {
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats activity subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain activity nats subscription")
		}
	}()
}

func (s *activityStore) handleEvent(payload []byte) {
	var event changeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid activity change payload")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	s.trigger()
}

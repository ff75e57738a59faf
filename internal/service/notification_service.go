package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/portal-notify-api/internal/access"
	"github.com/noah-isme/portal-notify-api/internal/activity"
	"github.com/noah-isme/portal-notify-api/internal/dto"
	"github.com/noah-isme/portal-notify-api/internal/observability"
	"github.com/noah-isme/portal-notify-api/internal/repository"
)

const recentPreviewSize = 3

var (
	// ErrNotificationNotFound indicates the record does not exist or is hidden from the viewer.
	ErrNotificationNotFound = errors.New("notification not found")
	// ErrActionForbidden indicates the viewer may not run the requested action.
	ErrActionForbidden = errors.New("action not permitted")
	// ErrAlreadySolved indicates the registration was already handled.
	ErrAlreadySolved = errors.New("registration already solved")
	// ErrUnsupportedAction indicates the record type offers no such action.
	ErrUnsupportedAction = errors.New("unsupported action for notification")
	// ErrVerificationIncomplete indicates at least one verify write failed.
	ErrVerificationIncomplete = errors.New("verification incomplete")
)

// NotificationService renders viewer feeds and runs the actions offered on them.
type NotificationService interface {
	Feed(ctx context.Context, uid string, tab activity.Tab) (dto.FeedResponse, error)
	UnreadCount(ctx context.Context, uid string) (dto.UnreadCountResponse, error)
	Open(ctx context.Context, uid, id string) (dto.OpenResponse, error)
	MarkRead(ctx context.Context, uid, id string) error
	Verify(ctx context.Context, uid, id string) (dto.VerifyResponse, error)
	Subscribe(ctx context.Context, uid string) (<-chan dto.FeedStreamEvent, func(), error)
	Recent(ctx context.Context, uid string, query dto.RecentActivityQuery) (dto.RecentActivityResponse, error)
}

type notificationService struct {
	aggregator   FeedAggregator
	tracker      ReadTracker
	store        ActivityStore
	viewers      ViewerResolver
	users        repository.UserProfileRepository
	writeTimeout time.Duration
	recentLimit  int
	logger       zerolog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// NotificationServiceConfig groups the tunables of the notification service.
type NotificationServiceConfig struct {
	WriteTimeout time.Duration
	RecentLimit  int
}

// NewNotificationService constructs a notification service.
func NewNotificationService(aggregator FeedAggregator, tracker ReadTracker, store ActivityStore, viewers ViewerResolver, users repository.UserProfileRepository, cfg NotificationServiceConfig, logger zerolog.Logger) NotificationService {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 50
	}
	return &notificationService{
		aggregator:   aggregator,
		tracker:      tracker,
		store:        store,
		viewers:      viewers,
		users:        users,
		writeTimeout: cfg.WriteTimeout,
		recentLimit:  cfg.RecentLimit,
		logger:       logger.With().Str("component", "notification_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/portal-notify-api/internal/service/notification"),
		now:          time.Now,
	}
}

// viewer resolves uid and retries any read marks that failed on an earlier interaction.
func (s *notificationService) viewer(ctx context.Context, uid string) (access.Viewer, error) {
	viewer, err := s.viewers.Resolve(ctx, uid)
	if err != nil {
		return access.Viewer{}, err
	}
	s.tracker.Retry(viewer.UID)
	return viewer, nil
}

func (s *notificationService) Feed(ctx context.Context, uid string, tab activity.Tab) (dto.FeedResponse, error) {
	viewer, err := s.viewer(ctx, uid)
	if err != nil {
		return dto.FeedResponse{}, err
	}
	return s.render(ctx, s.aggregator.Snapshot(), viewer, tab), nil
}

func (s *notificationService) render(ctx context.Context, snapshot *activity.Snapshot, viewer access.Viewer, tab activity.Tab) dto.FeedResponse {
	visible := activity.Visible(snapshot.Records(), viewer)

	names, err := s.users.Names(ctx, activity.UserRefs(visible))
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to resolve user names")
		names = map[string]string{}
	}

	list := visible
	if tab == activity.TabUnread {
		list = activity.FilterUnread(viewer, visible)
	}

	response := dto.FeedResponse{
		Tab:         string(tab),
		Items:       activity.Render(list, viewer, activity.Options{Names: names}),
		UnreadCount: activity.UnreadCount(viewer, visible),
		Version:     snapshot.Version(),
	}
	if s.aggregator.Degraded() {
		response.Notice = LoadFailureNotice
	}
	return response
}

func (s *notificationService) UnreadCount(ctx context.Context, uid string) (dto.UnreadCountResponse, error) {
	viewer, err := s.viewer(ctx, uid)
	if err != nil {
		return dto.UnreadCountResponse{}, err
	}
	visible := activity.Visible(s.aggregator.Snapshot().Records(), viewer)
	return dto.UnreadCountResponse{UnreadCount: activity.UnreadCount(viewer, visible)}, nil
}

func (s *notificationService) visibleRecord(viewer access.Viewer, id string) (activity.Record, error) {
	record, ok := s.aggregator.Snapshot().Get(id)
	if !ok || !activity.Listed(record, viewer) {
		return nil, ErrNotificationNotFound
	}
	return record, nil
}

func (s *notificationService) Open(ctx context.Context, uid, id string) (dto.OpenResponse, error) {
	viewer, err := s.viewer(ctx, uid)
	if err != nil {
		return dto.OpenResponse{}, err
	}
	record, err := s.visibleRecord(viewer, id)
	if err != nil {
		return dto.OpenResponse{}, err
	}

	s.tracker.MarkRead(viewer.UID, id)
	return dto.OpenResponse{ID: id, Target: activity.Target(record)}, nil
}

func (s *notificationService) MarkRead(ctx context.Context, uid, id string) error {
	viewer, err := s.viewer(ctx, uid)
	if err != nil {
		return err
	}
	if _, err := s.visibleRecord(viewer, id); err != nil {
		return err
	}

	s.tracker.MarkRead(viewer.UID, id)
	return nil
}

// Verify runs the registration inline action. The profile update, the record update and the
// read mark are issued together and each runs to completion regardless of the others.
func (s *notificationService) Verify(ctx context.Context, uid, id string) (dto.VerifyResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "notifications.verify", trace.WithAttributes(
		attribute.String("notification.id", id),
		attribute.String("notification.viewer_id", uid),
	))
	defer span.End()

	viewer, err := s.viewer(spanCtx, uid)
	if err != nil {
		return dto.VerifyResponse{}, err
	}

	// Records the viewer cannot see answer as missing so their ids are not disclosed.
	record, err := s.visibleRecord(viewer, id)
	if err != nil {
		return dto.VerifyResponse{}, err
	}
	registration, ok := record.(*activity.Registration)
	if !ok {
		return dto.VerifyResponse{}, ErrUnsupportedAction
	}
	if !access.CanVerifyRegistrations(viewer) {
		observability.VerifyActions().WithLabelValues("forbidden").Inc()
		return dto.VerifyResponse{}, ErrActionForbidden
	}
	if registration.Solved || registration.DeletedBy != "" {
		return dto.VerifyResponse{}, ErrAlreadySolved
	}

	verifiedBy := viewer.Name
	if verifiedBy == "" {
		verifiedBy = viewer.UID
	}
	at := s.now().UTC()

	writeCtx, cancel := context.WithTimeout(spanCtx, s.writeTimeout)
	defer cancel()

	var profileErr, recordErr error
	var group errgroup.Group
	group.Go(func() error {
		if registration.UserID == "" {
			profileErr = errors.New("registration has no user id")
			return nil
		}
		profileErr = s.users.MarkVerified(writeCtx, registration.UserID, at)
		return nil
	})
	group.Go(func() error {
		recordErr = s.store.UpdateRecord(writeCtx, id, map[string]interface{}{
			"solved":           true,
			"isVerified":       true,
			"verifiedBy":       verifiedBy,
			"verificationDate": at.Format(time.RFC3339),
		})
		return nil
	})
	group.Go(func() error {
		s.tracker.MarkRead(viewer.UID, id)
		return nil
	})
	_ = group.Wait()

	if profileErr != nil || recordErr != nil {
		err := errors.Join(wrapStep("profile", profileErr), wrapStep("record", recordErr))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.VerifyActions().WithLabelValues("incomplete").Inc()
		s.logger.Error().Err(err).Str("record_id", id).Str("viewer_id", viewer.UID).Msg("registration verification incomplete")
		return dto.VerifyResponse{}, fmt.Errorf("%w: %v", ErrVerificationIncomplete, err)
	}

	observability.VerifyActions().WithLabelValues("ok").Inc()
	s.logger.Info().Str("record_id", id).Str("user_id", registration.UserID).Str("verified_by", verifiedBy).Msg("registration verified")

	return dto.VerifyResponse{
		ID:               id,
		UserID:           registration.UserID,
		Solved:           true,
		VerifiedBy:       verifiedBy,
		VerificationDate: at,
	}, nil
}

// Subscribe streams the viewer's feed: the current state first, then one event per snapshot
// change and a notice whenever loading starts failing. Slow consumers only see the latest
// event. The returned function releases the subscription.
func (s *notificationService) Subscribe(ctx context.Context, uid string) (<-chan dto.FeedStreamEvent, func(), error) {
	viewer, err := s.viewer(ctx, uid)
	if err != nil {
		return nil, nil, err
	}

	events, stopListening := s.aggregator.Listen()
	out := make(chan dto.FeedStreamEvent, 1)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(out)

		initial := s.render(ctx, s.aggregator.Snapshot(), viewer, activity.TabAll)
		if !deliver(ctx, out, dto.FeedStreamEvent{Event: dto.StreamEventFeed, Feed: &initial}) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-events:
				var message dto.FeedStreamEvent
				if event.Notice != "" {
					message = dto.FeedStreamEvent{Event: dto.StreamEventNotice, Notice: event.Notice}
				} else {
					feed := s.render(ctx, event.Snapshot, viewer, activity.TabAll)
					message = dto.FeedStreamEvent{Event: dto.StreamEventFeed, Feed: &feed}
				}
				if !deliver(ctx, out, message) {
					return
				}
			}
		}
	}()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			stopListening()
			cancel()
			<-done
		})
	}
	return out, cleanup, nil
}

func wrapStep(step string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", step, err)
}

// deliver replaces an undelivered event with the newer one.
func deliver(ctx context.Context, out chan dto.FeedStreamEvent, event dto.FeedStreamEvent) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case out <- event:
			return true
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}

func (s *notificationService) Recent(ctx context.Context, uid string, query dto.RecentActivityQuery) (dto.RecentActivityResponse, error) {
	viewer, err := s.viewer(ctx, uid)
	if err != nil {
		return dto.RecentActivityResponse{}, err
	}

	limit := s.recentLimit
	if query.Limit > 0 && query.Limit < limit {
		limit = query.Limit
	}

	entries := activity.Recent(s.aggregator.Snapshot(), viewer, s.now(), limit)
	response := dto.RecentActivityResponse{Items: entries}
	if !query.All && len(entries) > recentPreviewSize {
		response.Items = entries[:recentPreviewSize]
		response.HasMore = true
	}
	return response, nil
}

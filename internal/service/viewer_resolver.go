package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/portal-notify-api/internal/access"
	"github.com/noah-isme/portal-notify-api/internal/models"
	"github.com/noah-isme/portal-notify-api/internal/repository"
)

// ErrViewerNotFound indicates the authenticated user has no portal profile.
var ErrViewerNotFound = errors.New("viewer profile not found")

// ViewerResolver turns an authenticated uid into a viewer with role and permissions.
type ViewerResolver interface {
	Resolve(ctx context.Context, uid string) (access.Viewer, error)
	Invalidate(ctx context.Context, uids ...string)
}

type viewerResolver struct {
	repo        repository.UserProfileRepository
	redis       *redis.Client
	cachePrefix string
	ttl         time.Duration
	logger      zerolog.Logger
}

type cachedProfile struct {
	Name        string                 `json:"name"`
	Role        string                 `json:"role"`
	Permissions map[string]interface{} `json:"permissions"`
	Flat        map[string]interface{} `json:"flat,omitempty"`
}

// NewViewerResolver constructs a resolver. redisClient may be nil, in which case every call
// reads the profile table.
func NewViewerResolver(repo repository.UserProfileRepository, redisClient *redis.Client, channelBase string, ttl time.Duration, logger zerolog.Logger) ViewerResolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	prefix := "profile"
	if channelBase != "" {
		prefix = channelBase + ":profile"
	}
	return &viewerResolver{
		repo:        repo,
		redis:       redisClient,
		cachePrefix: prefix,
		ttl:         ttl,
		logger:      logger.With().Str("component", "viewer_resolver").Logger(),
	}
}

func (r *viewerResolver) Resolve(ctx context.Context, uid string) (access.Viewer, error) {
	if uid == "" {
		return access.Viewer{}, ErrViewerNotFound
	}

	if cached, ok := r.fromCache(ctx, uid); ok {
		return access.Resolve(uid, cached.profile()), nil
	}

	model, err := r.repo.FindByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return access.Viewer{}, ErrViewerNotFound
		}
		return access.Viewer{}, fmt.Errorf("load viewer profile: %w", err)
	}

	cached := newCachedProfile(model)
	r.store(ctx, uid, cached)

	return access.Resolve(uid, cached.profile()), nil
}

func (r *viewerResolver) Invalidate(ctx context.Context, uids ...string) {
	if r.redis == nil || len(uids) == 0 {
		return
	}
	keys := make([]string, 0, len(uids))
	for _, uid := range uids {
		keys = append(keys, r.key(uid))
	}
	if err := r.redis.Del(ctx, keys...).Err(); err != nil {
		r.logger.Warn().Err(err).Msg("failed to invalidate cached profiles")
	}
}

func (r *viewerResolver) key(uid string) string {
	return fmt.Sprintf("%s:%s", r.cachePrefix, uid)
}

func (r *viewerResolver) fromCache(ctx context.Context, uid string) (cachedProfile, bool) {
	if r.redis == nil {
		return cachedProfile{}, false
	}

	raw, err := r.redis.Get(ctx, r.key(uid)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn().Err(err).Str("viewer_id", uid).Msg("failed to read cached profile")
		}
		return cachedProfile{}, false
	}

	var cached cachedProfile
	if err := json.Unmarshal(raw, &cached); err != nil {
		r.logger.Warn().Err(err).Str("viewer_id", uid).Msg("failed to decode cached profile")
		return cachedProfile{}, false
	}
	return cached, true
}

func (r *viewerResolver) store(ctx context.Context, uid string, cached cachedProfile) {
	if r.redis == nil {
		return
	}
	payload, err := json.Marshal(cached)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to encode profile for cache")
		return
	}
	if err := r.redis.Set(ctx, r.key(uid), payload, r.ttl).Err(); err != nil {
		r.logger.Warn().Err(err).Str("viewer_id", uid).Msg("failed to cache profile")
	}
}

func newCachedProfile(model models.UserProfile) cachedProfile {
	cached := cachedProfile{
		Name:        model.Name,
		Role:        model.Role,
		Permissions: map[string]interface{}(model.Permissions),
	}
	if model.CanVerifyUsers != nil {
		cached.Flat = map[string]interface{}{access.PermVerifyUsers: *model.CanVerifyUsers}
	}
	return cached
}

func (c cachedProfile) profile() access.Profile {
	return access.Profile{
		Name:        c.Name,
		Role:        c.Role,
		Permissions: c.Permissions,
		Flat:        c.Flat,
	}
}

package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gorm.io/datatypes"

	"github.com/noah-isme/portal-notify-api/internal/dto"
	"github.com/noah-isme/portal-notify-api/internal/models"
	"github.com/noah-isme/portal-notify-api/internal/repository"
)

var (
	// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
	ErrSeedDisabled = errors.New("seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = errors.New("invalid seed token")
	// ErrSeedInvalidDocument indicates a raw activity document failed schema validation.
	ErrSeedInvalidDocument = errors.New("invalid activity document")
)

const activityDocumentSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "type"],
  "properties": {
    "id": {"type": "string", "minLength": 1, "maxLength": 64},
    "type": {"type": "string", "minLength": 1, "maxLength": 64},
    "timestamp": {"type": ["number", "string", "object"]},
    "readBy": {
      "type": "object",
      "additionalProperties": {"type": "boolean"}
    },
    "solved": {"type": "boolean"},
    "accessLevel": {"type": "string"}
  }
}`

var activityDocumentSchema = jsonschema.MustCompileString("activity_document.json", activityDocumentSchemaJSON)

// SeedService orchestrates development seeding of activity records and user profiles.
type SeedService interface {
	SeedActivity(ctx context.Context, token string, docs []map[string]interface{}) (int64, error)
	SeedUsers(ctx context.Context, token string, payload dto.SeedUsersRequest) (int64, error)
}

type seedService struct {
	activityRepo repository.ActivityRecordRepository
	userRepo     repository.UserProfileRepository
	store        ActivityStore
	viewers      ViewerResolver
	validator    *validator.Validate
	enabled      bool
	token        string
	logger       zerolog.Logger
}

// NewSeedService constructs a seeding service.
func NewSeedService(activityRepo repository.ActivityRecordRepository, userRepo repository.UserProfileRepository, store ActivityStore, viewers ViewerResolver, validate *validator.Validate, enabled bool, token string, logger zerolog.Logger) SeedService {
	return &seedService{
		activityRepo: activityRepo,
		userRepo:     userRepo,
		store:        store,
		viewers:      viewers,
		validator:    validate,
		enabled:      enabled,
		token:        token,
		logger:       logger.With().Str("component", "seed_service").Logger(),
	}
}

func (s *seedService) authorize(token string) error {
	if !s.enabled {
		return ErrSeedDisabled
	}
	if !s.validateToken(token) {
		return ErrSeedUnauthorized
	}
	return nil
}

// SeedActivity upserts raw activity documents and announces the change to every node.
func (s *seedService) SeedActivity(ctx context.Context, token string, docs []map[string]interface{}) (int64, error) {
	if err := s.authorize(token); err != nil {
		return 0, err
	}

	records := make([]models.ActivityRecord, 0, len(docs))
	for i, doc := range docs {
		if err := activityDocumentSchema.Validate(doc); err != nil {
			return 0, fmt.Errorf("%w: item %d: %v", ErrSeedInvalidDocument, i, err)
		}
		payload := datatypes.JSONMap{}
		for key, value := range doc {
			if key == "id" || key == "type" {
				continue
			}
			payload[key] = value
		}
		records = append(records, models.ActivityRecord{
			ID:      strings.TrimSpace(doc["id"].(string)),
			Type:    strings.TrimSpace(doc["type"].(string)),
			Payload: payload,
		})
	}
	if len(records) == 0 {
		return 0, nil
	}

	affected, err := s.activityRepo.UpsertBatch(ctx, records)
	if err != nil {
		return 0, err
	}
	s.store.NotifyChanged(ctx)
	s.logger.Info().Int64("affected", affected).Msg("activity records seeded")
	return affected, nil
}

// SeedUsers upserts user profiles and drops their cached copies.
func (s *seedService) SeedUsers(ctx context.Context, token string, payload dto.SeedUsersRequest) (int64, error) {
	if err := s.authorize(token); err != nil {
		return 0, err
	}
	if err := s.validator.Struct(payload); err != nil {
		return 0, err
	}

	profiles := make([]models.UserProfile, 0, len(payload.Items))
	uids := make([]string, 0, len(payload.Items))
	for _, item := range payload.Items {
		uid := strings.TrimSpace(item.UID)
		profiles = append(profiles, models.UserProfile{
			UID:            uid,
			Name:           strings.TrimSpace(item.Name),
			Email:          strings.TrimSpace(item.Email),
			Role:           item.Role,
			Permissions:    datatypes.JSONMap(item.Permissions),
			CanVerifyUsers: item.CanVerifyUsers,
		})
		uids = append(uids, uid)
	}
	if len(profiles) == 0 {
		return 0, nil
	}

	affected, err := s.userRepo.UpsertBatch(ctx, profiles)
	if err != nil {
		return 0, err
	}
	s.viewers.Invalidate(ctx, uids...)
	s.logger.Info().Int64("affected", affected).Msg("user profiles seeded")
	return affected, nil
}

func (s *seedService) validateToken(token string) bool {
	expected := strings.TrimSpace(s.token)
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(token))) == 1
}

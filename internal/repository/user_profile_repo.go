package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/portal-notify-api/internal/models"
)

// UserProfileRepository reads and updates portal user profiles.
type UserProfileRepository interface {
	FindByUID(ctx context.Context, uid string) (models.UserProfile, error)
	Names(ctx context.Context, uids []string) (map[string]string, error)
	MarkVerified(ctx context.Context, uid string, at time.Time) error
	UpsertBatch(ctx context.Context, profiles []models.UserProfile) (int64, error)
}

type userProfileRepository struct {
	db *gorm.DB
}

// NewUserProfileRepository constructs a repository backed by GORM.
func NewUserProfileRepository(db *gorm.DB) UserProfileRepository {
	return &userProfileRepository{db: db}
}

func (r *userProfileRepository) FindByUID(ctx context.Context, uid string) (models.UserProfile, error) {
	var profile models.UserProfile
	if err := r.db.WithContext(ctx).First(&profile, "uid = ?", uid).Error; err != nil {
		return models.UserProfile{}, err
	}
	return profile, nil
}

func (r *userProfileRepository) Names(ctx context.Context, uids []string) (map[string]string, error) {
	names := make(map[string]string, len(uids))
	if len(uids) == 0 {
		return names, nil
	}

	var profiles []models.UserProfile
	if err := r.db.WithContext(ctx).
		Select("uid", "name").
		Where("uid IN ?", uids).
		Find(&profiles).Error; err != nil {
		return nil, err
	}

	for _, profile := range profiles {
		if profile.Name != "" {
			names[profile.UID] = profile.Name
		}
	}
	return names, nil
}

func (r *userProfileRepository) MarkVerified(ctx context.Context, uid string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.UserProfile{}).
		Where("uid = ?", uid).
		Updates(map[string]interface{}{
			"is_verified":       true,
			"verification_date": at,
			"updated_at":        time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *userProfileRepository) UpsertBatch(ctx context.Context, profiles []models.UserProfile) (int64, error) {
	if len(profiles) == 0 {
		return 0, nil
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uid"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "role", "permissions", "can_verify_users", "updated_at"}),
	}).Create(&profiles)
	if tx.Error != nil {
		return 0, tx.Error
	}

	return tx.RowsAffected, nil
}

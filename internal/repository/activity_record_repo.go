package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/portal-notify-api/internal/activity"
	"github.com/noah-isme/portal-notify-api/internal/models"
)

// ActivityRecordRepository is the persistent side of the activity collection.
type ActivityRecordRepository interface {
	LoadAll(ctx context.Context) (map[string]activity.Document, error)
	MarkRead(ctx context.Context, recordID, viewerID string) error
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	UpsertBatch(ctx context.Context, records []models.ActivityRecord) (int64, error)
}

type activityRecordRepository struct {
	db *gorm.DB
}

// NewActivityRecordRepository constructs the activity record repository.
func NewActivityRecordRepository(db *gorm.DB) ActivityRecordRepository {
	return &activityRecordRepository{db: db}
}

// LoadAll returns every record as a raw document keyed by id. Read marks from the
// activity_reads table are merged into each document's readBy map.
func (r *activityRecordRepository) LoadAll(ctx context.Context) (map[string]activity.Document, error) {
	var records []models.ActivityRecord
	if err := r.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load activity records: %w", err)
	}

	var reads []models.ActivityRead
	if err := r.db.WithContext(ctx).Find(&reads).Error; err != nil {
		return nil, fmt.Errorf("load activity reads: %w", err)
	}

	docs := make(map[string]activity.Document, len(records))
	for _, record := range records {
		doc := make(activity.Document, len(record.Payload)+2)
		for key, value := range record.Payload {
			doc[key] = value
		}
		if record.Type != "" {
			doc["type"] = record.Type
		}
		docs[record.ID] = doc
	}

	for _, read := range reads {
		doc, ok := docs[read.RecordID]
		if !ok {
			continue
		}
		readBy := map[string]interface{}{}
		if existing, ok := doc["readBy"].(map[string]interface{}); ok {
			for key, value := range existing {
				readBy[key] = value
			}
		}
		readBy[read.ViewerID] = true
		doc["readBy"] = readBy
	}

	return docs, nil
}

// MarkRead inserts the read mark if it is not already there. Missing records yield
// gorm.ErrRecordNotFound.
func (r *activityRecordRepository) MarkRead(ctx context.Context, recordID, viewerID string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ActivityRecord{}).Where("id = ?", recordID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}

	read := models.ActivityRead{RecordID: recordID, ViewerID: viewerID, ReadAt: time.Now().UTC()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&read).Error
}

// Update merges fields into the stored payload of record id.
func (r *activityRecordRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.ActivityRecord
		if err := tx.First(&record, "id = ?", id).Error; err != nil {
			return err
		}
		if record.Payload == nil {
			record.Payload = map[string]interface{}{}
		}
		for key, value := range fields {
			record.Payload[key] = value
		}
		return tx.Model(&record).Updates(map[string]interface{}{
			"payload":    record.Payload,
			"updated_at": time.Now().UTC(),
		}).Error
	})
}

func (r *activityRecordRepository) UpsertBatch(ctx context.Context, records []models.ActivityRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"type", "payload", "updated_at"}),
	}).Create(&records)
	if tx.Error != nil {
		return 0, tx.Error
	}

	return tx.RowsAffected, nil
}

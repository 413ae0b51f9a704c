package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/estatebill/internal/approval/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, request *domain.Request) error {
	return db.WithContext(ctx).Create(request).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Request, error) {
	var request domain.Request
	err := db.WithContext(ctx).Where("id = ?", id).First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repo) FindPending(ctx context.Context, db *gorm.DB, kind, entityID string) (*domain.Request, error) {
	var request domain.Request
	err := db.WithContext(ctx).
		Where("kind = ? AND entity_id = ? AND status = ?", kind, entityID, domain.StatusPending).
		Order("created_at desc").
		First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repo) Decide(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, decidedBy string, notes *string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Model(&domain.Request{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"status":         status,
			"decided_by":     decidedBy,
			"decision_notes": notes,
			"decided_at":     now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) MarkApplied(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Model(&domain.Request{}).
		Where("id = ? AND status = ? AND applied_at IS NULL", id, domain.StatusApproved).
		Update("applied_at", now)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/estatebill/internal/billingprofile/domain"
	"github.com/smallbiznis/estatebill/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindProfile(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.BillingProfile, error) {
	return r.findProfile(tx.WithContext(ctx), id)
}

func (r *repo) FindProfileForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.BillingProfile, error) {
	return r.findProfile(db.ForUpdate(tx.WithContext(ctx)), id)
}

func (r *repo) findProfile(stmt *gorm.DB, id snowflake.ID) (*domain.BillingProfile, error) {
	var profile domain.BillingProfile
	err := stmt.Where("id = ?", id).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repo) ListItems(ctx context.Context, tx *gorm.DB, profileID snowflake.ID) ([]domain.BillingItem, error) {
	var items []domain.BillingItem
	err := tx.WithContext(ctx).
		Where("billing_profile_id = ?", profileID).
		Order("position asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateEffectiveDate(ctx context.Context, tx *gorm.DB, id snowflake.ID, effectiveDate, now time.Time) error {
	return tx.WithContext(ctx).Model(&domain.BillingProfile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"effective_date": effectiveDate,
			"updated_at":     now,
		}).Error
}

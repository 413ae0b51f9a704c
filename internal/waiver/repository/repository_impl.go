package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/estatebill/internal/waiver/domain"
	"github.com/smallbiznis/estatebill/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert maps a violation of the pending-per-invoice index to
// ErrDuplicatePendingWaiver.
func (r *repo) Insert(ctx context.Context, tx *gorm.DB, waiver *domain.LateFeeWaiver) error {
	err := tx.WithContext(ctx).Create(waiver).Error
	if err != nil && db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicatePendingWaiver
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.LateFeeWaiver, error) {
	var waiver domain.LateFeeWaiver
	err := tx.WithContext(ctx).Where("id = ?", id).First(&waiver).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &waiver, nil
}

func (r *repo) FindPendingByInvoice(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (*domain.LateFeeWaiver, error) {
	var waiver domain.LateFeeWaiver
	err := tx.WithContext(ctx).
		Where("invoice_id = ? AND status = ?", invoiceID, domain.StatusPending).
		First(&waiver).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &waiver, nil
}

func (r *repo) ListByInvoice(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) ([]domain.LateFeeWaiver, error) {
	var waivers []domain.LateFeeWaiver
	err := tx.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at desc, id desc").
		Find(&waivers).Error
	if err != nil {
		return nil, err
	}
	return waivers, nil
}

func (r *repo) Review(ctx context.Context, tx *gorm.DB, id snowflake.ID, status domain.Status, reviewedBy string, notes *string, now time.Time) (bool, error) {
	result := tx.WithContext(ctx).Model(&domain.LateFeeWaiver{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"status":       status,
			"reviewed_by":  reviewedBy,
			"review_notes": notes,
			"reviewed_at":  now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

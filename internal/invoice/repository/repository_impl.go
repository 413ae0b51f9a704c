package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/estatebill/internal/invoice/domain"
	"github.com/smallbiznis/estatebill/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// InsertWithItems inserts the invoice and its lines. It returns false when
// a non-correction invoice already exists for the same house, resident and
// period; callers run it inside a transaction.
func (r *repo) InsertWithItems(ctx context.Context, tx *gorm.DB, invoice *domain.Invoice, items []domain.InvoiceItem) (bool, error) {
	if invoice == nil {
		return false, nil
	}

	stmt := tx.WithContext(ctx)
	if !invoice.IsCorrection {
		stmt = stmt.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "house_id"}, {Name: "resident_id"}, {Name: "period_start"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "is_correction = false"},
			}},
			DoNothing: true,
		})
	}
	result := stmt.Create(invoice)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	if len(items) == 0 {
		return true, nil
	}
	if err := tx.WithContext(ctx).Create(&items).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := tx.WithContext(ctx).Where("id = ?", id).First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.ForUpdate(tx.WithContext(ctx)).Where("id = ?", id).First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) ListItems(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) ([]domain.InvoiceItem, error) {
	var items []domain.InvoiceItem
	err := tx.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("position asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, filter domain.ListFilter) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	stmt := tx.WithContext(ctx).Model(&domain.Invoice{}).
		Where("resident_id = ?", filter.ResidentID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.CursorAt != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			*filter.CursorAt,
			*filter.CursorAt,
			filter.CursorID,
		)
	}
	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// ListChain returns the root invoice followed by its corrections.
func (r *repo) ListChain(ctx context.Context, tx *gorm.DB, rootID snowflake.ID) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	err := tx.WithContext(ctx).
		Where("id = ? OR parent_invoice_id = ?", rootID, rootID).
		Order("is_correction asc, created_at asc, id asc").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) ListOpenByResident(ctx context.Context, tx *gorm.DB, residentID snowflake.ID) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	err := tx.WithContext(ctx).
		Where("resident_id = ? AND status IN ?", residentID, []domain.InvoiceStatus{
			domain.InvoiceStatusUnpaid,
			domain.InvoiceStatusPartiallyPaid,
		}).
		Order("due_date asc, id asc").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) ExistsForPeriod(ctx context.Context, tx *gorm.DB, houseID, residentID snowflake.ID, periodStart time.Time) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&domain.Invoice{}).
		Where("house_id = ? AND resident_id = ? AND period_start = ? AND is_correction = ?",
			houseID, residentID, periodStart, false).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) CountCorrections(ctx context.Context, tx *gorm.DB, parentID snowflake.ID, kind domain.CorrectionType) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&domain.Invoice{}).
		Where("parent_invoice_id = ? AND correction_type = ?", parentID, kind).
		Count(&count).Error
	return count, err
}

func (r *repo) CountByProfileFrom(ctx context.Context, tx *gorm.DB, profileID snowflake.ID, from time.Time) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&domain.Invoice{}).
		Where("billing_profile_id = ? AND period_start >= ? AND is_correction = ?", profileID, from, false).
		Count(&count).Error
	return count, err
}

func (r *repo) UpdateAmounts(ctx context.Context, tx *gorm.DB, invoice *domain.Invoice, now time.Time) error {
	return tx.WithContext(ctx).Model(&domain.Invoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]any{
			"amount_due":  invoice.AmountDue,
			"amount_paid": invoice.AmountPaid,
			"status":      invoice.Status,
			"metadata":    invoice.Metadata,
			"updated_at":  now,
		}).Error
}

func (r *repo) UpdateMetadata(ctx context.Context, tx *gorm.DB, id snowflake.ID, metadata datatypes.JSONMap, now time.Time) error {
	return tx.WithContext(ctx).Model(&domain.Invoice{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"metadata":   metadata,
			"updated_at": now,
		}).Error
}

// UpdateStatus transitions only when the stored status still equals from.
func (r *repo) UpdateStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, from, to domain.InvoiceStatus, now time.Time) (bool, error) {
	result := tx.WithContext(ctx).Model(&domain.Invoice{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

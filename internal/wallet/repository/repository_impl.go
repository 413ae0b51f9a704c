package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/estatebill/internal/wallet/domain"
	"github.com/smallbiznis/estatebill/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) EnsureWallet(ctx context.Context, tx *gorm.DB, residentID snowflake.ID, now time.Time) error {
	wallet := domain.Wallet{
		ResidentID: residentID,
		Balance:    decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "resident_id"}},
			DoNothing: true,
		}).
		Create(&wallet).Error
}

func (r *repo) FindWallet(ctx context.Context, tx *gorm.DB, residentID snowflake.ID) (*domain.Wallet, error) {
	return findWallet(tx.WithContext(ctx), residentID)
}

func (r *repo) FindWalletForUpdate(ctx context.Context, tx *gorm.DB, residentID snowflake.ID) (*domain.Wallet, error) {
	return findWallet(db.ForUpdate(tx.WithContext(ctx)), residentID)
}

func findWallet(stmt *gorm.DB, residentID snowflake.ID) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := stmt.Where("resident_id = ?", residentID).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repo) UpdateBalance(ctx context.Context, tx *gorm.DB, residentID snowflake.ID, balance decimal.Decimal, now time.Time) error {
	return tx.WithContext(ctx).Model(&domain.Wallet{}).
		Where("resident_id = ?", residentID).
		Updates(map[string]any{
			"balance":    balance,
			"updated_at": now,
		}).Error
}

func (r *repo) InsertTransaction(ctx context.Context, tx *gorm.DB, txn *domain.Transaction) error {
	return tx.WithContext(ctx).Create(txn).Error
}

func (r *repo) ListTransactions(ctx context.Context, tx *gorm.DB, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	var txns []*domain.Transaction
	stmt := tx.WithContext(ctx).Model(&domain.Transaction{}).
		Where("resident_id = ?", filter.ResidentID)
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
	if err := stmt.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// SumTransactions returns credits minus debits over the full history.
func (r *repo) SumTransactions(ctx context.Context, tx *gorm.DB, residentID snowflake.ID) (decimal.Decimal, error) {
	var txns []domain.Transaction
	err := tx.WithContext(ctx).
		Select("type", "amount").
		Where("resident_id = ?", residentID).
		Find(&txns).Error
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, txn := range txns {
		sum = sum.Add(txn.Signed())
	}
	return sum, nil
}

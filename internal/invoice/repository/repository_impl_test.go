package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/estatebill/internal/dbtest"
	"github.com/smallbiznis/estatebill/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func periodInvoice(node *snowflake.Node, houseID, residentID snowflake.ID, periodStart time.Time) *domain.Invoice {
	return &domain.Invoice{
		ID:            node.Generate(),
		ResidentID:    residentID,
		HouseID:       houseID,
		InvoiceNumber: domain.InvoiceNumber(periodStart, node.Generate().String()),
		AmountDue:     decimal.NewFromInt(25000),
		AmountPaid:    decimal.Zero,
		Status:        domain.InvoiceStatusUnpaid,
		InvoiceType:   domain.InvoiceTypeServiceCharge,
		DueDate:       periodStart.AddDate(0, 0, 30),
		PeriodStart:   periodStart,
		PeriodEnd:     periodStart.AddDate(0, 1, -1),
		RateSnapshot:  datatypes.NewJSONType(domain.RateSnapshot{}),
	}
}

func TestInsertWithItemsSkipsSecondInvoiceForPeriod(t *testing.T) {
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	repo := Provide()
	ctx := context.Background()
	houseID, residentID := node.Generate(), node.Generate()
	january := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	first := periodInvoice(node, houseID, residentID, january)
	ok, err := repo.InsertWithItems(ctx, db, first, []domain.InvoiceItem{{
		ID: node.Generate(), InvoiceID: first.ID, Description: "Estate Maintenance", Amount: first.AmountDue,
	}})
	require.NoError(t, err)
	require.True(t, ok)

	second := periodInvoice(node, houseID, residentID, january)
	ok, err = repo.InsertWithItems(ctx, db, second, []domain.InvoiceItem{{
		ID: node.Generate(), InvoiceID: second.ID, Description: "Estate Maintenance", Amount: second.AmountDue,
	}})
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.FindByID(ctx, db, second.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	var items int64
	require.NoError(t, db.Model(&domain.InvoiceItem{}).Where("invoice_id = ?", second.ID).Count(&items).Error)
	assert.Zero(t, items)

	// another month, or a correction in the same month, is not a duplicate
	ok, err = repo.InsertWithItems(ctx, db, periodInvoice(node, houseID, residentID, january.AddDate(0, 1, 0)), nil)
	require.NoError(t, err)
	assert.True(t, ok)

	kind := domain.CorrectionTypeDebitNote
	rootID := first.ID
	correction := periodInvoice(node, houseID, residentID, january)
	correction.IsCorrection = true
	correction.CorrectionType = &kind
	correction.ParentInvoiceID = &rootID
	ok, err = repo.InsertWithItems(ctx, db, correction, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

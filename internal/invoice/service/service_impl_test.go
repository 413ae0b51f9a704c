package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/estatebill/internal/authorization"
	"github.com/smallbiznis/estatebill/internal/authorization/authztest"
	"github.com/smallbiznis/estatebill/internal/clock"
	"github.com/smallbiznis/estatebill/internal/dbtest"
	invoicedomain "github.com/smallbiznis/estatebill/internal/invoice/domain"
	"github.com/smallbiznis/estatebill/internal/invoice/repository"
	"github.com/smallbiznis/estatebill/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	svc   invoicedomain.Service
	authz authorization.Service
	clock *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	authz := authztest.NewService(t)
	clk := clock.NewFakeClock(time.Date(2026, time.January, 20, 9, 0, 0, 0, time.UTC))
	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Authz: authz,
		Clock: clk,
	})
	return &fixture{db: db, node: node, svc: svc, authz: authz, clock: clk}
}

func (f *fixture) seedInvoice(t *testing.T, residentID snowflake.ID, amountDue int64, mutate func(*invoicedomain.Invoice)) *invoicedomain.Invoice {
	t.Helper()
	now := f.clock.Now()
	periodStart := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	invoice := &invoicedomain.Invoice{
		ID:            f.node.Generate(),
		ResidentID:    residentID,
		HouseID:       f.node.Generate(),
		InvoiceNumber: invoicedomain.InvoiceNumber(periodStart, f.node.Generate().String()),
		AmountDue:     decimal.NewFromInt(amountDue),
		AmountPaid:    decimal.Zero,
		Status:        invoicedomain.InvoiceStatusUnpaid,
		InvoiceType:   invoicedomain.InvoiceTypeServiceCharge,
		DueDate:       periodStart.AddDate(0, 0, 30),
		PeriodStart:   periodStart,
		PeriodEnd:     periodStart.AddDate(0, 1, -1),
		RateSnapshot:  datatypes.NewJSONType(invoicedomain.RateSnapshot{ProfileName: "Standard", GeneratedAt: now}),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if mutate != nil {
		mutate(invoice)
	}
	ok, err := repository.Provide().InsertWithItems(context.Background(), f.db, invoice, []invoicedomain.InvoiceItem{{
		ID:          f.node.Generate(),
		InvoiceID:   invoice.ID,
		Description: "Estate Maintenance",
		Amount:      invoice.AmountDue,
		CreatedAt:   now,
	}})
	require.NoError(t, err)
	require.True(t, ok)
	return invoice
}

func (f *fixture) finance(t *testing.T) context.Context {
	return authztest.As(t, f.authz, "900", authorization.RoleFinance)
}

func TestCreateCorrectionDoesNotMutateOriginal(t *testing.T) {
	f := newFixture(t)
	ctx := f.finance(t)
	original := f.seedInvoice(t, f.node.Generate(), 25000, nil)

	credit, err := f.svc.CreateCorrection(ctx, invoicedomain.CreateCorrectionRequest{
		InvoiceID: original.ID,
		Type:      invoicedomain.CorrectionTypeCreditNote,
		Items:     []invoicedomain.CorrectionItem{{Description: "Overcharge refund", Amount: decimal.NewFromInt(5000)}},
		Reason:    "duplicate levy",
	})
	require.NoError(t, err)
	assert.True(t, credit.IsCorrection)
	assert.Equal(t, original.ID, *credit.ParentInvoiceID)
	assert.Equal(t, original.InvoiceNumber+"-CN1", credit.InvoiceNumber)
	assert.True(t, credit.AmountDue.Equal(decimal.NewFromInt(5000)))

	debit, err := f.svc.CreateCorrection(ctx, invoicedomain.CreateCorrectionRequest{
		InvoiceID: credit.ID,
		Type:      invoicedomain.CorrectionTypeDebitNote,
		Items:     []invoicedomain.CorrectionItem{{Description: "Missed water charge", Amount: decimal.NewFromInt(1500)}},
	})
	require.NoError(t, err)
	assert.Equal(t, original.ID, *debit.ParentInvoiceID, "corrections always hang off the chain root")

	stored, err := f.svc.GetByID(ctx, original.ID)
	require.NoError(t, err)
	assert.True(t, stored.AmountDue.Equal(original.AmountDue))
	assert.True(t, stored.AmountPaid.IsZero())
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, stored.Status)

	outstanding, err := f.svc.Outstanding(ctx, debit.ID)
	require.NoError(t, err)
	assert.Equal(t, original.ID, outstanding.RootInvoiceID)
	assert.True(t, outstanding.Total.Equal(decimal.NewFromInt(21500)), outstanding.Total.String())
	assert.Len(t, outstanding.Invoices, 3)

	detail, err := f.svc.GetWithParent(ctx, credit.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Parent)
	assert.Equal(t, original.ID, detail.Parent.ID)
	assert.Len(t, detail.Items, 1)
}

func TestCreateCorrectionRejectsVoidInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := f.finance(t)
	original := f.seedInvoice(t, f.node.Generate(), 10000, func(i *invoicedomain.Invoice) {
		i.Status = invoicedomain.InvoiceStatusVoid
	})

	_, err := f.svc.CreateCorrection(ctx, invoicedomain.CreateCorrectionRequest{
		InvoiceID: original.ID,
		Type:      invoicedomain.CorrectionTypeDebitNote,
		Items:     []invoicedomain.CorrectionItem{{Description: "x", Amount: decimal.NewFromInt(1)}},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrCorrectionOfVoidInvoice)
}

func TestCreateCorrectionValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := f.finance(t)
	original := f.seedInvoice(t, f.node.Generate(), 10000, nil)

	_, err := f.svc.CreateCorrection(ctx, invoicedomain.CreateCorrectionRequest{
		InvoiceID: original.ID,
		Type:      "refund",
		Items:     []invoicedomain.CorrectionItem{{Description: "x", Amount: decimal.NewFromInt(1)}},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidCorrectionType)

	_, err = f.svc.CreateCorrection(ctx, invoicedomain.CreateCorrectionRequest{
		InvoiceID: original.ID,
		Type:      invoicedomain.CorrectionTypeCreditNote,
		Items:     []invoicedomain.CorrectionItem{{Description: "x", Amount: decimal.NewFromInt(-5)}},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidCorrectionItems)
}

func TestCreateCorrectionRequiresPermission(t *testing.T) {
	f := newFixture(t)
	resident := authztest.As(t, f.authz, "77", authorization.RoleResident)
	original := f.seedInvoice(t, f.node.Generate(), 10000, nil)

	_, err := f.svc.CreateCorrection(resident, invoicedomain.CreateCorrectionRequest{
		InvoiceID: original.ID,
		Type:      invoicedomain.CorrectionTypeCreditNote,
		Items:     []invoicedomain.CorrectionItem{{Description: "x", Amount: decimal.NewFromInt(1)}},
	})
	assert.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestApplyLateFee(t *testing.T) {
	f := newFixture(t)
	original := f.seedInvoice(t, f.node.Generate(), 25000, nil)

	updated, err := f.svc.ApplyLateFee(authztest.System(), original.ID, decimal.NewFromInt(2000))
	require.NoError(t, err)
	assert.True(t, updated.AmountDue.Equal(decimal.NewFromInt(27000)))

	stored, err := f.svc.GetByID(context.Background(), original.ID)
	require.NoError(t, err)
	fee, err := stored.LateFee()
	require.NoError(t, err)
	assert.True(t, fee.Applied)
	assert.True(t, fee.Amount.Equal(decimal.NewFromInt(2000)))

	_, err = f.svc.ApplyLateFee(authztest.System(), original.ID, decimal.NewFromInt(2000))
	assert.ErrorIs(t, err, invoicedomain.ErrLateFeeAlreadyApplied)
}

func TestVoidInvoice(t *testing.T) {
	f := newFixture(t)
	admin := authztest.As(t, f.authz, "1", authorization.RoleAdmin)
	open := f.seedInvoice(t, f.node.Generate(), 25000, nil)
	partly := f.seedInvoice(t, f.node.Generate(), 25000, func(i *invoicedomain.Invoice) {
		i.AmountPaid = decimal.NewFromInt(100)
		i.Status = invoicedomain.InvoiceStatusPartiallyPaid
	})

	voided, err := f.svc.VoidInvoice(admin, open.ID, "house demolished")
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusVoid, voided.Status)

	_, err = f.svc.VoidInvoice(admin, open.ID, "again")
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceVoid)

	_, err = f.svc.VoidInvoice(admin, partly.ID, "")
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceHasPayments)
}

func TestVoidInvoiceVoidsCorrections(t *testing.T) {
	f := newFixture(t)
	ctx := f.finance(t)
	admin := authztest.As(t, f.authz, "1", authorization.RoleAdmin)
	original := f.seedInvoice(t, f.node.Generate(), 5000, nil)

	credit, err := f.svc.CreateCorrection(ctx, invoicedomain.CreateCorrectionRequest{
		InvoiceID: original.ID,
		Type:      invoicedomain.CorrectionTypeCreditNote,
		Items:     []invoicedomain.CorrectionItem{{Description: "Discount", Amount: decimal.NewFromInt(1000)}},
	})
	require.NoError(t, err)

	_, err = f.svc.VoidInvoice(admin, original.ID, "billed in error")
	require.NoError(t, err)

	stored, err := f.svc.GetByID(ctx, credit.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusVoid, stored.Status)

	outstanding, err := f.svc.Outstanding(ctx, original.ID)
	require.NoError(t, err)
	assert.True(t, outstanding.Total.IsZero(), outstanding.Total.String())
	assert.True(t, outstanding.Credits.IsZero())
}

func TestVoidInvoiceRejectsPaidDebitNote(t *testing.T) {
	f := newFixture(t)
	ctx := f.finance(t)
	admin := authztest.As(t, f.authz, "1", authorization.RoleAdmin)
	original := f.seedInvoice(t, f.node.Generate(), 5000, nil)

	debit, err := f.svc.CreateCorrection(ctx, invoicedomain.CreateCorrectionRequest{
		InvoiceID: original.ID,
		Type:      invoicedomain.CorrectionTypeDebitNote,
		Items:     []invoicedomain.CorrectionItem{{Description: "Water", Amount: decimal.NewFromInt(800)}},
	})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).Where("id = ?", debit.ID).
		Updates(map[string]any{"amount_paid": decimal.NewFromInt(200), "status": invoicedomain.InvoiceStatusPartiallyPaid}).Error)

	_, err = f.svc.VoidInvoice(admin, original.ID, "billed in error")
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceHasPayments)

	stored, err := f.svc.GetByID(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, stored.Status)
}

func TestListByResidentPaginates(t *testing.T) {
	f := newFixture(t)
	residentID := f.node.Generate()
	for i := 0; i < 3; i++ {
		f.seedInvoice(t, residentID, int64(1000*(i+1)), nil)
		f.clock.Advance(time.Minute)
	}
	f.seedInvoice(t, f.node.Generate(), 999, nil)

	first, err := f.svc.ListByResident(context.Background(), invoicedomain.ListByResidentRequest{
		Pagination: pagination.Pagination{PageSize: 2},
		ResidentID: residentID,
	})
	require.NoError(t, err)
	assert.Len(t, first.Invoices, 2)
	assert.True(t, first.HasMore)
	assert.True(t, first.Invoices[0].AmountDue.Equal(decimal.NewFromInt(3000)))

	second, err := f.svc.ListByResident(context.Background(), invoicedomain.ListByResidentRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
		ResidentID: residentID,
	})
	require.NoError(t, err)
	assert.Len(t, second.Invoices, 1)
	assert.False(t, second.HasMore)
}

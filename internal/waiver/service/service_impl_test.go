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
	invoicerepository "github.com/smallbiznis/estatebill/internal/invoice/repository"
	"github.com/smallbiznis/estatebill/internal/waiver/domain"
	"github.com/smallbiznis/estatebill/internal/waiver/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	svc      domain.Service
	resident context.Context
	finance  context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	authz := authztest.NewService(t)
	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        repository.Provide(),
		InvoiceRepo: invoicerepository.Provide(),
		Authz:       authz,
		Clock:       clock.NewFakeClock(time.Date(2026, time.February, 10, 8, 0, 0, 0, time.UTC)),
	})
	return &fixture{
		db:       db,
		node:     node,
		svc:      svc,
		resident: authztest.As(t, authz, "300", authorization.RoleResident),
		finance:  authztest.As(t, authz, "900", authorization.RoleFinance),
	}
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func (f *fixture) seedInvoice(t *testing.T, amountDue int64, metadata datatypes.JSONMap) *invoicedomain.Invoice {
	t.Helper()
	periodStart := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	invoice := &invoicedomain.Invoice{
		ID:            f.node.Generate(),
		ResidentID:    f.node.Generate(),
		HouseID:       f.node.Generate(),
		InvoiceNumber: invoicedomain.InvoiceNumber(periodStart, f.node.Generate().String()),
		AmountDue:     dec(amountDue),
		AmountPaid:    decimal.Zero,
		Status:        invoicedomain.InvoiceStatusUnpaid,
		InvoiceType:   invoicedomain.InvoiceTypeServiceCharge,
		DueDate:       periodStart.AddDate(0, 0, 30),
		PeriodStart:   periodStart,
		PeriodEnd:     periodStart.AddDate(0, 1, -1),
		RateSnapshot:  datatypes.NewJSONType(invoicedomain.RateSnapshot{}),
		Metadata:      metadata,
	}
	_, err := invoicerepository.Provide().InsertWithItems(context.Background(), f.db, invoice, nil)
	require.NoError(t, err)
	return invoice
}

func (f *fixture) invoice(t *testing.T, id snowflake.ID) *invoicedomain.Invoice {
	t.Helper()
	invoice, err := invoicerepository.Provide().FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, invoice)
	return invoice
}

func lateFee(amount string) datatypes.JSONMap {
	return datatypes.JSONMap{
		invoicedomain.MetaLateFeeApplied: true,
		invoicedomain.MetaLateFeeAmount:  amount,
	}
}

func partial(amount int64) *decimal.Decimal {
	value := dec(amount)
	return &value
}

func TestApprovePartialWaiver(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedInvoice(t, 27000, lateFee("2000"))

	waiver, err := f.svc.Request(f.resident, domain.CreateRequest{
		InvoiceID:    invoice.ID,
		Type:         domain.WaiverTypePartial,
		WaiverAmount: partial(500),
		Reason:       "bank delay",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, waiver.Status)
	assert.True(t, waiver.OriginalLateFee.Equal(dec(2000)))
	assert.Equal(t, invoice.ResidentID, waiver.ResidentID)
	assert.Equal(t, "300", waiver.RequestedBy)

	approved, err := f.svc.Approve(f.finance, domain.ReviewRequest{WaiverID: waiver.ID, Notes: "first offence"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, "900", *approved.ReviewedBy)

	stored := f.invoice(t, invoice.ID)
	assert.True(t, stored.AmountDue.Equal(dec(26500)), stored.AmountDue.String())
	assert.Equal(t, "1500", stored.Metadata[invoicedomain.MetaLateFeeRemaining])
	assert.Equal(t, "500", stored.Metadata[invoicedomain.MetaWaivedAmount])
	assert.Equal(t, "partial", stored.Metadata[invoicedomain.MetaWaiverType])
	assert.Equal(t, true, stored.Metadata[invoicedomain.MetaLateFeeWaived])

	_, err = f.svc.Approve(f.finance, domain.ReviewRequest{WaiverID: waiver.ID})
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	_, err = f.svc.Reject(f.finance, domain.ReviewRequest{WaiverID: waiver.ID})
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)

	stored = f.invoice(t, invoice.ID)
	assert.True(t, stored.AmountDue.Equal(dec(26500)), "a repeated decision must not waive twice")
}

func TestWaiversConserveAmountDue(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedInvoice(t, 27000, lateFee("2000"))

	first, err := f.svc.Request(f.resident, domain.CreateRequest{
		InvoiceID: invoice.ID, Type: domain.WaiverTypePartial, WaiverAmount: partial(500),
	})
	require.NoError(t, err)
	_, err = f.svc.Approve(f.finance, domain.ReviewRequest{WaiverID: first.ID})
	require.NoError(t, err)

	second, err := f.svc.Request(f.resident, domain.CreateRequest{InvoiceID: invoice.ID, Type: domain.WaiverTypeFull})
	require.NoError(t, err)
	assert.True(t, second.OriginalLateFee.Equal(dec(1500)))
	_, err = f.svc.Approve(f.finance, domain.ReviewRequest{WaiverID: second.ID})
	require.NoError(t, err)

	stored := f.invoice(t, invoice.ID)
	assert.True(t, stored.AmountDue.Equal(dec(25000)), stored.AmountDue.String())
	assert.Equal(t, "0", stored.Metadata[invoicedomain.MetaLateFeeRemaining])

	_, err = f.svc.Request(f.resident, domain.CreateRequest{InvoiceID: invoice.ID, Type: domain.WaiverTypeFull})
	assert.ErrorIs(t, err, domain.ErrNoLateFeeApplied)
}

func TestRejectLeavesInvoiceUntouched(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedInvoice(t, 27000, lateFee("2000"))

	waiver, err := f.svc.Request(f.resident, domain.CreateRequest{InvoiceID: invoice.ID, Type: domain.WaiverTypeFull})
	require.NoError(t, err)

	rejected, err := f.svc.Reject(f.finance, domain.ReviewRequest{WaiverID: waiver.ID, Notes: "paid late twice"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.ReviewNotes)
	assert.Equal(t, "paid late twice", *rejected.ReviewNotes)

	stored := f.invoice(t, invoice.ID)
	assert.True(t, stored.AmountDue.Equal(dec(27000)))
	assert.NotContains(t, stored.Metadata, invoicedomain.MetaLateFeeWaived)

	waivers, err := f.svc.ListByInvoice(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Len(t, waivers, 1)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)
	withFee := f.seedInvoice(t, 27000, lateFee("2000"))
	withoutFee := f.seedInvoice(t, 25000, nil)

	tests := []struct {
		name string
		req  domain.CreateRequest
		want error
	}{
		{
			name: "no late fee",
			req:  domain.CreateRequest{InvoiceID: withoutFee.ID, Type: domain.WaiverTypeFull},
			want: domain.ErrNoLateFeeApplied,
		},
		{
			name: "partial equal to fee",
			req:  domain.CreateRequest{InvoiceID: withFee.ID, Type: domain.WaiverTypePartial, WaiverAmount: partial(2000)},
			want: domain.ErrInvalidWaiverAmount,
		},
		{
			name: "partial without amount",
			req:  domain.CreateRequest{InvoiceID: withFee.ID, Type: domain.WaiverTypePartial},
			want: domain.ErrInvalidWaiverAmount,
		},
		{
			name: "partial negative",
			req:  domain.CreateRequest{InvoiceID: withFee.ID, Type: domain.WaiverTypePartial, WaiverAmount: partial(-1)},
			want: domain.ErrInvalidWaiverAmount,
		},
		{
			name: "unknown type",
			req:  domain.CreateRequest{InvoiceID: withFee.ID, Type: "most"},
			want: domain.ErrInvalidWaiverType,
		},
		{
			name: "missing invoice",
			req:  domain.CreateRequest{InvoiceID: f.node.Generate(), Type: domain.WaiverTypeFull},
			want: invoicedomain.ErrInvoiceNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Request(f.resident, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSinglePendingWaiverPerInvoice(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedInvoice(t, 27000, lateFee("2000"))

	_, err := f.svc.Request(f.resident, domain.CreateRequest{InvoiceID: invoice.ID, Type: domain.WaiverTypeFull})
	require.NoError(t, err)

	_, err = f.svc.Request(f.resident, domain.CreateRequest{
		InvoiceID: invoice.ID, Type: domain.WaiverTypePartial, WaiverAmount: partial(100),
	})
	assert.ErrorIs(t, err, domain.ErrDuplicatePendingWaiver)

	// the pending check comes before the amount check
	_, err = f.svc.Request(f.resident, domain.CreateRequest{
		InvoiceID: invoice.ID, Type: domain.WaiverTypePartial, WaiverAmount: partial(5000),
	})
	assert.ErrorIs(t, err, domain.ErrDuplicatePendingWaiver)
	_, err = f.svc.Request(f.resident, domain.CreateRequest{InvoiceID: invoice.ID, Type: domain.WaiverTypePartial})
	assert.ErrorIs(t, err, domain.ErrDuplicatePendingWaiver)

	// the index rejects a racing insert that skipped the pre-check
	err = repository.Provide().Insert(context.Background(), f.db, &domain.LateFeeWaiver{
		ID:              f.node.Generate(),
		InvoiceID:       invoice.ID,
		ResidentID:      invoice.ResidentID,
		RequestedBy:     "system",
		WaiverType:      domain.WaiverTypeFull,
		OriginalLateFee: dec(2000),
		Status:          domain.StatusPending,
		CreatedAt:       time.Now(),
	})
	assert.ErrorIs(t, err, domain.ErrDuplicatePendingWaiver)
}

func TestDecisionsRequireFinanceRole(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedInvoice(t, 27000, lateFee("2000"))
	waiver, err := f.svc.Request(f.resident, domain.CreateRequest{InvoiceID: invoice.ID, Type: domain.WaiverTypeFull})
	require.NoError(t, err)

	_, err = f.svc.Approve(f.resident, domain.ReviewRequest{WaiverID: waiver.ID})
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = f.svc.Approve(f.finance, domain.ReviewRequest{WaiverID: f.node.Generate()})
	assert.ErrorIs(t, err, domain.ErrWaiverNotFound)
}

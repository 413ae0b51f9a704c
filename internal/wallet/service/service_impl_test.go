package service

import (
	"context"
	"math/rand"
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
	"github.com/smallbiznis/estatebill/internal/wallet/domain"
	"github.com/smallbiznis/estatebill/internal/wallet/repository"
	"github.com/smallbiznis/estatebill/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	svc     domain.Service
	finance context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	authz := authztest.NewService(t)
	clk := clock.NewFakeClock(time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC))
	return &fixture{
		db:    db,
		node:  node,
		clock: clk,
		svc: NewService(Params{
			DB:          db,
			Log:         zap.NewNop(),
			GenID:       node,
			Repo:        repository.Provide(),
			InvoiceRepo: invoicerepository.Provide(),
			Authz:       authz,
			Clock:       clk,
		}),
		finance: authztest.As(t, authz, "900", authorization.RoleFinance),
	}
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func (f *fixture) seedInvoice(t *testing.T, residentID snowflake.ID, amountDue int64) *invoicedomain.Invoice {
	t.Helper()
	periodStart := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	invoice := &invoicedomain.Invoice{
		ID:            f.node.Generate(),
		ResidentID:    residentID,
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
	}
	_, err := invoicerepository.Provide().InsertWithItems(context.Background(), f.db, invoice, nil)
	require.NoError(t, err)
	return invoice
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	residentID := f.node.Generate()

	first, err := f.svc.GetOrCreate(context.Background(), residentID)
	require.NoError(t, err)
	assert.True(t, first.Balance.IsZero())

	second, err := f.svc.GetOrCreate(context.Background(), residentID)
	require.NoError(t, err)
	assert.Equal(t, first.ResidentID, second.ResidentID)

	var count int64
	require.NoError(t, f.db.Model(&domain.Wallet{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDebitMayOverdraw(t *testing.T) {
	f := newFixture(t)
	residentID := f.node.Generate()

	_, err := f.svc.Credit(f.finance, domain.PostingRequest{ResidentID: residentID, Amount: dec(1000), Description: "top up"})
	require.NoError(t, err)
	txn, err := f.svc.Debit(f.finance, domain.PostingRequest{ResidentID: residentID, Amount: dec(2500), Description: "gate fob"})
	require.NoError(t, err)
	assert.True(t, txn.BalanceAfter.Equal(dec(-1500)))

	wallet, err := f.svc.GetOrCreate(context.Background(), residentID)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(dec(-1500)))

	_, err = f.svc.Credit(f.finance, domain.PostingRequest{ResidentID: residentID, Amount: dec(0)})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestBalanceMatchesLedger(t *testing.T) {
	f := newFixture(t)
	residentID := f.node.Generate()
	rng := rand.New(rand.NewSource(42))

	expected := decimal.Zero
	for i := 0; i < 40; i++ {
		amount := decimal.New(int64(rng.Intn(100000)+1), -2)
		req := domain.PostingRequest{ResidentID: residentID, Amount: amount}
		if rng.Intn(2) == 0 {
			_, err := f.svc.Credit(f.finance, req)
			require.NoError(t, err)
			expected = expected.Add(amount)
		} else {
			_, err := f.svc.Debit(f.finance, req)
			require.NoError(t, err)
			expected = expected.Sub(amount)
		}
		f.clock.Advance(time.Second)

		recon, err := f.svc.Reconcile(context.Background(), residentID)
		require.NoError(t, err)
		require.True(t, recon.Consistent, "step %d: balance %s ledger %s", i, recon.Balance, recon.LedgerSum)
		require.True(t, recon.Balance.Equal(expected), "step %d", i)
	}
}

func TestSettleInvoice(t *testing.T) {
	f := newFixture(t)
	residentID := f.node.Generate()
	invoice := f.seedInvoice(t, residentID, 5000)
	_, err := f.svc.Credit(f.finance, domain.PostingRequest{ResidentID: residentID, Amount: dec(8000)})
	require.NoError(t, err)

	part := dec(2000)
	result, err := f.svc.SettleInvoice(f.finance, domain.SettleRequest{ResidentID: residentID, InvoiceID: invoice.ID, Amount: &part})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, result.Invoice.Status)
	assert.True(t, result.Wallet.Balance.Equal(dec(6000)))
	require.NotNil(t, result.Transaction.InvoiceID)
	assert.Equal(t, invoice.ID, *result.Transaction.InvoiceID)

	over := dec(3001)
	_, err = f.svc.SettleInvoice(f.finance, domain.SettleRequest{ResidentID: residentID, InvoiceID: invoice.ID, Amount: &over})
	assert.ErrorIs(t, err, invoicedomain.ErrOverpayment)

	result, err = f.svc.SettleInvoice(f.finance, domain.SettleRequest{ResidentID: residentID, InvoiceID: invoice.ID})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, result.Invoice.Status)
	assert.True(t, result.Transaction.Amount.Equal(dec(3000)))
	assert.True(t, result.Wallet.Balance.Equal(dec(3000)))

	_, err = f.svc.SettleInvoice(f.finance, domain.SettleRequest{ResidentID: residentID, InvoiceID: invoice.ID})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceAlreadyPaid)

	recon, err := f.svc.Reconcile(context.Background(), residentID)
	require.NoError(t, err)
	assert.True(t, recon.Consistent)
}

func TestSettleInvoiceRejectsOtherResident(t *testing.T) {
	f := newFixture(t)
	invoice := f.seedInvoice(t, f.node.Generate(), 5000)

	_, err := f.svc.SettleInvoice(f.finance, domain.SettleRequest{ResidentID: f.node.Generate(), InvoiceID: invoice.ID})
	assert.ErrorIs(t, err, domain.ErrInvoiceResidentMismatch)

	var count int64
	require.NoError(t, f.db.Model(&domain.Transaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDebitRequiresPermission(t *testing.T) {
	f := newFixture(t)
	authz := authztest.NewService(t)
	svc := NewService(Params{
		DB: f.db, Log: zap.NewNop(), GenID: f.node, Repo: repository.Provide(),
		InvoiceRepo: invoicerepository.Provide(), Authz: authz,
	})
	resident := authztest.As(t, authz, "300", authorization.RoleResident)

	_, err := svc.Debit(resident, domain.PostingRequest{ResidentID: f.node.Generate(), Amount: dec(10)})
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = svc.Credit(resident, domain.PostingRequest{ResidentID: f.node.Generate(), Amount: dec(10)})
	assert.NoError(t, err)
}

func TestTransactionsPaginate(t *testing.T) {
	f := newFixture(t)
	residentID := f.node.Generate()
	for i := 1; i <= 5; i++ {
		_, err := f.svc.Credit(f.finance, domain.PostingRequest{ResidentID: residentID, Amount: dec(int64(i))})
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	seen := 0
	token := ""
	for page := 0; page < 3; page++ {
		resp, err := f.svc.Transactions(context.Background(), domain.ListTransactionsRequest{
			Pagination: pagination.Pagination{PageSize: 2, PageToken: token},
			ResidentID: residentID,
		})
		require.NoError(t, err)
		seen += len(resp.Transactions)
		if page == 0 {
			assert.True(t, resp.Transactions[0].Amount.Equal(dec(5)))
		}
		token = resp.NextPageToken
		if !resp.HasMore {
			break
		}
	}
	assert.Equal(t, 5, seen)

	_, err := f.svc.Transactions(context.Background(), domain.ListTransactionsRequest{
		Pagination: pagination.Pagination{PageToken: "%%%"},
		ResidentID: residentID,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

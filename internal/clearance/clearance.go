// Package clearance decides whether a resident has settled every financial
// obligation to the estate.
package clearance

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/estatebill/internal/clock"
	invoicedomain "github.com/smallbiznis/estatebill/internal/invoice/domain"
	"github.com/smallbiznis/estatebill/internal/notification"
	walletdomain "github.com/smallbiznis/estatebill/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidResident = errors.New("invalid_resident")

type Clearance struct {
	ResidentID     snowflake.ID            `json:"resident_id"`
	WalletBalance  decimal.Decimal         `json:"wallet_balance"`
	TotalUnpaid    decimal.Decimal         `json:"total_unpaid"`
	NetBalance     decimal.Decimal         `json:"net_balance"`
	CanProceed     bool                    `json:"can_proceed"`
	UnpaidInvoices []invoicedomain.Invoice `json:"unpaid_invoices"`
	ComputedAt     time.Time               `json:"computed_at"`
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	WalletRepo  walletdomain.Repository
	InvoiceRepo invoicedomain.Repository
	Notifier    *notification.Dispatcher `optional:"true"`
	Clock       clock.Clock              `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	walletRepo  walletdomain.Repository
	invoiceRepo invoicedomain.Repository
	notifier    *notification.Dispatcher
	clock       clock.Clock
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("clearance.service"),
		walletRepo:  p.WalletRepo,
		invoiceRepo: p.InvoiceRepo,
		notifier:    p.Notifier,
		clock:       clk,
	}
}

// Compute reads the wallet and open invoices without writing anything. A
// resident without a wallet has a zero balance.
func (s *Service) Compute(ctx context.Context, residentID snowflake.ID) (*Clearance, error) {
	if residentID == 0 {
		return nil, ErrInvalidResident
	}

	balance := decimal.Zero
	wallet, err := s.walletRepo.FindWallet(ctx, s.db, residentID)
	if err != nil {
		return nil, err
	}
	if wallet != nil {
		balance = wallet.Balance
	}

	open, err := s.invoiceRepo.ListOpenByResident(ctx, s.db, residentID)
	if err != nil {
		return nil, err
	}
	chains, err := s.loadChains(ctx, open)
	if err != nil {
		return nil, err
	}
	unpaid := invoicedomain.SumChains(chains)
	net := balance.Sub(unpaid)

	unpaidInvoices := make([]invoicedomain.Invoice, 0, len(open))
	for _, invoice := range open {
		if invoicedomain.ChainVoid(chains[invoice.RootID()]) {
			continue
		}
		unpaidInvoices = append(unpaidInvoices, invoice)
	}
	return &Clearance{
		ResidentID:     residentID,
		WalletBalance:  balance,
		TotalUnpaid:    unpaid,
		NetBalance:     net,
		CanProceed:     !net.IsNegative(),
		UnpaidInvoices: unpaidInvoices,
		ComputedAt:     s.clock.Now().UTC(),
	}, nil
}

// loadChains groups open invoices by chain and pulls in any root that is no
// longer open, so a paid or void root still governs its corrections.
func (s *Service) loadChains(ctx context.Context, open []invoicedomain.Invoice) (map[snowflake.ID][]invoicedomain.Invoice, error) {
	chains := invoicedomain.GroupByRoot(open)
	for rootID, chain := range chains {
		if hasRoot(chain, rootID) {
			continue
		}
		root, err := s.invoiceRepo.FindByID(ctx, s.db, rootID)
		if err != nil {
			return nil, err
		}
		if root != nil {
			chains[rootID] = append([]invoicedomain.Invoice{*root}, chain...)
		}
	}
	return chains, nil
}

func hasRoot(chain []invoicedomain.Invoice, rootID snowflake.ID) bool {
	for _, invoice := range chain {
		if invoice.ID == rootID && !invoice.IsCorrection {
			return true
		}
	}
	return false
}

// ComputeAndNotify is Compute for offboarding callers; the resident is told
// the result.
func (s *Service) ComputeAndNotify(ctx context.Context, residentID snowflake.ID) (*Clearance, error) {
	result, err := s.Compute(ctx, residentID)
	if err != nil {
		return nil, err
	}
	s.log.Info("clearance.computed",
		zap.String("resident_id", residentID.String()),
		zap.Bool("can_proceed", result.CanProceed),
		zap.String("net_balance", result.NetBalance.String()),
	)
	s.notifier.Dispatch(ctx, notification.Event{
		Kind:       notification.KindClearanceResult,
		ResidentID: residentID,
		Data: map[string]any{
			"can_proceed":    result.CanProceed,
			"wallet_balance": result.WalletBalance.String(),
			"total_unpaid":   result.TotalUnpaid.String(),
			"net_balance":    result.NetBalance.String(),
		},
		OccurredAt: result.ComputedAt,
	})
	return result, nil
}

var Module = fx.Module("clearance",
	fx.Provide(NewService),
)

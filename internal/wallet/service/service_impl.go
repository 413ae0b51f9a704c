package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/estatebill/internal/audit/domain"
	"github.com/smallbiznis/estatebill/internal/authorization"
	"github.com/smallbiznis/estatebill/internal/clock"
	invoicedomain "github.com/smallbiznis/estatebill/internal/invoice/domain"
	"github.com/smallbiznis/estatebill/internal/observability/metrics"
	"github.com/smallbiznis/estatebill/internal/wallet/domain"
	"github.com/smallbiznis/estatebill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	InvoiceRepo invoicedomain.Repository
	Authz       authorization.Service
	AuditSvc    auditdomain.Service     `optional:"true"`
	Clock       clock.Clock             `optional:"true"`
	Metrics     *metrics.BillingMetrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	invoiceRepo invoicedomain.Repository
	authz       authorization.Service
	auditSvc    auditdomain.Service
	clock       clock.Clock
	metrics     *metrics.BillingMetrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("wallet.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		authz:       p.Authz,
		auditSvc:    p.AuditSvc,
		clock:       clk,
		metrics:     p.Metrics,
	}
}

// GetOrCreate returns the resident's wallet, creating an empty one on first
// access.
func (s *Service) GetOrCreate(ctx context.Context, residentID snowflake.ID) (*domain.Wallet, error) {
	if residentID == 0 {
		return nil, domain.ErrInvalidResident
	}
	wallet, err := s.repo.FindWallet(ctx, s.db, residentID)
	if err != nil {
		return nil, err
	}
	if wallet != nil {
		return wallet, nil
	}
	if err := s.repo.EnsureWallet(ctx, s.db, residentID, s.clock.Now().UTC()); err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	return s.repo.FindWallet(ctx, s.db, residentID)
}

func (s *Service) Credit(ctx context.Context, req domain.PostingRequest) (*domain.Transaction, error) {
	if _, err := s.authz.Authorize(ctx, authorization.ActionWalletCredit); err != nil {
		return nil, err
	}
	return s.postStandalone(ctx, domain.TransactionTypeCredit, req)
}

// Debit may drive the balance below zero.
func (s *Service) Debit(ctx context.Context, req domain.PostingRequest) (*domain.Transaction, error) {
	if _, err := s.authz.Authorize(ctx, authorization.ActionWalletDebit); err != nil {
		return nil, err
	}
	return s.postStandalone(ctx, domain.TransactionTypeDebit, req)
}

func (s *Service) postStandalone(ctx context.Context, txType domain.TransactionType, req domain.PostingRequest) (*domain.Transaction, error) {
	if req.ResidentID == 0 {
		return nil, domain.ErrInvalidResident
	}
	if !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	var (
		txn      *domain.Transaction
		previous decimal.Decimal
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		txn, previous, err = s.post(ctx, tx, req.ResidentID, txType, req.Amount, strings.TrimSpace(req.Description), nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterPosting(ctx, txn, previous)
	return txn, nil
}

// post appends one ledger row and moves the balance under a row lock. It
// must run inside a transaction.
func (s *Service) post(ctx context.Context, tx *gorm.DB, residentID snowflake.ID, txType domain.TransactionType, amount decimal.Decimal, description string, invoiceID *snowflake.ID) (*domain.Transaction, decimal.Decimal, error) {
	now := s.clock.Now().UTC()
	if err := s.repo.EnsureWallet(ctx, tx, residentID, now); err != nil {
		return nil, decimal.Zero, fmt.Errorf("ensure wallet: %w", err)
	}
	wallet, err := s.repo.FindWalletForUpdate(ctx, tx, residentID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if wallet == nil {
		return nil, decimal.Zero, fmt.Errorf("wallet %s missing after ensure", residentID)
	}

	txn := &domain.Transaction{
		ID:          s.genID.Generate(),
		ResidentID:  residentID,
		Type:        txType,
		Amount:      amount,
		Description: description,
		InvoiceID:   invoiceID,
		CreatedAt:   now,
	}
	txn.BalanceAfter = wallet.Balance.Add(txn.Signed())

	if err := s.repo.UpdateBalance(ctx, tx, residentID, txn.BalanceAfter, now); err != nil {
		return nil, decimal.Zero, fmt.Errorf("update balance: %w", err)
	}
	if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
		return nil, decimal.Zero, fmt.Errorf("insert wallet transaction: %w", err)
	}
	return txn, wallet.Balance, nil
}

func (s *Service) afterPosting(ctx context.Context, txn *domain.Transaction, previous decimal.Decimal) {
	s.metrics.RecordWalletPosting(string(txn.Type))
	s.log.Info("wallet.posted",
		zap.String("resident_id", txn.ResidentID.String()),
		zap.String("type", string(txn.Type)),
		zap.String("amount", txn.Amount.String()),
		zap.String("balance_after", txn.BalanceAfter.String()),
	)
	newValues := map[string]any{
		"balance":        txn.BalanceAfter.String(),
		"transaction_id": txn.ID.String(),
		"type":           string(txn.Type),
		"amount":         txn.Amount.String(),
	}
	if txn.InvoiceID != nil {
		newValues["invoice_id"] = txn.InvoiceID.String()
	}
	s.emitAudit(ctx, "wallet."+string(txn.Type), txn.ResidentID.String(),
		map[string]any{"balance": previous.String()}, newValues)
}

func (s *Service) Transactions(ctx context.Context, req domain.ListTransactionsRequest) (domain.ListTransactionsResponse, error) {
	if req.ResidentID == 0 {
		return domain.ListTransactionsResponse{}, domain.ErrInvalidResident
	}

	filter := domain.TransactionFilter{
		ResidentID: req.ResidentID,
		Limit:      pagination.NormalizePageSize(req.PageSize),
	}
	if strings.TrimSpace(req.PageToken) != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListTransactionsResponse{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return domain.ListTransactionsResponse{}, domain.ErrInvalidPageToken
		}
		cursorID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListTransactionsResponse{}, domain.ErrInvalidPageToken
		}
		filter.CursorAt = &createdAt
		filter.CursorID = cursorID
	}

	items, err := s.repo.ListTransactions(ctx, s.db, filter)
	if err != nil {
		return domain.ListTransactionsResponse{}, err
	}
	pageInfo := pagination.BuildCursorPageInfo(items, int32(filter.Limit), func(item *domain.Transaction) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > filter.Limit {
		items = items[:filter.Limit]
	}

	txns := make([]domain.Transaction, 0, len(items))
	for _, item := range items {
		if item != nil {
			txns = append(txns, *item)
		}
	}
	resp := domain.ListTransactionsResponse{Transactions: txns}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// SettleInvoice pays an invoice from the resident's wallet. The debit and the
// payment commit together.
func (s *Service) SettleInvoice(ctx context.Context, req domain.SettleRequest) (*domain.SettleResult, error) {
	if req.ResidentID == 0 {
		return nil, domain.ErrInvalidResident
	}
	if req.InvoiceID == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	if req.Amount != nil && !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if _, err := s.authz.Authorize(ctx, authorization.ActionWalletSettle); err != nil {
		return nil, err
	}

	var (
		result   *domain.SettleResult
		previous decimal.Decimal
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.invoiceRepo.FindByIDForUpdate(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if invoice.ResidentID != req.ResidentID {
			return domain.ErrInvoiceResidentMismatch
		}

		amount := invoice.Remaining()
		if req.Amount != nil {
			amount = *req.Amount
		}
		if err := invoicedomain.ApplyPayment(invoice, amount); err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		invoice.UpdatedAt = now
		if err := s.invoiceRepo.UpdateAmounts(ctx, tx, invoice, now); err != nil {
			return fmt.Errorf("apply payment: %w", err)
		}

		invoiceID := invoice.ID
		txn, before, err := s.post(ctx, tx, req.ResidentID, domain.TransactionTypeDebit, amount,
			"Settlement of "+invoice.InvoiceNumber, &invoiceID)
		if err != nil {
			return err
		}
		previous = before

		wallet, err := s.repo.FindWallet(ctx, tx, req.ResidentID)
		if err != nil {
			return err
		}
		result = &domain.SettleResult{Wallet: *wallet, Transaction: *txn, Invoice: *invoice}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterPosting(ctx, &result.Transaction, previous)
	if s.auditSvc != nil {
		err := s.auditSvc.RecordAudit(ctx, "invoice.payment_applied", "invoice", result.Invoice.ID.String(), nil, map[string]any{
			"amount":      result.Transaction.Amount.String(),
			"amount_paid": result.Invoice.AmountPaid.String(),
			"status":      string(result.Invoice.Status),
			"source":      "wallet",
		})
		if err != nil {
			s.log.Warn("wallet.audit_failed", zap.Error(err))
		}
	}
	return result, nil
}

// Reconcile checks the stored balance against the sum of the ledger.
func (s *Service) Reconcile(ctx context.Context, residentID snowflake.ID) (*domain.Reconciliation, error) {
	if residentID == 0 {
		return nil, domain.ErrInvalidResident
	}
	balance := decimal.Zero
	wallet, err := s.repo.FindWallet(ctx, s.db, residentID)
	if err != nil {
		return nil, err
	}
	if wallet != nil {
		balance = wallet.Balance
	}
	sum, err := s.repo.SumTransactions(ctx, s.db, residentID)
	if err != nil {
		return nil, err
	}
	out := &domain.Reconciliation{
		ResidentID: residentID,
		Balance:    balance,
		LedgerSum:  sum,
		Consistent: balance.Equal(sum),
	}
	if !out.Consistent {
		s.log.Error("wallet.ledger_mismatch",
			zap.String("resident_id", residentID.String()),
			zap.String("balance", balance.String()),
			zap.String("ledger_sum", sum.String()),
		)
	}
	return out, nil
}

func (s *Service) emitAudit(ctx context.Context, action, residentID string, oldValues, newValues map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.RecordAudit(ctx, action, "wallet", residentID, oldValues, newValues); err != nil {
		s.log.Warn("wallet.audit_failed", zap.String("action", action), zap.Error(err))
	}
}

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
	"github.com/smallbiznis/estatebill/pkg/db"
	"github.com/smallbiznis/estatebill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     invoicedomain.Repository
	Authz    authorization.Service
	AuditSvc auditdomain.Service     `optional:"true"`
	Clock    clock.Clock             `optional:"true"`
	Metrics  *metrics.BillingMetrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	repo     invoicedomain.Repository
	authz    authorization.Service
	auditSvc auditdomain.Service
	clock    clock.Clock
	metrics  *metrics.BillingMetrics
}

func NewService(p ServiceParam) invoicedomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("invoice.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		authz:    p.Authz,
		auditSvc: p.AuditSvc,
		clock:    clk,
		metrics:  p.Metrics,
	}
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	if id == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *Service) GetWithParent(ctx context.Context, id snowflake.ID) (*invoicedomain.InvoiceDetail, error) {
	invoice, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, s.db, invoice.ID)
	if err != nil {
		return nil, err
	}

	detail := &invoicedomain.InvoiceDetail{Invoice: *invoice, Items: items}
	if invoice.ParentInvoiceID != nil {
		parent, err := s.repo.FindByID(ctx, s.db, *invoice.ParentInvoiceID)
		if err != nil {
			return nil, err
		}
		detail.Parent = parent
	}
	return detail, nil
}

func (s *Service) ListByResident(ctx context.Context, req invoicedomain.ListByResidentRequest) (invoicedomain.ListInvoiceResponse, error) {
	if req.ResidentID == 0 {
		return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidResident
	}

	filter := invoicedomain.ListFilter{
		ResidentID: req.ResidentID,
		Status:     req.Status,
		Limit:      pagination.NormalizePageSize(req.PageSize),
	}
	if strings.TrimSpace(req.PageToken) != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
		}
		cursorID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
		}
		filter.CursorAt = &createdAt
		filter.CursorID = cursorID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}
	pageInfo := pagination.BuildCursorPageInfo(items, int32(filter.Limit), func(item *invoicedomain.Invoice) string {
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

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item != nil {
			invoices = append(invoices, *item)
		}
	}
	resp := invoicedomain.ListInvoiceResponse{Invoices: invoices}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// Outstanding sums the remaining balance of the chain the invoice belongs to.
func (s *Service) Outstanding(ctx context.Context, id snowflake.ID) (*invoicedomain.Outstanding, error) {
	invoice, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rootID := invoice.RootID()
	chain, err := s.repo.ListChain(ctx, s.db, rootID)
	if err != nil {
		return nil, err
	}

	balance := invoicedomain.BalanceOf(chain)
	return &invoicedomain.Outstanding{
		RootInvoiceID: rootID,
		Original:      balance.Original,
		Debits:        balance.Debits,
		Credits:       balance.Credits,
		Total:         balance.Total,
		Invoices:      chain,
	}, nil
}

// CreateCorrection issues a credit or debit note against the chain root of
// the target invoice. The original invoice row is never modified.
func (s *Service) CreateCorrection(ctx context.Context, req invoicedomain.CreateCorrectionRequest) (*invoicedomain.Invoice, error) {
	if req.InvoiceID == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	if !req.Type.Valid() {
		return nil, invoicedomain.ErrInvalidCorrectionType
	}
	total, err := correctionTotal(req.Items)
	if err != nil {
		return nil, err
	}
	if _, err := s.authz.Authorize(ctx, authorization.ActionInvoiceCorrect); err != nil {
		return nil, err
	}

	var (
		correction *invoicedomain.Invoice
		root       *invoicedomain.Invoice
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := s.repo.FindByID(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if target == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if target.IsVoid() {
			return invoicedomain.ErrCorrectionOfVoidInvoice
		}

		rootID := target.ID
		if target.ParentInvoiceID != nil {
			rootID = *target.ParentInvoiceID
		}
		root, err = s.repo.FindByIDForUpdate(ctx, tx, rootID)
		if err != nil {
			return err
		}
		if root == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if root.IsVoid() {
			return invoicedomain.ErrCorrectionOfVoidInvoice
		}

		existing, err := s.repo.CountCorrections(ctx, tx, root.ID, req.Type)
		if err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		kind := req.Type
		parentID := root.ID
		correction = &invoicedomain.Invoice{
			ID:               s.genID.Generate(),
			ResidentID:       root.ResidentID,
			HouseID:          root.HouseID,
			BillingProfileID: root.BillingProfileID,
			InvoiceNumber:    invoicedomain.CorrectionNumber(root.InvoiceNumber, kind, existing+1),
			AmountDue:        total,
			AmountPaid:       decimal.Zero,
			Status:           invoicedomain.InvoiceStatusUnpaid,
			InvoiceType:      invoicedomain.InvoiceType(kind),
			DueDate:          root.DueDate,
			PeriodStart:      root.PeriodStart,
			PeriodEnd:        root.PeriodEnd,
			RateSnapshot: datatypes.NewJSONType(invoicedomain.RateSnapshot{
				Reason:      strings.TrimSpace(req.Reason),
				GeneratedAt: now,
			}),
			IsCorrection:    true,
			CorrectionType:  &kind,
			ParentInvoiceID: &parentID,
			Metadata: datatypes.JSONMap{
				invoicedomain.MetaCorrectionReason: strings.TrimSpace(req.Reason),
			},
			CreatedAt: now,
			UpdatedAt: now,
		}

		items := make([]invoicedomain.InvoiceItem, 0, len(req.Items))
		for i, line := range req.Items {
			items = append(items, invoicedomain.InvoiceItem{
				ID:          s.genID.Generate(),
				InvoiceID:   correction.ID,
				Position:    i,
				Description: strings.TrimSpace(line.Description),
				Amount:      line.Amount,
				CreatedAt:   now,
			})
		}

		if _, err := s.repo.InsertWithItems(ctx, tx, correction, items); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return invoicedomain.ErrConcurrentCorrection
			}
			return fmt.Errorf("insert correction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordCorrection(string(req.Type))
	s.emitAudit(ctx, "invoice.correction_created", correction, nil, map[string]any{
		"parent_invoice_id": root.ID.String(),
		"correction_type":   string(req.Type),
		"amount":            total.String(),
		"reason":            strings.TrimSpace(req.Reason),
	})
	return correction, nil
}

// ApplyLateFee adds a penalty to an open invoice once.
func (s *Service) ApplyLateFee(ctx context.Context, id snowflake.ID, amount decimal.Decimal) (*invoicedomain.Invoice, error) {
	if id == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	if !amount.IsPositive() {
		return nil, invoicedomain.ErrInvalidAmount
	}
	if _, err := s.authz.Authorize(ctx, authorization.ActionInvoiceLateFee); err != nil {
		return nil, err
	}

	var (
		updated  *invoicedomain.Invoice
		previous invoicedomain.Invoice
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		switch {
		case invoice.IsVoid():
			return invoicedomain.ErrInvoiceVoid
		case invoice.IsCreditNote():
			return invoicedomain.ErrLateFeeNotAllowed
		case invoice.Status == invoicedomain.InvoiceStatusPaid:
			return invoicedomain.ErrInvoiceAlreadyPaid
		}
		fee, err := invoice.LateFee()
		if err != nil {
			return err
		}
		if fee.Applied {
			return invoicedomain.ErrLateFeeAlreadyApplied
		}

		previous = *invoice
		now := s.clock.Now().UTC()
		invoice.AmountDue = invoice.AmountDue.Add(amount)
		invoice.Status = invoicedomain.StatusFor(invoice.AmountDue, invoice.AmountPaid)
		invoice.Metadata = invoice.WithMetadata(map[string]any{
			invoicedomain.MetaLateFeeApplied:   true,
			invoicedomain.MetaLateFeeAmount:    amount.String(),
			invoicedomain.MetaLateFeeAppliedAt: invoicedomain.FormatTime(now),
		})
		invoice.UpdatedAt = now
		if err := s.repo.UpdateAmounts(ctx, tx, invoice, now); err != nil {
			return fmt.Errorf("apply late fee: %w", err)
		}
		updated = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordLateFee()
	s.emitAudit(ctx, "invoice.late_fee_applied", updated, map[string]any{
		"amount_due": previous.AmountDue.String(),
	}, map[string]any{
		"amount_due":      updated.AmountDue.String(),
		"late_fee_amount": amount.String(),
	})
	return updated, nil
}

// VoidInvoice moves an invoice without payments to the terminal void status.
func (s *Service) VoidInvoice(ctx context.Context, id snowflake.ID, reason string) (*invoicedomain.Invoice, error) {
	if id == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	if _, err := s.authz.Authorize(ctx, authorization.ActionInvoiceVoid); err != nil {
		return nil, err
	}

	var (
		voided         *invoicedomain.Invoice
		previousStatus invoicedomain.InvoiceStatus
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if invoice.IsVoid() {
			return invoicedomain.ErrInvoiceVoid
		}
		if invoice.AmountPaid.IsPositive() {
			return invoicedomain.ErrInvoiceHasPayments
		}

		var corrections []invoicedomain.Invoice
		if !invoice.IsCorrection {
			chain, err := s.repo.ListChain(ctx, tx, invoice.ID)
			if err != nil {
				return err
			}
			for _, c := range chain {
				if !c.IsCorrection || c.IsVoid() {
					continue
				}
				if c.AmountPaid.IsPositive() {
					return invoicedomain.ErrInvoiceHasPayments
				}
				corrections = append(corrections, c)
			}
		}

		now := s.clock.Now().UTC()
		previousStatus = invoice.Status
		if err := s.voidOne(ctx, tx, invoice, reason, now); err != nil {
			return err
		}
		// Corrections never outlive their root.
		for i := range corrections {
			if err := s.voidOne(ctx, tx, &corrections[i], reason, now); err != nil {
				return err
			}
		}
		invoice.Status = invoicedomain.InvoiceStatusVoid
		invoice.UpdatedAt = now
		voided = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, "invoice.voided", voided, map[string]any{
		"status": string(previousStatus),
	}, map[string]any{
		"status": string(invoicedomain.InvoiceStatusVoid),
		"reason": strings.TrimSpace(reason),
	})
	return voided, nil
}

func (s *Service) voidOne(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, reason string, now time.Time) error {
	ok, err := s.repo.UpdateStatus(ctx, tx, invoice.ID, invoice.Status, invoicedomain.InvoiceStatusVoid, now)
	if err != nil {
		return err
	}
	if !ok {
		return invoicedomain.ErrInvoiceVoid
	}
	invoice.Metadata = invoice.WithMetadata(map[string]any{
		invoicedomain.MetaVoidReason: strings.TrimSpace(reason),
	})
	return s.repo.UpdateMetadata(ctx, tx, invoice.ID, invoice.Metadata, now)
}

func (s *Service) emitAudit(ctx context.Context, action string, invoice *invoicedomain.Invoice, oldValues, newValues map[string]any) {
	if s.auditSvc == nil || invoice == nil {
		return
	}
	values := map[string]any{
		"invoice_number": invoice.InvoiceNumber,
		"resident_id":    invoice.ResidentID.String(),
		"house_id":       invoice.HouseID.String(),
	}
	for key, value := range newValues {
		values[key] = value
	}
	if err := s.auditSvc.RecordAudit(ctx, action, "invoice", invoice.ID.String(), oldValues, values); err != nil {
		s.log.Warn("invoice.audit_failed", zap.String("action", action), zap.Error(err))
	}
}

func correctionTotal(items []invoicedomain.CorrectionItem) (decimal.Decimal, error) {
	if len(items) == 0 {
		return decimal.Zero, invoicedomain.ErrInvalidCorrectionItems
	}
	total := decimal.Zero
	for _, item := range items {
		if strings.TrimSpace(item.Description) == "" || !item.Amount.IsPositive() {
			return decimal.Zero, invoicedomain.ErrInvalidCorrectionItems
		}
		total = total.Add(item.Amount)
	}
	return total, nil
}

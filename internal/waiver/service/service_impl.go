package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/estatebill/internal/audit/domain"
	"github.com/smallbiznis/estatebill/internal/authorization"
	"github.com/smallbiznis/estatebill/internal/clock"
	invoicedomain "github.com/smallbiznis/estatebill/internal/invoice/domain"
	"github.com/smallbiznis/estatebill/internal/notification"
	"github.com/smallbiznis/estatebill/internal/observability/metrics"
	"github.com/smallbiznis/estatebill/internal/waiver/domain"
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
	AuditSvc    auditdomain.Service      `optional:"true"`
	Notifier    *notification.Dispatcher `optional:"true"`
	Clock       clock.Clock              `optional:"true"`
	Metrics     *metrics.BillingMetrics  `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	invoiceRepo invoicedomain.Repository
	authz       authorization.Service
	auditSvc    auditdomain.Service
	notifier    *notification.Dispatcher
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
		log:         p.Log.Named("waiver.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		authz:       p.Authz,
		auditSvc:    p.AuditSvc,
		notifier:    p.Notifier,
		clock:       clk,
		metrics:     p.Metrics,
	}
}

// Request files a pending waiver against the unwaived part of an invoice's
// late fee.
func (s *Service) Request(ctx context.Context, req domain.CreateRequest) (*domain.LateFeeWaiver, error) {
	if req.InvoiceID == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	if !req.Type.Valid() {
		return nil, domain.ErrInvalidWaiverType
	}
	requestedBy, err := s.authz.Authorize(ctx, authorization.ActionWaiverRequest)
	if err != nil {
		return nil, err
	}

	var waiver *domain.LateFeeWaiver
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The invoice row lock serialises concurrent requests for one invoice.
		invoice, err := s.invoiceRepo.FindByIDForUpdate(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if invoice.IsVoid() {
			return invoicedomain.ErrInvoiceVoid
		}
		fee, err := invoice.LateFee()
		if err != nil {
			return err
		}
		outstanding := fee.Outstanding()
		if !outstanding.IsPositive() {
			return domain.ErrNoLateFeeApplied
		}

		pending, err := s.repo.FindPendingByInvoice(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}
		if pending != nil {
			return domain.ErrDuplicatePendingWaiver
		}

		var amount *decimal.Decimal
		if req.Type == domain.WaiverTypePartial {
			if req.WaiverAmount == nil || !req.WaiverAmount.IsPositive() || !req.WaiverAmount.LessThan(outstanding) {
				return domain.ErrInvalidWaiverAmount
			}
			value := *req.WaiverAmount
			amount = &value
		}

		waiver = &domain.LateFeeWaiver{
			ID:              s.genID.Generate(),
			InvoiceID:       invoice.ID,
			ResidentID:      invoice.ResidentID,
			RequestedBy:     requestedBy,
			WaiverType:      req.Type,
			WaiverAmount:    amount,
			OriginalLateFee: outstanding,
			Reason:          strings.TrimSpace(req.Reason),
			Status:          domain.StatusPending,
			CreatedAt:       s.clock.Now().UTC(),
		}
		return s.repo.Insert(ctx, tx, waiver)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("waiver.requested",
		zap.String("waiver_id", waiver.ID.String()),
		zap.String("invoice_id", waiver.InvoiceID.String()),
		zap.String("waiver_type", string(waiver.WaiverType)),
	)
	s.emitAudit(ctx, "waiver.requested", waiver, nil, map[string]any{
		"status":            string(waiver.Status),
		"waiver_type":       string(waiver.WaiverType),
		"original_late_fee": waiver.OriginalLateFee.String(),
		"waived_amount":     waiver.WaivedAmount().String(),
	})
	return waiver, nil
}

// Approve reduces the invoice by the waived amount and stamps the waiver
// onto its metadata. A second decision fails with ErrAlreadyProcessed.
func (s *Service) Approve(ctx context.Context, req domain.ReviewRequest) (*domain.LateFeeWaiver, error) {
	if req.WaiverID == 0 {
		return nil, domain.ErrInvalidWaiverID
	}
	reviewer, err := s.authz.Authorize(ctx, authorization.ActionWaiverApprove)
	if err != nil {
		return nil, err
	}

	var (
		approved *domain.LateFeeWaiver
		before   decimal.Decimal
		after    decimal.Decimal
		invoice  *invoicedomain.Invoice
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		waiver, err := s.repo.FindByID(ctx, tx, req.WaiverID)
		if err != nil {
			return err
		}
		if waiver == nil {
			return domain.ErrWaiverNotFound
		}
		if waiver.Status != domain.StatusPending {
			return domain.ErrAlreadyProcessed
		}

		invoice, err = s.invoiceRepo.FindByIDForUpdate(ctx, tx, waiver.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if invoice.IsVoid() {
			return invoicedomain.ErrInvoiceVoid
		}
		fee, err := invoice.LateFee()
		if err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		notes := optionalNotes(req.Notes)
		ok, err := s.repo.Review(ctx, tx, waiver.ID, domain.StatusApproved, reviewer, notes, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyProcessed
		}

		waived := waiver.WaivedAmount()
		before = invoice.AmountDue
		removed := invoicedomain.ReduceAmountDue(invoice, waived)
		after = invoice.AmountDue

		totalWaived := fee.Waived.Add(waived)
		remaining := fee.Amount.Sub(totalWaived)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		invoice.Metadata = invoice.WithMetadata(map[string]any{
			invoicedomain.MetaLateFeeWaived:    true,
			invoicedomain.MetaWaivedAmount:     totalWaived.String(),
			invoicedomain.MetaWaivedAt:         invoicedomain.FormatTime(now),
			invoicedomain.MetaWaiverType:       string(waiver.WaiverType),
			invoicedomain.MetaLateFeeRemaining: remaining.String(),
		})
		if err := s.invoiceRepo.UpdateAmounts(ctx, tx, invoice, now); err != nil {
			return fmt.Errorf("apply waiver: %w", err)
		}
		if !removed.Equal(waived) {
			s.log.Warn("waiver.amount_floored",
				zap.String("waiver_id", waiver.ID.String()),
				zap.String("waived", waived.String()),
				zap.String("removed", removed.String()),
			)
		}

		waiver.Status = domain.StatusApproved
		waiver.ReviewedBy = &reviewer
		waiver.ReviewNotes = notes
		waiver.ReviewedAt = &now
		approved = waiver
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordWaiverDecision(string(domain.StatusApproved))
	s.log.Info("waiver.approved",
		zap.String("waiver_id", approved.ID.String()),
		zap.String("invoice_id", approved.InvoiceID.String()),
		zap.String("amount_due_before", before.String()),
		zap.String("amount_due_after", after.String()),
	)
	s.emitAudit(ctx, "waiver.approved", approved, map[string]any{
		"status":     string(domain.StatusPending),
		"amount_due": before.String(),
	}, map[string]any{
		"status":        string(domain.StatusApproved),
		"amount_due":    after.String(),
		"waived_amount": approved.WaivedAmount().String(),
	})
	s.notify(ctx, approved, invoice)
	return approved, nil
}

// Reject closes a pending waiver without touching the invoice.
func (s *Service) Reject(ctx context.Context, req domain.ReviewRequest) (*domain.LateFeeWaiver, error) {
	if req.WaiverID == 0 {
		return nil, domain.ErrInvalidWaiverID
	}
	reviewer, err := s.authz.Authorize(ctx, authorization.ActionWaiverReject)
	if err != nil {
		return nil, err
	}

	var rejected *domain.LateFeeWaiver
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		waiver, err := s.repo.FindByID(ctx, tx, req.WaiverID)
		if err != nil {
			return err
		}
		if waiver == nil {
			return domain.ErrWaiverNotFound
		}

		now := s.clock.Now().UTC()
		notes := optionalNotes(req.Notes)
		ok, err := s.repo.Review(ctx, tx, waiver.ID, domain.StatusRejected, reviewer, notes, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyProcessed
		}
		waiver.Status = domain.StatusRejected
		waiver.ReviewedBy = &reviewer
		waiver.ReviewNotes = notes
		waiver.ReviewedAt = &now
		rejected = waiver
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordWaiverDecision(string(domain.StatusRejected))
	s.log.Info("waiver.rejected", zap.String("waiver_id", rejected.ID.String()))
	s.emitAudit(ctx, "waiver.rejected", rejected, map[string]any{
		"status": string(domain.StatusPending),
	}, map[string]any{
		"status": string(domain.StatusRejected),
	})
	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, rejected.InvoiceID)
	if err != nil {
		s.log.Warn("waiver.notify_lookup_failed", zap.Error(err))
	}
	s.notify(ctx, rejected, invoice)
	return rejected, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.LateFeeWaiver, error) {
	if id == 0 {
		return nil, domain.ErrInvalidWaiverID
	}
	waiver, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if waiver == nil {
		return nil, domain.ErrWaiverNotFound
	}
	return waiver, nil
}

func (s *Service) ListByInvoice(ctx context.Context, invoiceID snowflake.ID) ([]domain.LateFeeWaiver, error) {
	if invoiceID == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	return s.repo.ListByInvoice(ctx, s.db, invoiceID)
}

func (s *Service) notify(ctx context.Context, waiver *domain.LateFeeWaiver, invoice *invoicedomain.Invoice) {
	if s.notifier == nil || waiver == nil {
		return
	}
	data := map[string]any{
		"decision":      string(waiver.Status),
		"waiver_id":     waiver.ID.String(),
		"waived_amount": waiver.WaivedAmount().String(),
	}
	if invoice != nil {
		data["invoice_number"] = invoice.InvoiceNumber
	}
	if waiver.ReviewNotes != nil {
		data["notes"] = *waiver.ReviewNotes
	}
	s.notifier.Dispatch(ctx, notification.Event{
		Kind:       notification.KindWaiverDecision,
		ResidentID: waiver.ResidentID,
		Data:       data,
		OccurredAt: s.clock.Now().UTC(),
	})
}

func (s *Service) emitAudit(ctx context.Context, action string, waiver *domain.LateFeeWaiver, oldValues, newValues map[string]any) {
	if s.auditSvc == nil || waiver == nil {
		return
	}
	values := map[string]any{
		"invoice_id":  waiver.InvoiceID.String(),
		"resident_id": waiver.ResidentID.String(),
	}
	for key, value := range newValues {
		values[key] = value
	}
	if err := s.auditSvc.RecordAudit(ctx, action, "late_fee_waiver", waiver.ID.String(), oldValues, values); err != nil {
		s.log.Warn("waiver.audit_failed", zap.String("action", action), zap.Error(err))
	}
}

func optionalNotes(notes string) *string {
	trimmed := strings.TrimSpace(notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

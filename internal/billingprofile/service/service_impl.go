package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	approvaldomain "github.com/smallbiznis/estatebill/internal/approval/domain"
	auditdomain "github.com/smallbiznis/estatebill/internal/audit/domain"
	"github.com/smallbiznis/estatebill/internal/authorization"
	"github.com/smallbiznis/estatebill/internal/billingprofile/domain"
	"github.com/smallbiznis/estatebill/internal/clock"
	invoicedomain "github.com/smallbiznis/estatebill/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Repo         domain.Repository
	InvoiceRepo  invoicedomain.Repository
	Approvals    approvaldomain.Service
	ApprovalRepo approvaldomain.Repository
	Authz        authorization.Service
	AuditSvc     auditdomain.Service `optional:"true"`
	Clock        clock.Clock         `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	repo         domain.Repository
	invoiceRepo  invoicedomain.Repository
	approvals    approvaldomain.Service
	approvalRepo approvaldomain.Repository
	authz        authorization.Service
	auditSvc     auditdomain.Service
	clock        clock.Clock
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("billingprofile.service"),
		repo:         p.Repo,
		invoiceRepo:  p.InvoiceRepo,
		approvals:    p.Approvals,
		approvalRepo: p.ApprovalRepo,
		authz:        p.Authz,
		auditSvc:     p.AuditSvc,
		clock:        clk,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Resolved, error) {
	if id == 0 {
		return nil, domain.ErrInvalidProfileID
	}
	profile, err := s.repo.FindProfile(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, domain.ErrProfileNotFound
	}
	items, err := s.repo.ListItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &domain.Resolved{Profile: *profile, Items: items}, nil
}

// UpdateEffectiveDate moves a profile's effective date. Moving it back over
// already invoiced periods is held for approval unless the caller may bypass
// review.
func (s *Service) UpdateEffectiveDate(ctx context.Context, req domain.UpdateEffectiveDateRequest) (*domain.GovernedResult, error) {
	if req.ProfileID == 0 {
		return nil, domain.ErrInvalidProfileID
	}
	if req.EffectiveDate.IsZero() {
		return nil, domain.ErrInvalidEffectiveDate
	}
	if _, err := s.authz.Authorize(ctx, authorization.ActionBillingProfileUpdate); err != nil {
		return nil, err
	}

	target := truncateDay(req.EffectiveDate)
	profile, err := s.repo.FindProfile(ctx, s.db, req.ProfileID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, domain.ErrProfileNotFound
	}

	current := truncateDay(profile.EffectiveDate)
	if !target.Before(current) {
		if err := s.apply(ctx, profile.ID, target); err != nil {
			return nil, err
		}
		s.emitAudit(ctx, profile.ID, current, target, map[string]any{"impact_count": 0})
		return &domain.GovernedResult{Applied: true}, nil
	}

	impact, err := s.invoiceRepo.CountByProfileFrom(ctx, s.db, profile.ID, target)
	if err != nil {
		return nil, fmt.Errorf("count affected invoices: %w", err)
	}
	if impact == 0 {
		if err := s.apply(ctx, profile.ID, target); err != nil {
			return nil, err
		}
		s.emitAudit(ctx, profile.ID, current, target, map[string]any{"impact_count": 0})
		return &domain.GovernedResult{Applied: true}, nil
	}

	if s.approvals.CanAutoApprove(ctx) {
		if err := s.apply(ctx, profile.ID, target); err != nil {
			return nil, err
		}
		s.log.Info("billing_profile.effective_date.auto_approved",
			zap.String("billing_profile_id", profile.ID.String()),
			zap.Int64("impact_count", impact),
		)
		s.emitAudit(ctx, profile.ID, current, target, map[string]any{
			"impact_count":  impact,
			"auto_approved": true,
		})
		return &domain.GovernedResult{Applied: true, AutoApproved: true, ImpactCount: impact}, nil
	}

	request, err := s.approvals.CreateRequest(ctx, approvaldomain.CreateRequest{
		Kind:           approvaldomain.KindBillingProfileEffectiveDate,
		EntityType:     "billing_profile",
		EntityID:       profile.ID.String(),
		CurrentValues:  map[string]any{"effective_date": current.Format(dateLayout)},
		ProposedChange: map[string]any{"effective_date": target.Format(dateLayout)},
		ImpactCount:    impact,
		Reason:         req.Reason,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("billing_profile.effective_date.pending_approval",
		zap.String("billing_profile_id", profile.ID.String()),
		zap.String("request_id", request.ID.String()),
		zap.Int64("impact_count", impact),
	)
	requestID := request.ID
	return &domain.GovernedResult{PendingApproval: true, RequestID: &requestID, ImpactCount: impact}, nil
}

// ApplyApprovedChange writes the proposed date of an approved request. A
// request is applied at most once.
func (s *Service) ApplyApprovedChange(ctx context.Context, requestID snowflake.ID) (*domain.BillingProfile, error) {
	if _, err := s.authz.Authorize(ctx, authorization.ActionBillingProfileUpdate); err != nil {
		return nil, err
	}
	request, err := s.approvals.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Kind != approvaldomain.KindBillingProfileEffectiveDate {
		return nil, approvaldomain.ErrUnsupportedKind
	}
	if request.Status != approvaldomain.StatusApproved {
		return nil, approvaldomain.ErrNotApproved
	}
	profileID, err := snowflake.ParseString(request.EntityID)
	if err != nil {
		return nil, domain.ErrInvalidApprovedChange
	}
	raw, _ := request.ProposedChange["effective_date"].(string)
	target, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, domain.ErrInvalidApprovedChange
	}

	var (
		updated  *domain.BillingProfile
		previous time.Time
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		ok, err := s.approvalRepo.MarkApplied(ctx, tx, request.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return approvaldomain.ErrAlreadyApplied
		}
		profile, err := s.repo.FindProfileForUpdate(ctx, tx, profileID)
		if err != nil {
			return err
		}
		if profile == nil {
			return domain.ErrProfileNotFound
		}
		previous = profile.EffectiveDate
		if err := s.repo.UpdateEffectiveDate(ctx, tx, profile.ID, target, now); err != nil {
			return fmt.Errorf("update effective date: %w", err)
		}
		profile.EffectiveDate = target
		profile.UpdatedAt = now
		updated = profile
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, updated.ID, previous, target, map[string]any{
		"impact_count":        request.ImpactCount,
		"approval_request_id": request.ID.String(),
	})
	return updated, nil
}

func (s *Service) apply(ctx context.Context, id snowflake.ID, target time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := s.repo.FindProfileForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if profile == nil {
			return domain.ErrProfileNotFound
		}
		if err := s.repo.UpdateEffectiveDate(ctx, tx, id, target, s.clock.Now().UTC()); err != nil {
			return fmt.Errorf("update effective date: %w", err)
		}
		return nil
	})
}

func (s *Service) emitAudit(ctx context.Context, id snowflake.ID, previous, target time.Time, extra map[string]any) {
	if s.auditSvc == nil {
		return
	}
	newValues := map[string]any{"effective_date": target.Format(dateLayout)}
	for key, value := range extra {
		newValues[key] = value
	}
	err := s.auditSvc.RecordAudit(ctx, "billing_profile.effective_date_updated", "billing_profile", id.String(),
		map[string]any{"effective_date": previous.Format(dateLayout)}, newValues)
	if err != nil {
		s.log.Warn("billing_profile.audit_failed", zap.Error(err))
	}
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/estatebill/internal/audit/domain"
	"github.com/smallbiznis/estatebill/internal/authorization"
	billingprofiledomain "github.com/smallbiznis/estatebill/internal/billingprofile/domain"
	"github.com/smallbiznis/estatebill/internal/clock"
	"github.com/smallbiznis/estatebill/internal/config"
	"github.com/smallbiznis/estatebill/internal/eligibility"
	estatedomain "github.com/smallbiznis/estatebill/internal/estate/domain"
	"github.com/smallbiznis/estatebill/internal/generation/domain"
	invoicedomain "github.com/smallbiznis/estatebill/internal/invoice/domain"
	"github.com/smallbiznis/estatebill/internal/observability/logger"
	"github.com/smallbiznis/estatebill/internal/observability/metrics"
	"github.com/smallbiznis/estatebill/internal/ratelimit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultLockTTL = 10 * time.Minute
	lockKeyPrefix  = "estatebill:generation:"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	InvoiceRepo invoicedomain.Repository
	Resolver    billingprofiledomain.Resolver
	Estate      estatedomain.Service
	Authz       authorization.Service
	Config      config.Config           `optional:"true"`
	Locker      *ratelimit.Locker       `optional:"true"`
	AuditSvc    auditdomain.Service     `optional:"true"`
	Clock       clock.Clock             `optional:"true"`
	Metrics     *metrics.BillingMetrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	repo        domain.Repository
	invoiceRepo invoicedomain.Repository
	resolver    billingprofiledomain.Resolver
	estate      estatedomain.Service
	authz       authorization.Service
	locker      *ratelimit.Locker
	lockTTL     time.Duration
	auditSvc    auditdomain.Service
	clock       clock.Clock
	metrics     *metrics.BillingMetrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	ttl := time.Duration(p.Config.Redis.GenerationLockTTL) * time.Second
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("generation.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		resolver:    p.Resolver,
		estate:      p.Estate,
		authz:       p.Authz,
		locker:      p.Locker,
		lockTTL:     ttl,
		auditSvc:    p.AuditSvc,
		clock:       clk,
		metrics:     p.Metrics,
	}
}

// houseOutcome is exactly one of created, skipped or failed.
type houseOutcome struct {
	generated *domain.GeneratedInvoice
	skip      *domain.HouseSkip
	err       *domain.HouseError
}

// Run generates one invoice per billable house for the month holding
// opts.Target. Per-house problems are recorded on the run log; only
// authorization, option, lock and house listing failures abort the run.
func (s *Service) Run(ctx context.Context, opts domain.Options) (*domain.RunSummary, error) {
	if _, err := s.authz.Authorize(ctx, authorization.ActionGenerationRun); err != nil {
		return nil, err
	}
	if opts.TriggerType == "" {
		opts.TriggerType = domain.TriggerManual
	}
	if !opts.TriggerType.Valid() {
		return nil, domain.ErrInvalidTrigger
	}
	if opts.Target.IsZero() {
		return nil, domain.ErrInvalidTarget
	}
	period, err := eligibility.PeriodFor(opts.Target, opts.DueWindowDays)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("estatebill/generation").Start(ctx, "generation.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("generation.target_period", period.Key()),
		attribute.String("generation.trigger", string(opts.TriggerType)),
	)

	var summary *domain.RunSummary
	err = s.locker.WithLock(ctx, lockKeyPrefix+period.Key(), s.lockTTL, func(ctx context.Context) error {
		var runErr error
		summary, runErr = s.run(ctx, opts, period)
		return runErr
	})
	if errors.Is(err, ratelimit.ErrLockHeld) {
		err = domain.ErrRunInProgress
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if summary == nil {
			s.metrics.RecordGenerationRun(string(opts.TriggerType), "failed", 0)
		}
		return summary, err
	}

	span.SetAttributes(
		attribute.Int("generation.generated", summary.Log.GeneratedCount),
		attribute.Int("generation.skipped", summary.Log.SkippedCount),
		attribute.Int("generation.errors", summary.Log.ErrorCount),
	)
	return summary, nil
}

func (s *Service) run(ctx context.Context, opts domain.Options, period eligibility.Period) (*domain.RunSummary, error) {
	started := s.clock.Now()
	log := logger.WithContext(ctx, s.log).With(
		zap.String("target_period", period.Key()),
		zap.String("trigger_type", string(opts.TriggerType)),
	)

	houses, err := s.estate.ListActiveHouses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active houses: %w", err)
	}

	logID := s.genID.Generate()
	summary := &domain.RunSummary{Generated: []domain.GeneratedInvoice{}}
	skips := []domain.HouseSkip{}
	failures := []domain.HouseError{}

	for _, house := range houses {
		outcome := s.processHouse(ctx, house, opts, period, logID)
		switch {
		case outcome.generated != nil:
			summary.Generated = append(summary.Generated, *outcome.generated)
			s.metrics.RecordHouseOutcome(metrics.OutcomeCreated, "")
			log.Info("invoice.generation.created",
				zap.String("house_id", outcome.generated.HouseID),
				zap.String("invoice_number", outcome.generated.InvoiceNumber),
				zap.String("amount_due", outcome.generated.AmountDue.String()),
			)
		case outcome.skip != nil:
			skips = append(skips, *outcome.skip)
			s.metrics.RecordHouseOutcome(metrics.OutcomeSkipped, outcome.skip.Reason)
			log.Info("invoice.generation.skipped",
				zap.String("house_id", outcome.skip.HouseID),
				zap.String("house_number", outcome.skip.HouseNumber),
				zap.String("reason", outcome.skip.Reason),
			)
		case outcome.err != nil:
			failures = append(failures, *outcome.err)
			s.metrics.RecordHouseOutcome(metrics.OutcomeFailed, "write_error")
			log.Error("invoice.generation.failed",
				zap.String("house_id", outcome.err.HouseID),
				zap.String("house_number", outcome.err.HouseNumber),
				zap.String("error", outcome.err.Error),
			)
		}
	}

	finished := s.clock.Now()
	duration := finished.Sub(started)
	summary.Log = domain.GenerationLog{
		ID:             logID,
		TriggerType:    opts.TriggerType,
		TargetPeriod:   period.Key(),
		GeneratedCount: len(summary.Generated),
		SkippedCount:   len(skips),
		ErrorCount:     len(failures),
		SkipReasons:    datatypes.NewJSONType(skips),
		Errors:         datatypes.NewJSONType(failures),
		DurationMS:     duration.Milliseconds(),
		CreatedAt:      finished.UTC(),
	}

	status := "completed"
	if len(failures) > 0 {
		status = "completed_with_errors"
	}
	s.metrics.RecordGenerationRun(string(opts.TriggerType), status, duration)

	if err := s.repo.InsertLog(ctx, s.db, &summary.Log); err != nil {
		log.Error("invoice.generation.log_failed", zap.Error(err))
		return summary, fmt.Errorf("persist generation log: %w", err)
	}

	log.Info("invoice.generation.completed",
		zap.String("run_id", logID.String()),
		zap.Int("generated", summary.Log.GeneratedCount),
		zap.Int("skipped", summary.Log.SkippedCount),
		zap.Int("errors", summary.Log.ErrorCount),
		zap.Int64("duration_ms", summary.Log.DurationMS),
	)
	s.emitAudit(ctx, "generation.run", "generation_run", logID.String(), map[string]any{
		"target_period":   summary.Log.TargetPeriod,
		"trigger_type":    string(opts.TriggerType),
		"generated_count": summary.Log.GeneratedCount,
		"skipped_count":   summary.Log.SkippedCount,
		"error_count":     summary.Log.ErrorCount,
	})
	return summary, nil
}

func (s *Service) processHouse(ctx context.Context, house estatedomain.House, opts domain.Options, period eligibility.Period, runID snowflake.ID) houseOutcome {
	skip := func(reason, detail string) houseOutcome {
		return houseOutcome{skip: &domain.HouseSkip{
			HouseID:     house.ID.String(),
			HouseNumber: house.HouseNumber,
			Reason:      reason,
			Detail:      detail,
		}}
	}
	fail := func(err error) houseOutcome {
		return houseOutcome{err: &domain.HouseError{
			HouseID:     house.ID.String(),
			HouseNumber: house.HouseNumber,
			Error:       err.Error(),
		}}
	}

	resolved, err := s.resolver.Resolve(ctx, house)
	if err != nil {
		reason := skipReasonFor(err)
		detail := ""
		if reason == domain.SkipProfileFetchError {
			detail = err.Error()
		}
		return skip(reason, detail)
	}

	links, err := s.estate.ListActiveLinks(ctx, house.ID)
	if err != nil {
		return fail(fmt.Errorf("list resident links: %w", err))
	}
	link, err := eligibility.SelectBillableResident(links, opts.BillVacantHouses)
	if err != nil {
		return skip(domain.SkipNoBillableResident, "")
	}

	exists, err := s.invoiceRepo.ExistsForPeriod(ctx, s.db, house.ID, link.ResidentID, period.Start)
	if err != nil {
		return fail(fmt.Errorf("check existing invoice: %w", err))
	}
	if exists {
		return skip(domain.SkipDuplicatePeriod, "")
	}

	total := resolved.Total()
	if !total.IsPositive() {
		return skip(domain.SkipZeroAmount, "")
	}

	now := s.clock.Now().UTC()
	invoice, items := s.buildInvoice(house, link.ResidentID, resolved, period, opts, runID, now)

	var inserted bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inserted, err = s.invoiceRepo.InsertWithItems(ctx, tx, invoice, items)
		return err
	})
	if err != nil {
		return fail(fmt.Errorf("insert invoice %s: %w", invoice.InvoiceNumber, err))
	}
	if !inserted {
		// lost a race against a concurrent run
		return skip(domain.SkipDuplicatePeriod, "")
	}

	s.emitAudit(ctx, "invoice.generated", "invoice", invoice.ID.String(), map[string]any{
		"invoice_number": invoice.InvoiceNumber,
		"resident_id":    invoice.ResidentID.String(),
		"house_id":       invoice.HouseID.String(),
		"amount_due":     invoice.AmountDue.String(),
		"generation_run": runID.String(),
	})
	return houseOutcome{generated: &domain.GeneratedInvoice{
		HouseID:       house.ID.String(),
		HouseNumber:   house.HouseNumber,
		InvoiceID:     invoice.ID.String(),
		InvoiceNumber: invoice.InvoiceNumber,
		ResidentID:    invoice.ResidentID.String(),
		AmountDue:     invoice.AmountDue,
	}}
}

func (s *Service) buildInvoice(house estatedomain.House, residentID snowflake.ID, resolved *billingprofiledomain.Resolved, period eligibility.Period, opts domain.Options, runID snowflake.ID, now time.Time) (*invoicedomain.Invoice, []invoicedomain.InvoiceItem) {
	profile := resolved.Profile
	snapshot := invoicedomain.RateSnapshot{
		ProfileID:   profile.ID.String(),
		ProfileName: profile.Name,
		Items:       make([]invoicedomain.SnapshotItem, 0, len(resolved.Items)),
		GeneratedAt: now,
	}

	invoiceType := invoicedomain.InvoiceTypeServiceCharge
	if profile.IsDevelopmentLevy {
		invoiceType = invoicedomain.InvoiceTypeDevelopmentLevy
	}

	profileID := profile.ID
	invoice := &invoicedomain.Invoice{
		ID:               s.genID.Generate(),
		ResidentID:       residentID,
		HouseID:          house.ID,
		BillingProfileID: &profileID,
		InvoiceNumber:    invoicedomain.InvoiceNumber(period.Start, house.HouseNumber),
		AmountDue:        resolved.Total(),
		Status:           invoicedomain.InvoiceStatusUnpaid,
		InvoiceType:      invoiceType,
		DueDate:          period.DueDate,
		PeriodStart:      period.Start,
		PeriodEnd:        period.End,
		Metadata: datatypes.JSONMap{
			"generation_run": runID.String(),
			"trigger_type":   string(opts.TriggerType),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	items := make([]invoicedomain.InvoiceItem, 0, len(resolved.Items))
	for i, item := range resolved.Items {
		snapshot.Items = append(snapshot.Items, invoicedomain.SnapshotItem{
			Name:        item.Name,
			Amount:      item.Amount,
			IsMandatory: item.IsMandatory,
		})
		items = append(items, invoicedomain.InvoiceItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoice.ID,
			Position:    i,
			Description: item.Name,
			Amount:      item.Amount,
			CreatedAt:   now,
		})
	}
	invoice.RateSnapshot = datatypes.NewJSONType(snapshot)
	return invoice, items
}

func (s *Service) ListLogs(ctx context.Context, req domain.ListLogsRequest) ([]domain.GenerationLog, error) {
	return s.repo.ListLogs(ctx, s.db, req)
}

func skipReasonFor(err error) string {
	switch {
	case errors.Is(err, billingprofiledomain.ErrNoProfileAssigned):
		return domain.SkipNoProfileAssigned
	case errors.Is(err, billingprofiledomain.ErrProfileNotFound):
		return domain.SkipProfileNotFound
	case errors.Is(err, billingprofiledomain.ErrProfileTargetMismatch):
		return domain.SkipProfileTargetMismatch
	default:
		return domain.SkipProfileFetchError
	}
}

func (s *Service) emitAudit(ctx context.Context, action, entityType, entityID string, values map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.RecordAudit(ctx, action, entityType, entityID, nil, values); err != nil {
		s.log.Warn("generation.audit_failed", zap.String("action", action), zap.Error(err))
	}
}

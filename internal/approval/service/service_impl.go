package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/estatebill/internal/approval/domain"
	auditdomain "github.com/smallbiznis/estatebill/internal/audit/domain"
	"github.com/smallbiznis/estatebill/internal/auditcontext"
	"github.com/smallbiznis/estatebill/internal/authorization"
	"github.com/smallbiznis/estatebill/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Authz    authorization.Service
	AuditSvc auditdomain.Service `optional:"true"`
	Clock    clock.Clock         `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	authz    authorization.Service
	auditSvc auditdomain.Service
	clock    clock.Clock
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("approval.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		authz:    p.Authz,
		auditSvc: p.AuditSvc,
		clock:    clk,
	}
}

// CreateRequest files a pending request. Only one pending request may exist
// per kind and entity.
func (s *Service) CreateRequest(ctx context.Context, req domain.CreateRequest) (*domain.Request, error) {
	kind := strings.TrimSpace(req.Kind)
	entityType := strings.TrimSpace(req.EntityType)
	entityID := strings.TrimSpace(req.EntityID)
	if kind == "" || entityType == "" || entityID == "" || len(req.ProposedChange) == 0 {
		return nil, domain.ErrInvalidRequest
	}

	var requestedBy *string
	if subject := auditcontext.ActorSubject(ctx); subject != "" {
		requestedBy = &subject
	}

	var request *domain.Request
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindPending(ctx, tx, kind, entityID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrPendingRequest
		}
		request = &domain.Request{
			ID:             s.genID.Generate(),
			Kind:           kind,
			EntityType:     entityType,
			EntityID:       entityID,
			CurrentValues:  datatypes.JSONMap(req.CurrentValues),
			ProposedChange: datatypes.JSONMap(req.ProposedChange),
			ImpactCount:    req.ImpactCount,
			Reason:         strings.TrimSpace(req.Reason),
			Status:         domain.StatusPending,
			RequestedBy:    requestedBy,
			CreatedAt:      s.clock.Now().UTC(),
		}
		return s.repo.Insert(ctx, tx, request)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("approval.requested",
		zap.String("request_id", request.ID.String()),
		zap.String("kind", kind),
		zap.String("entity_id", entityID),
		zap.Int64("impact_count", req.ImpactCount),
	)
	s.emitAudit(ctx, "approval.requested", request, nil, map[string]any{
		"kind":            kind,
		"proposed_change": req.ProposedChange,
		"impact_count":    req.ImpactCount,
	})
	return request, nil
}

// Decide approves or rejects a pending request. Applying an approved change
// is left to the owner of the entity.
func (s *Service) Decide(ctx context.Context, decision domain.Decision) (*domain.Request, error) {
	if decision.RequestID == 0 {
		return nil, domain.ErrInvalidRequestID
	}
	actorID, err := s.authz.Authorize(ctx, authorization.ActionApprovalDecide)
	if err != nil {
		return nil, err
	}

	status := domain.StatusRejected
	if decision.Approve {
		status = domain.StatusApproved
	}
	var notes *string
	if trimmed := strings.TrimSpace(decision.Notes); trimmed != "" {
		notes = &trimmed
	}

	var decided *domain.Request
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		ok, err := s.repo.Decide(ctx, tx, decision.RequestID, status, actorID, notes, now)
		if err != nil {
			return err
		}
		request, err := s.repo.FindByID(ctx, tx, decision.RequestID)
		if err != nil {
			return err
		}
		if request == nil {
			return domain.ErrRequestNotFound
		}
		if !ok {
			return domain.ErrAlreadyDecided
		}
		decided = request
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("approval.decided",
		zap.String("request_id", decided.ID.String()),
		zap.String("status", string(decided.Status)),
		zap.String("decided_by", actorID),
	)
	s.emitAudit(ctx, "approval."+string(status), decided, map[string]any{
		"status": string(domain.StatusPending),
	}, map[string]any{
		"status": string(status),
		"notes":  strings.TrimSpace(decision.Notes),
	})
	return decided, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Request, error) {
	if id == 0 {
		return nil, domain.ErrInvalidRequestID
	}
	request, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, domain.ErrRequestNotFound
	}
	return request, nil
}

func (s *Service) CanAutoApprove(ctx context.Context) bool {
	_, err := s.authz.Authorize(ctx, authorization.ActionApprovalBypass)
	return err == nil
}

func (s *Service) emitAudit(ctx context.Context, action string, request *domain.Request, oldValues, newValues map[string]any) {
	if s.auditSvc == nil || request == nil {
		return
	}
	values := map[string]any{
		"entity_type": request.EntityType,
		"entity_id":   request.EntityID,
	}
	for key, value := range newValues {
		values[key] = value
	}
	if err := s.auditSvc.RecordAudit(ctx, action, "approval_request", request.ID.String(), oldValues, values); err != nil {
		s.log.Warn("approval.audit_failed", zap.String("action", action), zap.Error(err))
	}
}

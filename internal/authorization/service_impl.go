package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/estatebill/internal/audit/domain"
	"github.com/smallbiznis/estatebill/internal/auditcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer persists policies through the gorm adapter (casbin_rule table).
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// NewMemoryEnforcer keeps policies in memory only. Used by tests.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, action string) (string, error) {
	action = strings.TrimSpace(action)
	object, _, ok := strings.Cut(action, ".")
	if action == "" || !ok || object == "" {
		return "", ErrInvalidAction
	}

	subject := auditcontext.ActorSubject(ctx)
	if subject == "" {
		return "", ErrInvalidActor
	}
	_, actorID := auditcontext.ActorFromContext(ctx)

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return "", err
	}
	if !allowed {
		s.log.Warn("authorization.denied",
			zap.String("subject", subject),
			zap.String("action", action),
		)
		s.audit(ctx, "authorization.denied", subject, object, action)
		return "", ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.audit(ctx, "authorization.granted", subject, object, action)
	}
	if subject == auditcontext.ActorTypeSystem {
		return auditcontext.ActorTypeSystem, nil
	}
	return actorID, nil
}

func (s *ServiceImpl) AssignRole(ctx context.Context, subject string, role string) error {
	subject = strings.TrimSpace(subject)
	if _, _, ok := auditcontext.ParseActor(subject); !ok {
		return ErrInvalidActor
	}
	switch role {
	case RoleAdmin, RoleFinance, RoleResident, RoleSystem:
	default:
		return ErrInvalidRole
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, role)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	if _, err := s.enforcer.AddGroupingPolicy(subject, role); err != nil {
		return err
	}
	s.audit(ctx, "authorization.role_assigned", subject, "role", role)
	return nil
}

func (s *ServiceImpl) audit(ctx context.Context, auditAction, subject, object, action string) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.RecordAudit(ctx, auditAction, "authorization", subject, nil, map[string]any{
		"object": object,
		"action": action,
	})
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionApprovalBypass, ActionInvoiceVoid, ActionWalletDebit:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{RoleAdmin, "*", "*"},

		{RoleFinance, ObjectGeneration, ActionGenerationRun},
		{RoleFinance, ObjectInvoice, "*"},
		{RoleFinance, ObjectWaiver, ActionWaiverApprove},
		{RoleFinance, ObjectWaiver, ActionWaiverReject},
		{RoleFinance, ObjectWallet, "*"},
		{RoleFinance, ObjectClearance, ActionClearanceView},
		{RoleFinance, ObjectBillingProfile, ActionBillingProfileUpdate},
		{RoleFinance, ObjectApproval, ActionApprovalDecide},

		{RoleResident, ObjectInvoice, ActionInvoiceView},
		{RoleResident, ObjectWaiver, ActionWaiverRequest},
		{RoleResident, ObjectWallet, ActionWalletView},
		{RoleResident, ObjectWallet, ActionWalletCredit},
		{RoleResident, ObjectWallet, ActionWalletSettle},
		{RoleResident, ObjectClearance, ActionClearanceView},

		// Scheduled triggers and the manual generation entry point.
		{RoleSystem, ObjectGeneration, ActionGenerationRun},
		{RoleSystem, ObjectInvoice, ActionInvoiceView},
		{RoleSystem, ObjectInvoice, ActionInvoiceLateFee},
		{RoleSystem, ObjectWallet, "*"},
		{RoleSystem, ObjectClearance, ActionClearanceView},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	has, err := enforcer.HasGroupingPolicy(auditcontext.ActorTypeSystem, RoleSystem)
	if err != nil {
		return err
	}
	if !has {
		if _, err := enforcer.AddGroupingPolicy(auditcontext.ActorTypeSystem, RoleSystem); err != nil {
			return err
		}
	}
	return nil
}

package authorization

import (
	"context"
	"errors"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidAction = errors.New("invalid_action")
	ErrInvalidRole   = errors.New("invalid_role")
)

const (
	ObjectGeneration     = "generation"
	ObjectInvoice        = "invoice"
	ObjectWaiver         = "waiver"
	ObjectWallet         = "wallet"
	ObjectClearance      = "clearance"
	ObjectBillingProfile = "billing_profile"
	ObjectApproval       = "approval"
	ObjectAuditLog       = "audit_log"
)

const (
	ActionGenerationRun = "generation.run"

	ActionInvoiceView    = "invoice.view"
	ActionInvoiceCorrect = "invoice.correct"
	ActionInvoiceLateFee = "invoice.late_fee"
	ActionInvoiceVoid    = "invoice.void"

	ActionWaiverRequest = "waiver.request"
	ActionWaiverApprove = "waiver.approve"
	ActionWaiverReject  = "waiver.reject"

	ActionWalletView   = "wallet.view"
	ActionWalletCredit = "wallet.credit"
	ActionWalletDebit  = "wallet.debit"
	ActionWalletSettle = "wallet.settle"

	ActionClearanceView = "clearance.view"

	ActionBillingProfileUpdate = "billing_profile.update"

	ActionApprovalDecide = "approval.decide"
	ActionApprovalBypass = "approval.bypass"

	ActionAuditLogView = "audit_log.view"
)

const (
	RoleAdmin    = "role:admin"
	RoleFinance  = "role:finance"
	RoleResident = "role:resident"
	RoleSystem   = "role:system"
)

// Service checks the acting context against the policy store.
type Service interface {
	// Authorize resolves the actor from ctx and returns its id when allowed.
	Authorize(ctx context.Context, action string) (string, error)
	AssignRole(ctx context.Context, subject string, role string) error
}

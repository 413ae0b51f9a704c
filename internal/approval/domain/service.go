package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidRequest   = errors.New("invalid_approval_request")
	ErrRequestNotFound  = errors.New("approval_request_not_found")
	ErrAlreadyDecided   = errors.New("approval_already_decided")
	ErrNotApproved      = errors.New("approval_not_approved")
	ErrAlreadyApplied   = errors.New("approval_already_applied")
	ErrPendingRequest   = errors.New("approval_request_pending")
	ErrUnsupportedKind  = errors.New("unsupported_approval_kind")
	ErrInvalidRequestID = errors.New("invalid_approval_request_id")
)

type CreateRequest struct {
	Kind           string
	EntityType     string
	EntityID       string
	CurrentValues  map[string]any
	ProposedChange map[string]any
	ImpactCount    int64
	Reason         string
}

type Decision struct {
	RequestID snowflake.ID
	Approve   bool
	Notes     string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, request *Request) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Request, error)
	FindPending(ctx context.Context, db *gorm.DB, kind, entityID string) (*Request, error)
	// Decide moves a pending request to status. It reports false when the
	// request was no longer pending.
	Decide(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, decidedBy string, notes *string, now time.Time) (bool, error)
	// MarkApplied stamps applied_at on an approved request exactly once.
	MarkApplied(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
}

type Service interface {
	CreateRequest(ctx context.Context, req CreateRequest) (*Request, error)
	Decide(ctx context.Context, decision Decision) (*Request, error)
	Get(ctx context.Context, id snowflake.ID) (*Request, error)
	// CanAutoApprove reports whether the acting context may skip review.
	CanAutoApprove(ctx context.Context) bool
}

// Package authztest builds in-memory policy services for tests.
package authztest

import (
	"context"
	"testing"

	"github.com/smallbiznis/estatebill/internal/auditcontext"
	"github.com/smallbiznis/estatebill/internal/authorization"
	"go.uber.org/zap"
)

// NewService returns an authorization service over the seeded policies.
func NewService(t testing.TB) authorization.Service {
	t.Helper()
	enforcer, err := authorization.NewMemoryEnforcer()
	if err != nil {
		t.Fatalf("enforcer: %v", err)
	}
	return authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer})
}

// As assigns role to user:<userID> and returns a context acting as that user.
func As(t testing.TB, svc authorization.Service, userID string, role string) context.Context {
	t.Helper()
	ctx := context.Background()
	if err := svc.AssignRole(ctx, auditcontext.ActorTypeUser+":"+userID, role); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	return auditcontext.WithActor(ctx, auditcontext.ActorTypeUser, userID)
}

// System returns a context acting as the system actor.
func System() context.Context {
	return auditcontext.WithActor(context.Background(), auditcontext.ActorTypeSystem, "")
}

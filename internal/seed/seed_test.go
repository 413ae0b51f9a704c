package seed

import (
	"context"
	"testing"

	"github.com/smallbiznis/estatebill/internal/auditcontext"
	"github.com/smallbiznis/estatebill/internal/authorization"
	"github.com/smallbiznis/estatebill/internal/authorization/authztest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureAdmins(t *testing.T) {
	authz := authztest.NewService(t)
	ctx := context.Background()

	require.NoError(t, EnsureAdmins(ctx, authz, []string{"user:1"}, nil))
	// second boot
	require.NoError(t, EnsureAdmins(ctx, authz, []string{"user:1"}, nil))

	asAdmin := auditcontext.WithActor(ctx, auditcontext.ActorTypeUser, "1")
	actorID, err := authz.Authorize(asAdmin, authorization.ActionApprovalBypass)
	require.NoError(t, err)
	assert.Equal(t, "1", actorID)

	asOther := auditcontext.WithActor(ctx, auditcontext.ActorTypeUser, "2")
	_, err = authz.Authorize(asOther, authorization.ActionApprovalBypass)
	assert.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestEnsureAdminsRejectsMalformedSubject(t *testing.T) {
	authz := authztest.NewService(t)

	err := EnsureAdmins(context.Background(), authz, []string{"admin"}, nil)
	assert.ErrorIs(t, err, authorization.ErrInvalidActor)
}

package auditcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorSubject(t *testing.T) {
	ctx := WithActor(context.Background(), ActorTypeUser, "42")
	assert.Equal(t, "user:42", ActorSubject(ctx))

	ctx = WithActor(context.Background(), ActorTypeSystem, "")
	assert.Equal(t, "system", ActorSubject(ctx))

	assert.Equal(t, "", ActorSubject(context.Background()))
	assert.Equal(t, "", ActorSubject(WithActor(context.Background(), ActorTypeUser, "")))
}

func TestParseActor(t *testing.T) {
	actorType, actorID, ok := ParseActor("user:7")
	assert.True(t, ok)
	assert.Equal(t, "user", actorType)
	assert.Equal(t, "7", actorID)

	actorType, _, ok = ParseActor("system")
	assert.True(t, ok)
	assert.Equal(t, ActorTypeSystem, actorType)

	_, _, ok = ParseActor("user:")
	assert.False(t, ok)
	_, _, ok = ParseActor("nobody")
	assert.False(t, ok)
}

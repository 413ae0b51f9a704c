package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/estatebill/internal/auditcontext"
)

// HeaderActor carries the acting identity as "user:<id>" or "system". It is
// set by the gateway that owns sessions.
const HeaderActor = "X-Actor"

// ActorContext attaches the caller identity to the request context. A
// missing header leaves the request anonymous; authorization rejects it.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderActor))
		if raw == "" {
			c.Next()
			return
		}

		actorType, actorID, ok := auditcontext.ParseActor(raw)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := auditcontext.WithActor(c.Request.Context(), actorType, actorID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

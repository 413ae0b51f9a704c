// Package auditcontext carries actor and request identity through a request.
package auditcontext

import (
	"context"
	"strings"
)

type actorKey struct{}
type requestIDKey struct{}
type ipAddressKey struct{}
type userAgentKey struct{}

type actor struct {
	actorType string
	actorID   string
}

const (
	ActorTypeSystem = "system"
	ActorTypeUser   = "user"
)

// WithActor records who is acting. The actor string used by authorization
// is "<type>:<id>" for users and "system" for the system actor.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, actor{
		actorType: strings.TrimSpace(actorType),
		actorID:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	if value, ok := ctx.Value(actorKey{}).(actor); ok {
		return value.actorType, value.actorID
	}
	return "", ""
}

// ActorSubject returns the subject string used for policy checks.
func ActorSubject(ctx context.Context) string {
	actorType, actorID := ActorFromContext(ctx)
	switch {
	case actorType == "":
		return ""
	case actorType == ActorTypeSystem:
		return ActorTypeSystem
	case actorID == "":
		return ""
	default:
		return actorType + ":" + actorID
	}
}

// ParseActor splits "user:123" or "system" into type and id.
func ParseActor(raw string) (string, string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == ActorTypeSystem {
		return ActorTypeSystem, "", true
	}
	actorType, actorID, found := strings.Cut(raw, ":")
	actorType = strings.TrimSpace(actorType)
	actorID = strings.TrimSpace(actorID)
	if !found || actorType == "" || actorID == "" {
		return "", "", false
	}
	return actorType, actorID, true
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

func WithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipAddressKey{}, strings.TrimSpace(ip))
}

func IPAddressFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(ipAddressKey{}).(string)
	return value
}

func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentKey{}, strings.TrimSpace(userAgent))
}

func UserAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(userAgentKey{}).(string)
	return value
}

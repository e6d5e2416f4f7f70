package context

import (
	"context"
)

// Actor identifies who performs an operation. Identity resolution itself
// (sessions, tokens) happens outside the core; request handlers put the
// resolved actor on the context and the core stamps it onto ledger entries,
// documents and correction records.
type Actor struct {
	UserID    string
	CompanyID string
}

type actorContextKey struct{}

// WithActor adds Actor to context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor returns Actor from context.
func GetActor(ctx context.Context) *Actor {
	if v, ok := ctx.Value(actorContextKey{}).(*Actor); ok {
		return v
	}
	return nil
}

// GetActorID returns the acting user ID or "system" when absent
// (maintenance commands, background refresh).
func GetActorID(ctx context.Context) string {
	if a := GetActor(ctx); a != nil && a.UserID != "" {
		return a.UserID
	}
	return "system"
}

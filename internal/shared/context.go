package shared

import "context"

// DefaultActor is recorded when a request carries no operator identity.
const DefaultActor = "system"

type actorContextKey struct{}

// ContextWithActor stores the operator name in context.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the operator name from context.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey{}).(string)
	if actor == "" {
		return DefaultActor
	}
	return actor
}

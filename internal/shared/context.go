package shared

import "context"

// Actor identifies the authenticated caller as asserted by the upstream auth
// proxy. Authentication itself happens outside this service.
type Actor struct {
	TenantID string
	UserID   string
	Role     string
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The zero Actor means the
// request carried no identity headers.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}

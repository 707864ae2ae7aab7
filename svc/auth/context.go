package auth

import (
	"context"

	"lclpaste/pkg/domain"
)

type contextKey string

const actorKey contextKey = "actor"

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the actor resolved by the middleware, or Anonymous
// when none was set.
func ActorFrom(ctx context.Context) domain.Actor {
	if a, ok := ctx.Value(actorKey).(domain.Actor); ok {
		return a
	}
	return domain.Anonymous
}

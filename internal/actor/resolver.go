// Package actor resolves who initiated a mutation. Every ledger write is
// attributed to an actor id or to nil when attribution is impossible;
// resolution never blocks a write.
package actor

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey struct{}

// WithActor returns a context carrying the candidate actor identifier.
// Handlers set this from the authenticated principal before calling into
// the ledger or the workflows.
func WithActor(ctx context.Context, candidate string) context.Context {
	return context.WithValue(ctx, contextKey{}, candidate)
}

// Resolver validates actor candidates. Invalid candidates degrade to nil
// with a warning; they never fail the enclosing operation.
type Resolver struct {
	logger        *zap.Logger
	systemActorID string
}

// NewResolver creates a Resolver. systemActorID identifies the unattended
// process used for webhook-originated writes; it may be empty.
func NewResolver(logger *zap.Logger, systemActorID string) *Resolver {
	return &Resolver{logger: logger, systemActorID: systemActorID}
}

// FromContext returns the validated actor id carried by ctx, or nil.
func (r *Resolver) FromContext(ctx context.Context) *uuid.UUID {
	candidate, ok := ctx.Value(contextKey{}).(string)
	if !ok || candidate == "" {
		return nil
	}
	id, err := uuid.Parse(candidate)
	if err != nil {
		r.logger.Warn("rejected actor candidate, attributing to nil",
			zap.String("candidate", candidate),
			zap.Error(err))
		return nil
	}
	return &id
}

// System returns the configured system actor id, or nil when it is absent
// or not a valid UUID.
func (r *Resolver) System() *uuid.UUID {
	if r.systemActorID == "" {
		return nil
	}
	id, err := uuid.Parse(r.systemActorID)
	if err != nil {
		r.logger.Warn("configured system actor id is not a valid UUID",
			zap.String("candidate", r.systemActorID),
			zap.Error(err))
		return nil
	}
	return &id
}

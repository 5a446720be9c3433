package actor

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFromContextValidCandidate(t *testing.T) {
	r := NewResolver(zap.NewNop(), "")
	id := uuid.New()

	ctx := WithActor(context.Background(), id.String())
	got := r.FromContext(ctx)
	require.NotNil(t, got)
	assert.Equal(t, id, *got)
}

func TestFromContextDegradesToNil(t *testing.T) {
	r := NewResolver(zap.NewNop(), "")

	assert.Nil(t, r.FromContext(context.Background()), "no candidate")
	assert.Nil(t, r.FromContext(WithActor(context.Background(), "")), "empty candidate")
	assert.Nil(t, r.FromContext(WithActor(context.Background(), "not-a-uuid")), "invalid candidate")
}

func TestSystemActor(t *testing.T) {
	id := uuid.New()
	r := NewResolver(zap.NewNop(), id.String())
	got := r.System()
	require.NotNil(t, got)
	assert.Equal(t, id, *got)

	assert.Nil(t, NewResolver(zap.NewNop(), "").System())
	assert.Nil(t, NewResolver(zap.NewNop(), "garbage").System())
}

package presence

import (
	"context"
	"testing"

	"github.com/dkeye/Call/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Add(ctx, "r1", "b"))
	require.NoError(t, m.Add(ctx, "r1", "a"))
	require.NoError(t, m.Add(ctx, "r2", "c"))

	got, err := m.List(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []domain.ParticipantID{"a", "b"}, got)

	require.NoError(t, m.Remove(ctx, "r1", "a"))
	require.NoError(t, m.Remove(ctx, "r1", "b"))
	got, err = m.List(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "room:r1:participants", key("r1"))
}

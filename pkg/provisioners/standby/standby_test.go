package standby

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
)

func TestStandbyLifecycle(t *testing.T) {
	ctx := context.Background()
	p, err := New(&Settings{Workers: []string{"w1:3000", "w2:3000"}})
	require.NoError(t, err)

	addr, ok := p.Provision(ctx)
	require.True(t, ok)
	assert.Equal(t, models.WorkerAddr("w1:3000"), addr)

	addr, ok = p.Provision(ctx)
	require.True(t, ok)
	assert.Equal(t, models.WorkerAddr("w2:3000"), addr)

	_, ok = p.Provision(ctx)
	assert.False(t, ok)

	require.NoError(t, p.Terminate(ctx, "w1:3000"))
	require.Error(t, p.Terminate(ctx, "w1:3000"))

	addr, ok = p.Provision(ctx)
	require.True(t, ok)
	assert.Equal(t, models.WorkerAddr("w1:3000"), addr)
}

func TestStandbyRejectsDuplicates(t *testing.T) {
	_, err := New(&Settings{Workers: []string{"w1:3000", "w1:3000"}})
	require.Error(t, err)
}

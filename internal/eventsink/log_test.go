package eventsink

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
)

func TestLogSinkWritesEvents(t *testing.T) {
	buf := &bytes.Buffer{}
	sink := NewLogSink(zerolog.New(buf))

	n, err := sink.Publish(context.Background(), []models.PoolEvent{
		models.NewPoolEvent(models.TaskRegistered, "w1:3000", "t1"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), `"type":"task_registered"`)
	assert.Contains(t, buf.String(), `"worker":"w1:3000"`)
	assert.Contains(t, buf.String(), `"component":"pool-events"`)
}

package notifyer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
)

func TestNotifyDropsWhenFull(t *testing.T) {
	n := NewNotifier(1)

	require.True(t, n.NotifyPoolEvent(models.NewPoolEvent(models.WorkerProvisioned, "w1", "")))
	assert.False(t, n.NotifyPoolEvent(models.NewPoolEvent(models.WorkerProvisioned, "w2", "")))

	ev := <-n.GetEventChan()
	assert.Equal(t, models.WorkerAddr("w1"), ev.Worker)
}

func TestNotifyAfterClose(t *testing.T) {
	n := NewNotifier(4)
	n.Close()
	n.Close()

	assert.False(t, n.NotifyPoolEvent(models.NewPoolEvent(models.TaskRemoved, "w1", "t1")))
}

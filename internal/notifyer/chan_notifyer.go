package notifyer

import (
	"sync/atomic"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
)

type ChanNotifyer struct {
	eventChan chan models.PoolEvent
	closed    atomic.Bool
	close     chan struct{}
}

func NewNotifier(buf int) *ChanNotifyer {
	return &ChanNotifyer{
		eventChan: make(chan models.PoolEvent, buf),
		closed:    atomic.Bool{},
		close:     make(chan struct{}),
	}
}

// NotifyPoolEvent never blocks the dispatch path: when the buffer is full the event is dropped.
func (n *ChanNotifyer) NotifyPoolEvent(event models.PoolEvent) bool {
	if n.closed.Load() {
		return false
	}
	select {
	case n.eventChan <- event:
		return true
	case <-n.close:
		return false
	default:
		return false
	}
}

func (n *ChanNotifyer) GetEventChan() <-chan models.PoolEvent {
	return n.eventChan
}

func (n *ChanNotifyer) Close() {
	if !n.closed.CompareAndSwap(false, true) {
		return
	}
	close(n.close)
}

// Nop discards every event.
type Nop struct{}

func (Nop) NotifyPoolEvent(models.PoolEvent) bool {
	return true
}

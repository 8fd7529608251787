package sender

import (
	"context"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
)

type EventSink interface {
	// Publish returns how many leading events were delivered.
	Publish(ctx context.Context, events []models.PoolEvent) (int, error)
}

func NewSenderController(
	eventCh <-chan models.PoolEvent,
	sink EventSink,
	retryTimeout time.Duration,
) *SenderControler {
	return &SenderControler{
		events:       eventCh,
		sink:         sink,
		retryTimeout: retryTimeout,
		unsentGuard:  &sync.Mutex{},
		unsent:       make([]models.PoolEvent, 0),
	}
}

type SenderControler struct {
	events       <-chan models.PoolEvent
	retryTimeout time.Duration
	sink         EventSink
	unsentGuard  *sync.Mutex
	unsent       []models.PoolEvent
}

func (c *SenderControler) Run(ctx context.Context) {
	ttlTicker := time.NewTicker(c.retryTimeout)
	defer ttlTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ttlTicker.C:
			c.sendUnsentEvents(ctx)
		case event, ok := <-c.events:
			if !ok {
				return
			}
			c.send(ctx, event)
		}
	}
}

func (c *SenderControler) send(ctx context.Context, event models.PoolEvent) {
	err := retry.Do(
		func() error {
			_, err := c.sink.Publish(ctx, []models.PoolEvent{event})
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		log.Error().Err(err).Msgf("failed to publish pool event %s, put it into unsent queue", event)
		c.unsentGuard.Lock()
		c.unsent = append(c.unsent, event)
		c.unsentGuard.Unlock()
	}
}

func (c *SenderControler) sendUnsentEvents(ctx context.Context) {
	c.unsentGuard.Lock()
	defer c.unsentGuard.Unlock()

	if len(c.unsent) == 0 {
		return
	}
	done, err := c.sink.Publish(ctx, c.unsent)
	if err != nil {
		log.Warn().Err(err).Msgf("failed to publish unsent events: done %d", done)

		newUnsent := make([]models.PoolEvent, len(c.unsent)-done)
		copy(newUnsent, c.unsent[done:])
		c.unsent = newUnsent
		return
	}
	c.unsent = c.unsent[:0]
}

// Flush publishes events still buffered in the channel along with the unsent queue.
// It is meant for shutdown, when Run may already be gone.
func (c *SenderControler) Flush(ctx context.Context) {
	buffered := make([]models.PoolEvent, 0)
drain:
	for {
		select {
		case event, ok := <-c.events:
			if !ok {
				break drain
			}
			buffered = append(buffered, event)
		default:
			break drain
		}
	}

	c.unsentGuard.Lock()
	c.unsent = append(c.unsent, buffered...)
	c.unsentGuard.Unlock()

	c.sendUnsentEvents(ctx)
	if left := c.UnsentCount(); left != 0 {
		log.Error().Msgf("%d pool events were not published before shutdown", left)
	}
}

func (c *SenderControler) UnsentCount() int {
	c.unsentGuard.Lock()
	defer c.unsentGuard.Unlock()

	return len(c.unsent)
}

package drain

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/metrics"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
)

type Registry interface {
	Workers() []models.WorkerAddr
	RemoveWorker(addr models.WorkerAddr) ([]models.TaskID, bool)
}

type Terminator interface {
	Terminate(ctx context.Context, addr models.WorkerAddr) error
}

type Reclaimer interface {
	Stop()
}

type Notifier interface {
	NotifyPoolEvent(models.PoolEvent) bool
}

// Controller tears the whole pool down and exits the process. Once draining starts
// no worker is provisioned anymore.
type Controller struct {
	draining atomic.Bool
	done     chan struct{}

	reg      Registry
	term     Terminator
	reclaims Reclaimer
	grace    time.Duration
	exit     func(code int)

	metrics metrics.Metrics
	events  Notifier
	log     zerolog.Logger
}

func NewController(
	reg Registry,
	term Terminator,
	reclaims Reclaimer,
	grace time.Duration,
	exit func(code int),
	m metrics.Metrics,
	events Notifier,
	logger zerolog.Logger,
) *Controller {
	return &Controller{
		done:     make(chan struct{}),
		reg:      reg,
		term:     term,
		reclaims: reclaims,
		grace:    grace,
		exit:     exit,
		metrics:  m,
		events:   events,
		log:      logger.With().Str("component", "drain").Logger(),
	}
}

func (c *Controller) Draining() bool {
	return c.draining.Load()
}

// Done is closed once every termination started by Drain has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Drain removes every non-permanent worker from routing, starts their termination
// concurrently and schedules the process exit after the grace period. It does not wait
// for terminations. Only the first call has any effect.
func (c *Controller) Drain(ctx context.Context) []models.WorkerAddr {
	if !c.draining.CompareAndSwap(false, true) {
		return nil
	}
	c.log.Warn().Msg("draining worker pool")
	c.reclaims.Stop()

	victims := make([]models.WorkerAddr, 0)
	for _, addr := range c.reg.Workers() {
		if _, removed := c.reg.RemoveWorker(addr); removed {
			victims = append(victims, addr)
			c.events.NotifyPoolEvent(models.NewPoolEvent(models.WorkerDrained, addr, ""))
		}
	}
	c.metrics.Gauge(metrics.PoolSize, len(c.reg.Workers()))

	go c.terminateAll(context.WithoutCancel(ctx), victims)

	time.AfterFunc(c.grace, func() {
		c.log.Warn().Msg("grace period is over, exiting")
		c.exit(0)
	})
	return victims
}

func (c *Controller) terminateAll(ctx context.Context, victims []models.WorkerAddr) {
	defer close(c.done)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, addr := range victims {
		addr := addr
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.term.Terminate(ctx, addr)
			if err != nil {
				c.metrics.Increment(metrics.TerminateFailures)
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if errs != nil {
		c.log.Error().Err(errs).Msgf("%d of %d workers failed to terminate", len(multierr.Errors(errs)), len(victims))
		return
	}
	c.log.Info().Msgf("terminated %d workers", len(victims))
}

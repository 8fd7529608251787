package reclaimer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/metrics"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
)

type Registry interface {
	IsPermanent(addr models.WorkerAddr) bool
	LoadOf(addr models.WorkerAddr) (int, bool)
	RemoveIfIdle(addr models.WorkerAddr) bool
}

type Terminator interface {
	Terminate(ctx context.Context, addr models.WorkerAddr) error
}

type Notifier interface {
	NotifyPoolEvent(models.PoolEvent) bool
}

type stopper interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) stopper

func timeAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// slot is the single pending reclaim of a worker. gen tells a stale firing
// (one that lost the race with Cancel) from the live one.
type slot struct {
	gen   uint64
	timer stopper
}

type Reclaimer struct {
	mu      *sync.Mutex
	slots   map[models.WorkerAddr]*slot
	gen     uint64
	stopped bool

	reg       Registry
	term      Terminator
	delay     time.Duration
	afterFunc afterFunc

	metrics metrics.Metrics
	events  Notifier
	log     zerolog.Logger
}

func New(
	reg Registry,
	term Terminator,
	delay time.Duration,
	m metrics.Metrics,
	events Notifier,
	logger zerolog.Logger,
) *Reclaimer {
	return &Reclaimer{
		mu:        &sync.Mutex{},
		slots:     make(map[models.WorkerAddr]*slot),
		reg:       reg,
		term:      term,
		delay:     delay,
		afterFunc: timeAfterFunc,
		metrics:   m,
		events:    events,
		log:       logger.With().Str("component", "reclaimer").Logger(),
	}
}

// Arm schedules reclamation of an idle worker. A worker that already has a pending
// reclaim gets its timer restarted in the same slot, so the delay always counts from
// the latest moment the worker was seen idle. It reports whether a timer was armed.
func (r *Reclaimer) Arm(addr models.WorkerAddr) bool {
	if r.reg.IsPermanent(addr) {
		return false
	}
	load, exists := r.reg.LoadOf(addr)
	if !exists || load != 0 {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return false
	}
	s, armed := r.slots[addr]
	if armed {
		s.timer.Stop()
	} else {
		s = &slot{}
		r.slots[addr] = s
	}
	r.gen++
	gen := r.gen
	s.gen = gen
	s.timer = r.afterFunc(r.delay, func() {
		r.fire(addr, gen)
	})

	r.log.Debug().Msgf("armed reclaim of %s in %s", addr, r.delay)
	return true
}

// Cancel drops a pending reclaim. Cancelling a fired or absent timer is a no-op.
func (r *Reclaimer) Cancel(addr models.WorkerAddr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, armed := r.slots[addr]
	if !armed {
		return false
	}
	s.timer.Stop()
	delete(r.slots, addr)

	r.log.Debug().Msgf("canceled reclaim of %s", addr)
	return true
}

// Stop cancels every pending reclaim and refuses new ones.
func (r *Reclaimer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	for addr, s := range r.slots {
		s.timer.Stop()
		delete(r.slots, addr)
	}
}

func (r *Reclaimer) Pending(addr models.WorkerAddr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, armed := r.slots[addr]
	return armed
}

func (r *Reclaimer) fire(addr models.WorkerAddr, gen uint64) {
	r.mu.Lock()
	s, armed := r.slots[addr]
	if !armed || s.gen != gen {
		r.mu.Unlock()
		return
	}
	delete(r.slots, addr)
	r.mu.Unlock()

	// the worker may have gained a task or left the pool while the timer was pending
	if !r.reg.RemoveIfIdle(addr) {
		r.log.Debug().Msgf("skip reclaim of %s: worker is busy or gone", addr)
		return
	}
	r.metrics.Increment(metrics.Reclaimed)
	r.events.NotifyPoolEvent(models.NewPoolEvent(models.WorkerReclaimed, addr, ""))
	r.log.Info().Msgf("reclaimed idle worker %s", addr)

	err := r.term.Terminate(context.Background(), addr)
	if err != nil {
		r.metrics.Increment(metrics.TerminateFailures)
		r.log.Error().Err(err).Msgf("failed to terminate reclaimed worker %s", addr)
	}
}

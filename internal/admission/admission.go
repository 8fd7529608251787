package admission

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/metrics"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/registry"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/pkg/provisioning"
)

const provisionKey = "provision"

type Registry interface {
	LeastLoaded() (models.WorkerAddr, int, bool)
	AddWorker(addr models.WorkerAddr, permanent bool) error
	RemoveWorker(addr models.WorkerAddr) ([]models.TaskID, bool)
	Size() int
}

type DrainState interface {
	Draining() bool
}

type ReadinessProbe interface {
	WaitReady(ctx context.Context, addr models.WorkerAddr) error
}

type Reclaimer interface {
	Arm(addr models.WorkerAddr) bool
}

type Notifier interface {
	NotifyPoolEvent(models.PoolEvent) bool
}

type Options struct {
	LoadThreshold int
	// SingleFlight collapses concurrent provisioning attempts into one.
	SingleFlight bool
	// RateInterval and Burst bound how often provisioning may be attempted; zero disables it.
	RateInterval time.Duration
	Burst        int
	// Probe, when set, must succeed before a new worker joins the pool.
	Probe ReadinessProbe
}

type Controller struct {
	reg       Registry
	prov      provisioning.Provisioner
	drain     DrainState
	reclaims  Reclaimer
	threshold int
	probe     ReadinessProbe
	limiter   *rate.Limiter
	group     *singleflight.Group

	metrics metrics.Metrics
	events  Notifier
	log     zerolog.Logger
}

func NewController(
	reg Registry,
	prov provisioning.Provisioner,
	drain DrainState,
	reclaims Reclaimer,
	opts Options,
	m metrics.Metrics,
	events Notifier,
	logger zerolog.Logger,
) *Controller {
	c := &Controller{
		reg:       reg,
		prov:      prov,
		drain:     drain,
		reclaims:  reclaims,
		threshold: opts.LoadThreshold,
		probe:     opts.Probe,
		metrics:   m,
		events:    events,
		log:       logger.With().Str("component", "admission").Logger(),
	}
	if opts.SingleFlight {
		c.group = &singleflight.Group{}
	}
	if opts.RateInterval > 0 {
		burst := max(opts.Burst, 1)
		c.limiter = rate.NewLimiter(rate.Every(opts.RateInterval), burst)
	}
	return c
}

// Admit runs before a task creation request is routed. It grows the pool when even the least
// loaded worker has reached the threshold. Provisioning failures are never returned: the
// request is routed to the existing pool anyway. Reports whether a worker was added.
func (c *Controller) Admit(ctx context.Context) bool {
	if !c.saturated() {
		return false
	}
	if c.drain.Draining() {
		c.metrics.Increment(metrics.AdmissionDraining)
		return false
	}
	if c.limiter != nil && !c.limiter.Allow() {
		c.metrics.Increment(metrics.AdmissionLimited)
		c.log.Warn().Msg("provisioning rate limited, routing to existing pool")
		return false
	}
	// a provisioned worker must not leak if the caller goes away mid-boot
	ctx = context.WithoutCancel(ctx)
	if c.group == nil {
		return c.provision(ctx)
	}
	added, _, shared := c.group.Do(provisionKey, func() (any, error) {
		return c.provision(ctx), nil
	})
	if shared {
		c.log.Debug().Msg("joined in-flight provisioning")
	}
	return added.(bool)
}

func (c *Controller) saturated() bool {
	_, minLoad, ok := c.reg.LeastLoaded()
	if !ok {
		minLoad = c.threshold
	}
	return minLoad >= c.threshold
}

func (c *Controller) provision(ctx context.Context) bool {
	start := time.Now()
	addr, ok := c.prov.Provision(ctx)
	if !ok {
		c.metrics.Increment(metrics.AdmissionFailed)
		c.log.Warn().Msg("no capacity for a new worker, routing to existing pool")
		return false
	}
	if c.probe != nil {
		err := c.probe.WaitReady(ctx, addr)
		if err != nil {
			c.metrics.Increment(metrics.AdmissionFailed)
			c.log.Error().Err(err).Msgf("provisioned worker %s never became ready", addr)
			c.terminate(ctx, addr)
			return false
		}
	}
	// draining may have started while we were waiting for the backend
	if c.drain.Draining() {
		c.metrics.Increment(metrics.AdmissionDraining)
		c.log.Warn().Msgf("draining started during provisioning, terminating %s", addr)
		c.terminate(ctx, addr)
		return false
	}
	err := c.reg.AddWorker(addr, false)
	if err != nil {
		if errors.Is(err, registry.ErrWorkerExists) {
			c.log.Warn().Msgf("provisioner returned worker %s which is already in pool", addr)
		} else {
			c.log.Error().Err(err).Msgf("failed to add worker %s to pool", addr)
		}
		return false
	}
	// drain snapshots the pool after raising the flag, so either it saw this worker or we see the flag
	if c.drain.Draining() {
		if _, removed := c.reg.RemoveWorker(addr); removed {
			c.log.Warn().Msgf("draining started while adding %s, terminating it", addr)
			c.terminate(ctx, addr)
		}
		return false
	}
	c.metrics.Increment(metrics.AdmissionProvision)
	c.metrics.Duration(metrics.AdmissionProvision, time.Since(start))
	c.metrics.Gauge(metrics.PoolSize, c.reg.Size())
	c.events.NotifyPoolEvent(models.NewPoolEvent(models.WorkerProvisioned, addr, ""))
	c.log.Info().Msgf("added worker %s to pool in %d ms", addr, time.Since(start).Milliseconds())

	// the balance lookup that follows normally cancels this right away
	c.reclaims.Arm(addr)
	return true
}

func (c *Controller) terminate(ctx context.Context, addr models.WorkerAddr) {
	err := c.prov.Terminate(ctx, addr)
	if err != nil {
		c.metrics.Increment(metrics.TerminateFailures)
		c.log.Error().Err(err).Msgf("failed to terminate worker %s", addr)
	}
}

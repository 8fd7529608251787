package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/forwarder"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/metrics"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/strategy"
)

var (
	ErrRouting = errors.New("no worker to route to")
	ErrForward = errors.New("worker request failed")
)

type Registry interface {
	AssignTask(task models.TaskID, addr models.WorkerAddr) (models.WorkerAddr, error)
	UnassignTask(task models.TaskID) (models.WorkerAddr, bool)
	LoadOf(addr models.WorkerAddr) (int, bool)
	Tasks() []models.TaskID
	TotalTasks() int
}

type Selector interface {
	Select(mode strategy.Mode, req strategy.Request) (models.WorkerAddr, error)
}

type Admission interface {
	Admit(ctx context.Context) bool
}

type Reclaimer interface {
	Arm(addr models.WorkerAddr) bool
	Cancel(addr models.WorkerAddr) bool
}

type Forwarder interface {
	Forward(ctx context.Context, worker models.WorkerAddr, req *http.Request) (*forwarder.Response, error)
}

type Notifier interface {
	NotifyPoolEvent(models.PoolEvent) bool
}

type Dispatcher struct {
	reg       Registry
	selector  Selector
	admission Admission
	reclaims  Reclaimer
	fwd       Forwarder
	caps      Capabilities

	metrics metrics.Metrics
	events  Notifier
	log     zerolog.Logger
}

func New(
	reg Registry,
	selector Selector,
	admission Admission,
	reclaims Reclaimer,
	fwd Forwarder,
	caps Capabilities,
	m metrics.Metrics,
	events Notifier,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		reg:       reg,
		selector:  selector,
		admission: admission,
		reclaims:  reclaims,
		fwd:       fwd,
		caps:      caps,
		metrics:   m,
		events:    events,
		log:       logger.With().Str("component", "dispatch").Logger(),
	}
}

// Passthrough routes a request by mode and forwards it without touching the registry.
func (d *Dispatcher) Passthrough(
	ctx context.Context,
	mode strategy.Mode,
	attrs strategy.Request,
	req *http.Request,
) (*forwarder.Response, error) {
	defer d.observe(mode.String(), time.Now())
	return d.route(ctx, mode, attrs, req)
}

// CreateTask grows the pool if needed, sends the request to the least loaded worker and
// registers the created task on that worker.
func (d *Dispatcher) CreateTask(ctx context.Context, req *http.Request) (*forwarder.Response, error) {
	defer d.observe("create", time.Now())

	d.admission.Admit(ctx)
	resp, err := d.route(ctx, strategy.Balance, strategy.Request{}, req)
	if err != nil {
		return nil, err
	}
	err = d.register(resp)
	if err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// RemoveTask erases the task from the registry before forwarding remove/cancel to its owner.
// Unknown tasks are a routing failure.
func (d *Dispatcher) RemoveTask(ctx context.Context, task models.TaskID, req *http.Request) (*forwarder.Response, error) {
	defer d.observe("remove", time.Now())

	owner, owned := d.reg.UnassignTask(task)
	if owned {
		d.events.NotifyPoolEvent(models.NewPoolEvent(models.TaskRemoved, owner, task))
		d.metrics.Gauge(metrics.TaskCount, d.reg.TotalTasks())
		d.armIfIdle(owner)
	}
	return d.route(ctx, strategy.Body, strategy.Request{
		BodyTaskID:     task,
		ResolvedWorker: owner,
	}, req)
}

func (d *Dispatcher) route(
	ctx context.Context,
	mode strategy.Mode,
	attrs strategy.Request,
	req *http.Request,
) (*forwarder.Response, error) {
	worker, err := d.selector.Select(mode, attrs)
	if err != nil {
		d.metrics.Increment(metrics.RoutingFailures)
		return nil, fmt.Errorf("%w: %s %s: %w", ErrRouting, req.Method, req.URL.Path, err)
	}
	resp, err := d.fwd.Forward(ctx, worker, req)
	if err != nil {
		d.metrics.Increment(metrics.ForwardFailures)
		return nil, fmt.Errorf("%w: %w", ErrForward, err)
	}
	d.log.Debug().Msgf("%s %s -> %s: %d", req.Method, req.URL.Path, worker, resp.StatusCode)
	return resp, nil
}

func (d *Dispatcher) armIfIdle(addr models.WorkerAddr) {
	load, exists := d.reg.LoadOf(addr)
	if exists && load == 0 {
		d.reclaims.Arm(addr)
	}
}

func (d *Dispatcher) observe(class string, start time.Time) {
	d.metrics.Increment(metrics.DispatchRequests + class)
	d.metrics.Duration(metrics.DispatchDuration+class, time.Since(start))
}

package strategy

import (
	"errors"
	"fmt"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
)

var (
	ErrEmptyPool   = errors.New("worker pool is empty")
	ErrUnknownTask = errors.New("task is not owned by any worker")
	ErrUnknownMode = errors.New("unknown routing mode")
)

// Mode is the routing rule bound to an endpoint when routes are registered.
type Mode int8

const (
	Any Mode = iota + 1
	Balance
	Body
	Path
)

func (m Mode) String() string {
	switch m {
	case Any:
		return "any"
	case Balance:
		return "balance"
	case Body:
		return "body"
	case Path:
		return "path"
	}
	return fmt.Sprintf("mode(%d)", int8(m))
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "any":
		return Any, nil
	case "balance":
		return Balance, nil
	case "body":
		return Body, nil
	case "path":
		return Path, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Request carries the attributes a mode may route on.
type Request struct {
	BodyTaskID models.TaskID
	PathTaskID models.TaskID
	// ResolvedWorker is an owner found earlier in the same request, e.g. by task removal.
	ResolvedWorker models.WorkerAddr
}

type Registry interface {
	First() (models.WorkerAddr, bool)
	LeastLoaded() (models.WorkerAddr, int, bool)
	OwnerOf(task models.TaskID) (models.WorkerAddr, bool)
}

type ReclaimCanceler interface {
	Cancel(addr models.WorkerAddr) bool
}

type Selector struct {
	reg      Registry
	reclaims ReclaimCanceler
}

func NewSelector(reg Registry, reclaims ReclaimCanceler) *Selector {
	return &Selector{
		reg:      reg,
		reclaims: reclaims,
	}
}

func (s *Selector) Select(mode Mode, req Request) (models.WorkerAddr, error) {
	switch mode {
	case Any:
		addr, ok := s.reg.First()
		if !ok {
			return "", ErrEmptyPool
		}
		return addr, nil
	case Balance:
		addr, _, ok := s.reg.LeastLoaded()
		if !ok {
			return "", ErrEmptyPool
		}
		// a worker picked for new work is not idle anymore
		s.reclaims.Cancel(addr)
		return addr, nil
	case Body:
		if owner, ok := s.reg.OwnerOf(req.BodyTaskID); ok && req.BodyTaskID != "" {
			return owner, nil
		}
		if req.ResolvedWorker != "" {
			return req.ResolvedWorker, nil
		}
		return "", fmt.Errorf("%w: %q", ErrUnknownTask, req.BodyTaskID)
	case Path:
		if owner, ok := s.reg.OwnerOf(req.PathTaskID); ok && req.PathTaskID != "" {
			return owner, nil
		}
		return "", fmt.Errorf("%w: %q", ErrUnknownTask, req.PathTaskID)
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownMode, mode)
}

package registry

import (
	"errors"
	"slices"
	"sync"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
)

var (
	ErrWorkerExists    = errors.New("worker already in pool")
	ErrPermanentExists = errors.New("permanent worker already configured")
	ErrUnknownWorker   = errors.New("worker is not in pool")
)

type taskSet map[models.TaskID]struct{}

// Registry is the in-memory source of truth for pool membership and task ownership.
// ownerByTask is kept as the exact inverse of tasksByWorker; every exported method is
// a single critical section, so callers never observe a half-applied change.
type Registry struct {
	mu *sync.Mutex

	permanent     models.WorkerAddr
	pool          []models.WorkerAddr
	tasksByWorker map[models.WorkerAddr]taskSet
	ownerByTask   map[models.TaskID]models.WorkerAddr
}

func New() *Registry {
	return &Registry{
		mu:            &sync.Mutex{},
		pool:          make([]models.WorkerAddr, 0, 8),
		tasksByWorker: make(map[models.WorkerAddr]taskSet, 8),
		ownerByTask:   make(map[models.TaskID]models.WorkerAddr, 64),
	}
}

func (r *Registry) AddWorker(addr models.WorkerAddr, permanent bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasksByWorker[addr]; exists {
		return ErrWorkerExists
	}
	if permanent {
		if r.permanent != "" {
			return ErrPermanentExists
		}
		r.permanent = addr
	}
	r.pool = append(r.pool, addr)
	r.tasksByWorker[addr] = make(taskSet)
	return nil
}

// RemoveWorker drops a worker with every task it owned. The permanent worker is never removed.
func (r *Registry) RemoveWorker(addr models.WorkerAddr) ([]models.TaskID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeLocked(addr)
}

// RemoveIfIdle removes the worker only if it is still in the pool, not permanent and loadless.
func (r *Registry) RemoveIfIdle(addr models.WorkerAddr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks, exists := r.tasksByWorker[addr]
	if !exists || len(tasks) != 0 {
		return false
	}
	_, removed := r.removeLocked(addr)
	return removed
}

func (r *Registry) removeLocked(addr models.WorkerAddr) ([]models.TaskID, bool) {
	if addr == r.permanent {
		return nil, false
	}
	tasks, exists := r.tasksByWorker[addr]
	if !exists {
		return nil, false
	}
	orphaned := make([]models.TaskID, 0, len(tasks))
	for task := range tasks {
		delete(r.ownerByTask, task)
		orphaned = append(orphaned, task)
	}
	delete(r.tasksByWorker, addr)
	r.pool = slices.DeleteFunc(r.pool, func(w models.WorkerAddr) bool {
		return w == addr
	})
	slices.Sort(orphaned)
	return orphaned, true
}

// AssignTask makes addr the owner of task. If the task was owned by another worker it is
// moved and the previous owner is returned.
func (r *Registry) AssignTask(task models.TaskID, addr models.WorkerAddr) (models.WorkerAddr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks, exists := r.tasksByWorker[addr]
	if !exists {
		return "", ErrUnknownWorker
	}
	prev, owned := r.ownerByTask[task]
	if owned && prev == addr {
		return "", nil
	}
	if owned {
		delete(r.tasksByWorker[prev], task)
	}
	tasks[task] = struct{}{}
	r.ownerByTask[task] = addr
	return prev, nil
}

func (r *Registry) UnassignTask(task models.TaskID) (models.WorkerAddr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, owned := r.ownerByTask[task]
	if !owned {
		return "", false
	}
	delete(r.ownerByTask, task)
	delete(r.tasksByWorker[owner], task)
	return owner, true
}

func (r *Registry) OwnerOf(task models.TaskID) (models.WorkerAddr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, owned := r.ownerByTask[task]
	return owner, owned
}

func (r *Registry) LoadOf(addr models.WorkerAddr) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks, exists := r.tasksByWorker[addr]
	return len(tasks), exists
}

// LeastLoaded returns the worker with the fewest tasks, ties go to the earliest in pool order.
func (r *Registry) LeastLoaded() (models.WorkerAddr, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pool) == 0 {
		return "", 0, false
	}
	target := r.pool[0]
	minLoad := len(r.tasksByWorker[target])
	for _, addr := range r.pool[1:] {
		if load := len(r.tasksByWorker[addr]); load < minLoad {
			target, minLoad = addr, load
		}
	}
	return target, minLoad, true
}

func (r *Registry) First() (models.WorkerAddr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pool) == 0 {
		return "", false
	}
	return r.pool[0], true
}

func (r *Registry) Contains(addr models.WorkerAddr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.tasksByWorker[addr]
	return exists
}

func (r *Registry) IsPermanent(addr models.WorkerAddr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return addr != "" && addr == r.permanent
}

func (r *Registry) Permanent() models.WorkerAddr {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.permanent
}

func (r *Registry) Workers() []models.WorkerAddr {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.pool)
}

func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.pool)
}

// Tasks lists every tracked task, grouped by worker in pool order.
func (r *Registry) Tasks() []models.TaskID {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]models.TaskID, 0, len(r.ownerByTask))
	for _, addr := range r.pool {
		start := len(result)
		for task := range r.tasksByWorker[addr] {
			result = append(result, task)
		}
		slices.Sort(result[start:])
	}
	return result
}

func (r *Registry) TotalTasks() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, addr := range r.pool {
		total += len(r.tasksByWorker[addr])
	}
	return total
}

package standby

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
)

type Settings struct {
	Workers []string `json:"workers"`
}

// Provisioner hands out pre-booted workers from a fixed list and takes them back on terminate.
type Provisioner struct {
	mu    sync.Mutex
	free  []models.WorkerAddr
	inUse map[models.WorkerAddr]struct{}
}

func New(settings *Settings) (*Provisioner, error) {
	free := make([]models.WorkerAddr, 0, len(settings.Workers))
	for _, w := range settings.Workers {
		addr := models.WorkerAddr(w)
		if addr == "" {
			return nil, fmt.Errorf("empty standby worker address")
		}
		if slices.Contains(free, addr) {
			return nil, fmt.Errorf("standby worker %s listed twice", addr)
		}
		free = append(free, addr)
	}
	return &Provisioner{
		free:  free,
		inUse: make(map[models.WorkerAddr]struct{}, len(free)),
	}, nil
}

func (p *Provisioner) Provision(context.Context) (models.WorkerAddr, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		return "", false
	}
	addr := p.free[0]
	p.free = p.free[1:]
	p.inUse[addr] = struct{}{}
	return addr, true
}

func (p *Provisioner) Terminate(_ context.Context, addr models.WorkerAddr) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.inUse[addr]; !ok {
		return fmt.Errorf("worker %s was not provisioned from standby list", addr)
	}
	delete(p.inUse, addr)
	p.free = append(p.free, addr)
	log.Debug().Msgf("[standby]: worker %s returned to the list", addr)
	return nil
}

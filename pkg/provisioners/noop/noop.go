package noop

import (
	"context"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
)

type Settings struct{}

// Provisioner never has spare capacity, so the pool stays at the permanent worker.
type Provisioner struct{}

func New(*Settings) *Provisioner {
	return &Provisioner{}
}

func (Provisioner) Provision(context.Context) (models.WorkerAddr, bool) {
	return "", false
}

func (Provisioner) Terminate(context.Context, models.WorkerAddr) error {
	return nil
}

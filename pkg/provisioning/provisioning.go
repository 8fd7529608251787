package provisioning

import (
	"context"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
)

type Kind string

const (
	NoneKind     Kind = "none"
	StandbyKind  Kind = "standby"
	HTTPHookKind Kind = "httphook"
)

// Provisioner is the worker lifecycle backend. Provision reports missing capacity with
// ok=false and never fails with an error; Terminate is best effort.
type Provisioner interface {
	Provision(ctx context.Context) (addr models.WorkerAddr, ok bool)
	Terminate(ctx context.Context, addr models.WorkerAddr) error
}

package provisioners

import (
	"encoding/json"
	"fmt"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/pkg/provisioners/httphook"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/pkg/provisioners/noop"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/pkg/provisioners/standby"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/pkg/provisioning"
)

func NewProvisioner(kind provisioning.Kind, settings []byte) (provisioning.Provisioner, error) {
	var (
		settingsVar any
		createFunc  func(any) (provisioning.Provisioner, error)
	)
	switch kind {
	case provisioning.NoneKind, "":
		settingsVar = &noop.Settings{}
		createFunc = func(s any) (provisioning.Provisioner, error) {
			return noop.New(s.(*noop.Settings)), nil
		}
	case provisioning.StandbyKind:
		settingsVar = &standby.Settings{}
		createFunc = func(s any) (provisioning.Provisioner, error) {
			return standby.New(s.(*standby.Settings))
		}
	case provisioning.HTTPHookKind:
		settingsVar = &httphook.Settings{}
		createFunc = func(s any) (provisioning.Provisioner, error) {
			return httphook.New(s.(*httphook.Settings))
		}
	default:
		return nil, fmt.Errorf("unknown provisioner kind %q", kind)
	}

	if len(settings) != 0 {
		err := json.Unmarshal(settings, settingsVar)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings for provisioner %s: %w", kind, err)
		}
	}
	return createFunc(settingsVar)
}

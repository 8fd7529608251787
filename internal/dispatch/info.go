package dispatch

import "github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"

const (
	engineVersion = "1"
	apiVersion    = "1"
)

type Capabilities struct {
	Engine           string
	MaxImages        int
	MaxParallelTasks int
}

type InfoDto struct {
	Engine           string `json:"engine"`
	EngineVersion    string `json:"engineVersion"`
	MaxImages        int    `json:"maxImages"`
	MaxParallelTasks int    `json:"maxParallelTasks"`
	TaskQueueCount   int    `json:"taskQueueCount"`
	Version          string `json:"version"`
}

type TaskDto struct {
	UUID models.TaskID `json:"uuid"`
}

// Info describes the whole pool as if it were a single worker.
func (d *Dispatcher) Info() InfoDto {
	return InfoDto{
		Engine:           d.caps.Engine,
		EngineVersion:    engineVersion,
		MaxImages:        d.caps.MaxImages,
		MaxParallelTasks: d.caps.MaxParallelTasks,
		TaskQueueCount:   d.reg.TotalTasks(),
		Version:          apiVersion,
	}
}

func (d *Dispatcher) ListTasks() []TaskDto {
	tasks := d.reg.Tasks()
	result := make([]TaskDto, 0, len(tasks))
	for _, task := range tasks {
		result = append(result, TaskDto{UUID: task})
	}
	return result
}

func (d *Dispatcher) Engine() string {
	return d.caps.Engine
}

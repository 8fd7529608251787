package models

import (
	"fmt"
	"time"
)

type PoolEventType string

const (
	WorkerProvisioned PoolEventType = "worker_provisioned"
	WorkerReclaimed   PoolEventType = "worker_reclaimed"
	WorkerDrained     PoolEventType = "worker_drained"
	TaskRegistered    PoolEventType = "task_registered"
	TaskRemoved       PoolEventType = "task_removed"
)

// PoolEvent describes a single change of pool membership or task ownership.
type PoolEvent struct {
	Type      PoolEventType `json:"type"`
	Worker    WorkerAddr    `json:"worker"`
	Task      TaskID        `json:"task,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

func NewPoolEvent(tp PoolEventType, worker WorkerAddr, task TaskID) PoolEvent {
	return PoolEvent{
		Type:      tp,
		Worker:    worker,
		Task:      task,
		Timestamp: time.Now(),
	}
}

func (e PoolEvent) String() string {
	if e.Task != "" {
		return fmt.Sprintf("{type=%s, worker=%s, task=%s}", e.Type, e.Worker, e.Task)
	}
	return fmt.Sprintf("{type=%s, worker=%s}", e.Type, e.Worker)
}

package models

type WorkerAddr string

func (w WorkerAddr) String() string {
	return string(w)
}

type TaskID string

func (t TaskID) String() string {
	return string(t)
}

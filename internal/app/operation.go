package app

import "time"

// Operation is one CLI invocation. Its ID tags every log line of the run.
// Mutating operations can change locks or labels, so closing the app after
// one snapshots the property store.
type Operation struct {
	ID       string
	Command  string
	Mutating bool
	Status   string // "success" or "error"
}

// NewOperation creates an operation for command started at now.
func NewOperation(command string, mutating bool, now time.Time) *Operation {
	return &Operation{
		ID:       now.UTC().Format("20060102T150405Z"),
		Command:  command,
		Mutating: mutating,
		Status:   "success",
	}
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = "error"
}

// Succeeded reports whether the operation finished without error.
func (op *Operation) Succeeded() bool {
	return op.Status == "success"
}

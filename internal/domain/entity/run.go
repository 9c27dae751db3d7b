package entity

// RunStatus is the lifecycle state of a remote unit of work.
type RunStatus string

const (
	RunQueued     RunStatus = "queued"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// Terminal reports whether the status ends the polling loop.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// RunHandle describes one submitted run. Immutable once Status is terminal.
type RunHandle struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"thread_id"`
	AssistantID string    `json:"assistant_id"`
	Status      RunStatus `json:"status"`
	LastError   string    `json:"last_error,omitempty"`
}

package neon

import "time"

// OperationStatus is the control-plane's async-operation state set.
type OperationStatus string

const (
	StatusScheduling OperationStatus = "scheduling"
	StatusRunning    OperationStatus = "running"
	StatusFinished   OperationStatus = "finished"
	StatusFailed     OperationStatus = "failed"
	StatusCancelling OperationStatus = "cancelling"
	StatusCancelled  OperationStatus = "cancelled"
	StatusSkipped    OperationStatus = "skipped"
)

// Terminal reports whether polling can stop. A failed operation is terminal;
// whether that aborts the caller is the caller's decision, not the poller's.
func (s OperationStatus) Terminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusCancelled, StatusSkipped:
		return true
	}
	return false
}

// Succeeded reports a terminal status the caller can treat as a positive
// outcome.
func (s OperationStatus) Succeeded() bool {
	return s == StatusFinished || s == StatusSkipped
}

type Operation struct {
	ID     string          `json:"id"`
	Status OperationStatus `json:"status"`
	Action string          `json:"action,omitempty"`
}

type Branch struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	ParentID  string     `json:"parent_id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type Snapshot struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type CreatedProject struct {
	ProjectID   string
	DatabaseURL string
}

type SnapshotOptions struct {
	Name      string
	Timestamp *time.Time
}

type AuthDomain struct {
	Domain   string `json:"domain"`
	Provider string `json:"provider,omitempty"`
}

package client

import (
	"encoding/json"
	"time"
)

// TaskRequest describes a task to submit: which agent runs it and the
// free-text instruction it is given.
type TaskRequest struct {
	// ID optionally fixes the task identifier; the server assigns one
	// when empty.
	ID string `json:"id,omitempty"`

	// Name is the agent identifier, e.g. "CROW" or "OWL".
	Name string `json:"name"`

	// Query is the instruction passed to the agent.
	Query string `json:"query"`

	RuntimeConfig *RuntimeConfig `json:"runtime_config,omitempty"`
}

// RuntimeConfig carries optional per-task execution settings.
type RuntimeConfig struct {
	// ContinuedTaskID links this task to a previous one for follow-ups.
	ContinuedTaskID string `json:"continued_task_id,omitempty"`

	// Timeout is the server-side execution timeout in seconds.
	Timeout int `json:"timeout,omitempty"`

	// MaxSteps caps the number of agent steps.
	MaxSteps int `json:"max_steps,omitempty"`
}

// TaskHandle identifies a created task. It is opaque: only the server that
// issued it can interpret it.
type TaskHandle struct {
	ID string `json:"id"`
}

// Status is the server-authoritative task status.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// IsTerminal returns true if no further transitions occur from this status.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Task is the full server-side snapshot returned by GetTask.
type Task struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Query       string     `json:"query"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskResult is the payload of a finished task. Its shape is agent-specific,
// so it is left as raw JSON for the caller to decode.
type TaskResult = json.RawMessage

package task

import (
	"errors"
	"time"
)

// Status represents the current status of a task
type Status int

const (
	StatusQueued Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func ParseStatus(s string) Status {
	switch s {
	case "queued":
		return StatusQueued
	case "running":
		return StatusRunning
	case "succeeded":
		return StatusSucceeded
	case "failed":
		return StatusFailed
	default:
		return StatusQueued
	}
}

// MarshalJSON serializes the status as its string form.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON parses the status from its string form.
func (s *Status) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return ErrInvalidTaskData
	}
	*s = ParseStatus(string(data[1 : len(data)-1]))
	return nil
}

// IsTerminal returns true if no further transitions occur from this status.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Error definitions
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidTaskData   = errors.New("invalid task data")
	ErrTaskNotFound      = errors.New("task not found")
	ErrTaskAlreadyExists = errors.New("task already exists")
)

// ValidTransitions defines the allowed status transitions
var ValidTransitions = map[Status][]Status{
	StatusQueued:    {StatusRunning, StatusFailed},
	StatusRunning:   {StatusSucceeded, StatusFailed},
	StatusSucceeded: {}, // Terminal
	StatusFailed:    {}, // Terminal
}

// CanTransitionTo checks if a transition from the current status to the
// target status is valid
func (s Status) CanTransitionTo(target Status) bool {
	validTargets, ok := ValidTransitions[s]
	if !ok {
		return false
	}
	for _, v := range validTargets {
		if v == target {
			return true
		}
	}
	return false
}

// StateMachine handles task status transitions
type StateMachine struct {
	task *Task
}

// NewStateMachine creates a new state machine for a task
func NewStateMachine(t *Task) *StateMachine {
	return &StateMachine{task: t}
}

// Transition attempts to transition the task to a new status
func (sm *StateMachine) Transition(target Status) error {
	if !sm.task.Status.CanTransitionTo(target) {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	sm.task.Status = target
	sm.task.UpdatedAt = now

	switch target {
	case StatusRunning:
		sm.task.StartedAt = &now
	case StatusSucceeded, StatusFailed:
		sm.task.CompletedAt = &now
	}

	return nil
}

// Start transitions the task to running
func (sm *StateMachine) Start() error {
	return sm.Transition(StatusRunning)
}

// Succeed transitions the task to succeeded and records its result
func (sm *StateMachine) Succeed(result []byte) error {
	if err := sm.Transition(StatusSucceeded); err != nil {
		return err
	}
	sm.task.Result = result
	sm.task.Error = ""
	return nil
}

// Fail transitions the task to failed and records the diagnostic
func (sm *StateMachine) Fail(errMsg string, diagnostic []byte) error {
	if err := sm.Transition(StatusFailed); err != nil {
		return err
	}
	sm.task.Error = errMsg
	sm.task.Result = diagnostic
	return nil
}

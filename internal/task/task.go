package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RuntimeConfig carries optional per-task execution settings supplied by
// the caller.
type RuntimeConfig struct {
	ContinuedTaskID string `json:"continued_task_id,omitempty"`
	Timeout         int    `json:"timeout,omitempty"` // in seconds
	MaxSteps        int    `json:"max_steps,omitempty"`
}

// Task represents a unit of agent work submitted to the platform.
type Task struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"` // agent identifier, e.g. "CROW"
	Query         string          `json:"query"`
	RuntimeConfig *RuntimeConfig  `json:"runtime_config,omitempty"`
	Status        Status          `json:"status"`
	Error         string          `json:"error,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// CreateRequest represents the API request for creating a task
type CreateRequest struct {
	ID            string         `json:"id,omitempty"`
	Name          string         `json:"name"`
	Query         string         `json:"query"`
	RuntimeConfig *RuntimeConfig `json:"runtime_config,omitempty"`
}

// Response represents the API response for a task
type Response struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Query       string     `json:"query"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// HandleResponse is the minimal creation response: the task identifier.
type HandleResponse struct {
	ID string `json:"id"`
}

// New creates a new Task with default values
func New(name, query string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        uuid.New().String(),
		Name:      name,
		Query:     query,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// FromRequest creates a Task from a CreateRequest. A caller-supplied ID is
// kept as-is; handlers validate it before calling.
func FromRequest(req *CreateRequest) *Task {
	t := New(req.Name, req.Query)
	if req.ID != "" {
		t.ID = req.ID
	}
	if req.RuntimeConfig != nil {
		t.RuntimeConfig = req.RuntimeConfig
	}
	return t
}

// ToResponse converts a Task to a Response
func (t *Task) ToResponse() *Response {
	return &Response{
		ID:          t.ID,
		Name:        t.Name,
		Query:       t.Query,
		Status:      t.Status.String(),
		Error:       t.Error,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}

// ToHandle converts a Task to its creation response.
func (t *Task) ToHandle() *HandleResponse {
	return &HandleResponse{ID: t.ID}
}

// ExecutionTimeout returns the per-task timeout from the runtime config,
// or zero when none is set.
func (t *Task) ExecutionTimeout() time.Duration {
	if t.RuntimeConfig == nil || t.RuntimeConfig.Timeout <= 0 {
		return 0
	}
	return time.Duration(t.RuntimeConfig.Timeout) * time.Second
}

// ToJSON serializes the task to JSON
func (t *Task) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

// FromJSON deserializes a task from JSON
func FromJSON(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

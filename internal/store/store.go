package store

import (
	"context"

	"github.com/aviaryhq/aviary-go/internal/task"
)

// Store persists tasks for the simulator. Implementations must be safe for
// concurrent use by the API handlers and the runner.
type Store interface {
	// Create stores a new task. Returns task.ErrTaskAlreadyExists if the
	// ID is already taken.
	Create(ctx context.Context, t *task.Task) error

	// Get returns the task with the given ID, or task.ErrTaskNotFound.
	Get(ctx context.Context, id string) (*task.Task, error)

	// Update replaces the stored task. Returns task.ErrTaskNotFound if it
	// was never created.
	Update(ctx context.Context, t *task.Task) error

	// ListByStatus returns all tasks currently in the given status.
	ListByStatus(ctx context.Context, status task.Status) ([]*task.Task, error)

	// Delete removes the task with the given ID. Returns
	// task.ErrTaskNotFound if it was never created.
	Delete(ctx context.Context, id string) error

	Close() error
}

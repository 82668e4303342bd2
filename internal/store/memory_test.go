package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aviaryhq/aviary-go/internal/task"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	tk := task.New("CROW", "what changed in the field this year?")
	require.NoError(t, s.Create(ctx, tk))

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, got.ID)
	assert.Equal(t, task.StatusQueued, got.Status)
}

func TestMemoryStore_Create_Duplicate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	tk := task.New("CROW", "q")
	require.NoError(t, s.Create(ctx, tk))
	assert.ErrorIs(t, s.Create(ctx, tk), task.ErrTaskAlreadyExists)
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, task.ErrTaskNotFound)
}

func TestMemoryStore_Update(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	tk := task.New("OWL", "q")
	require.NoError(t, s.Create(ctx, tk))

	sm := task.NewStateMachine(tk)
	require.NoError(t, sm.Start())
	require.NoError(t, s.Update(ctx, tk))

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusRunning, got.Status)
}

func TestMemoryStore_Update_NotFound(t *testing.T) {
	s := NewMemoryStore()
	tk := task.New("OWL", "q")
	assert.ErrorIs(t, s.Update(context.Background(), tk), task.ErrTaskNotFound)
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	tk := task.New("CROW", "q")
	require.NoError(t, s.Create(ctx, tk))
	require.NoError(t, s.Delete(ctx, tk.ID))

	_, err := s.Get(ctx, tk.ID)
	assert.ErrorIs(t, err, task.ErrTaskNotFound)

	assert.ErrorIs(t, s.Delete(ctx, tk.ID), task.ErrTaskNotFound)
}

func TestMemoryStore_ListByStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	queued := task.New("CROW", "q1")
	running := task.New("OWL", "q2")
	sm := task.NewStateMachine(running)
	require.NoError(t, sm.Start())

	require.NoError(t, s.Create(ctx, queued))
	require.NoError(t, s.Create(ctx, running))

	got, err := s.ListByStatus(ctx, task.StatusQueued)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, queued.ID, got[0].ID)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	tk := task.New("CROW", "q")
	require.NoError(t, s.Create(ctx, tk))

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	got.Query = "mutated"

	again, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "q", again.Query, "store state must not be shared with callers")
}

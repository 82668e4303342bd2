package runner

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aviaryhq/aviary-go/internal/config"
	"github.com/aviaryhq/aviary-go/internal/events"
	"github.com/aviaryhq/aviary-go/internal/logger"
	"github.com/aviaryhq/aviary-go/internal/store"
	"github.com/aviaryhq/aviary-go/internal/task"
)

func init() {
	logger.Init("error", false)
}

func testConfig() *config.RunnerConfig {
	return &config.RunnerConfig{
		Concurrency:  2,
		QueueLatency: 0,
		RunLatency:   5 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}
}

func TestRunner_Execute_Succeeds(t *testing.T) {
	s := store.NewMemoryStore()
	r := New(testConfig(), s, nil, nil)
	ctx := context.Background()

	tk := task.New("CROW", "find the swallow")
	require.NoError(t, s.Create(ctx, tk))

	final := r.Execute(ctx, tk)
	assert.Equal(t, task.StatusSucceeded, final.Status)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(final.Result, &result))
	assert.Equal(t, "CROW", result["agent"])
	assert.Contains(t, result["answer"], "find the swallow")

	stored, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusSucceeded, stored.Status)
}

func TestRunner_Execute_FailPrefix(t *testing.T) {
	s := store.NewMemoryStore()
	r := New(testConfig(), s, nil, nil)
	ctx := context.Background()

	tk := task.New("OWL", "fail: broken query")
	require.NoError(t, s.Create(ctx, tk))

	final := r.Execute(ctx, tk)
	assert.Equal(t, task.StatusFailed, final.Status)
	assert.NotEmpty(t, final.Error)

	var diag map[string]string
	require.NoError(t, json.Unmarshal(final.Result, &diag))
	assert.Contains(t, diag["error"], "broken query")
}

func TestRunner_Execute_UnknownAgent(t *testing.T) {
	s := store.NewMemoryStore()
	r := New(testConfig(), s, nil, nil)
	ctx := context.Background()

	tk := task.New("DODO", "q")
	require.NoError(t, s.Create(ctx, tk))

	final := r.Execute(ctx, tk)
	assert.Equal(t, task.StatusFailed, final.Status)
	assert.Contains(t, final.Error, "unknown agent")
}

func TestRunner_Execute_RuntimeTimeout(t *testing.T) {
	s := store.NewMemoryStore()
	cfg := testConfig()
	cfg.RunLatency = 500 * time.Millisecond
	r := New(cfg, s, nil, nil)
	ctx := context.Background()

	tk := task.New("CROW", "slow query")
	tk.RuntimeConfig = &task.RuntimeConfig{Timeout: 1} // seconds; run latency is shorter
	require.NoError(t, s.Create(ctx, tk))

	final := r.Execute(ctx, tk)
	assert.Equal(t, task.StatusSucceeded, final.Status, "latency below timeout should succeed")
}

func TestRunner_Execute_PublishesEvents(t *testing.T) {
	s := store.NewMemoryStore()
	bus := events.NewBus()
	defer bus.Close()

	ctx := context.Background()
	ch, err := bus.SubscribeAll(ctx)
	require.NoError(t, err)

	r := New(testConfig(), s, bus, nil)

	tk := task.New("CROW", "q")
	require.NoError(t, s.Create(ctx, tk))
	r.Execute(ctx, tk)

	var types []events.EventType
	for len(types) < 2 {
		select {
		case ev := <-ch:
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out, got %v", types)
		}
	}
	assert.Equal(t, []events.EventType{events.EventTaskStarted, events.EventTaskSucceeded}, types)
}

func TestRunner_StartDrainsQueue(t *testing.T) {
	s := store.NewMemoryStore()
	r := New(testConfig(), s, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tk1 := task.New("CROW", "q1")
	tk2 := task.New("OWL", "q2")
	require.NoError(t, s.Create(ctx, tk1))
	require.NoError(t, s.Create(ctx, tk2))

	go r.Start(ctx)

	assert.Eventually(t, func() bool {
		a, err1 := s.Get(ctx, tk1.ID)
		b, err2 := s.Get(ctx, tk2.ID)
		return err1 == nil && err2 == nil &&
			a.Status.IsTerminal() && b.Status.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunner_HasAgent(t *testing.T) {
	r := New(testConfig(), store.NewMemoryStore(), nil, nil)

	assert.True(t, r.HasAgent("CROW"))
	assert.True(t, r.HasAgent("OWL"))
	assert.False(t, r.HasAgent("DODO"))
	assert.Len(t, r.AgentNames(), 4)
}

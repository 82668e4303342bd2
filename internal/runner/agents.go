package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aviaryhq/aviary-go/internal/task"
)

// AgentFunc produces a result payload for a task. The simulator's agents
// are deliberately fake: they fabricate a plausible answer after the
// configured run latency.
type AgentFunc func(ctx context.Context, t *task.Task) (json.RawMessage, error)

// failPrefix on a query forces the task to fail, which keeps failure paths
// testable without a real platform.
const failPrefix = "fail:"

// DefaultAgents returns the registry of agents the simulator knows about.
func DefaultAgents() map[string]AgentFunc {
	return map[string]AgentFunc{
		"CROW":    answerAgent("CROW"),
		"OWL":     answerAgent("OWL"),
		"FALCON":  answerAgent("FALCON"),
		"PHOENIX": answerAgent("PHOENIX"),
	}
}

func answerAgent(name string) AgentFunc {
	return func(ctx context.Context, t *task.Task) (json.RawMessage, error) {
		if strings.HasPrefix(t.Query, failPrefix) {
			return nil, fmt.Errorf("agent %s rejected the query: %s", name, strings.TrimPrefix(t.Query, failPrefix))
		}

		steps := 3
		if t.RuntimeConfig != nil && t.RuntimeConfig.MaxSteps > 0 && t.RuntimeConfig.MaxSteps < steps {
			steps = t.RuntimeConfig.MaxSteps
		}

		result := map[string]interface{}{
			"agent":  name,
			"query":  t.Query,
			"answer": fmt.Sprintf("simulated %s answer for: %s", name, t.Query),
			"steps":  steps,
		}
		if t.RuntimeConfig != nil && t.RuntimeConfig.ContinuedTaskID != "" {
			result["continued_task_id"] = t.RuntimeConfig.ContinuedTaskID
		}
		return json.Marshal(result)
	}
}

// sleepCtx blocks for d or until ctx is done, returning the ctx error in
// the latter case.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

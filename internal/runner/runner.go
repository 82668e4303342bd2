package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aviaryhq/aviary-go/internal/config"
	"github.com/aviaryhq/aviary-go/internal/events"
	"github.com/aviaryhq/aviary-go/internal/logger"
	"github.com/aviaryhq/aviary-go/internal/metrics"
	"github.com/aviaryhq/aviary-go/internal/store"
	"github.com/aviaryhq/aviary-go/internal/task"
)

// Runner drives simulated agent execution: it drains queued tasks from the
// store, walks each through the status state machine, and publishes
// lifecycle events.
type Runner struct {
	store     store.Store
	publisher events.Publisher
	agents    map[string]AgentFunc
	cfg       *config.RunnerConfig

	sem     chan struct{} // limits concurrent executions
	wg      sync.WaitGroup
	stopCh  chan struct{}
	running sync.Map // task IDs currently claimed by this runner
}

// New creates a runner over the given store and event publisher
func New(cfg *config.RunnerConfig, s store.Store, pub events.Publisher, agents map[string]AgentFunc) *Runner {
	if agents == nil {
		agents = DefaultAgents()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{
		store:     s,
		publisher: pub,
		agents:    agents,
		cfg:       cfg,
		sem:       make(chan struct{}, concurrency),
		stopCh:    make(chan struct{}),
	}
}

// HasAgent reports whether the runner knows the given agent name. Handlers
// use it to reject unknown names at submission time.
func (r *Runner) HasAgent(name string) bool {
	_, ok := r.agents[name]
	return ok
}

// AgentNames returns all registered agent names.
func (r *Runner) AgentNames() []string {
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}

// Start begins scanning for queued tasks. It blocks until ctx is cancelled
// or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	log := logger.WithComponent("runner")
	log.Info().Int("concurrency", cap(r.sem)).Msg("runner started")

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			log.Info().Msg("runner stopped")
			return
		case <-r.stopCh:
			r.wg.Wait()
			log.Info().Msg("runner stopped")
			return
		case <-ticker.C:
			r.dispatchQueued(ctx)
		}
	}
}

// Stop signals the scan loop to exit after in-flight tasks finish.
func (r *Runner) Stop() {
	close(r.stopCh)
}

func (r *Runner) dispatchQueued(ctx context.Context) {
	queued, err := r.store.ListByStatus(ctx, task.StatusQueued)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list queued tasks")
		return
	}

	for _, t := range queued {
		if _, claimed := r.running.LoadOrStore(t.ID, struct{}{}); claimed {
			continue
		}

		select {
		case r.sem <- struct{}{}:
		case <-ctx.Done():
			r.running.Delete(t.ID)
			return
		}

		r.wg.Add(1)
		go func(t *task.Task) {
			defer r.wg.Done()
			defer func() { <-r.sem }()
			defer r.running.Delete(t.ID)

			// Simulate time spent in the queue
			if err := sleepCtx(ctx, r.cfg.QueueLatency); err != nil {
				return
			}
			r.Execute(ctx, t)
		}(t)
	}
}

// RunSync persists a new task and executes it on the caller's goroutine,
// returning the finished task. The task is claimed before it is stored so
// the background scan loop never races for it.
func (r *Runner) RunSync(ctx context.Context, t *task.Task) (*task.Task, error) {
	if _, claimed := r.running.LoadOrStore(t.ID, struct{}{}); claimed {
		return nil, task.ErrTaskAlreadyExists
	}
	defer r.running.Delete(t.ID)

	if err := r.store.Create(ctx, t); err != nil {
		return nil, err
	}
	return r.Execute(ctx, t), nil
}

// Execute runs a single task to completion, persisting every transition.
// It returns the final task snapshot; errors in agent logic surface as a
// failed task, not as a Go error.
func (r *Runner) Execute(ctx context.Context, t *task.Task) *task.Task {
	log := logger.WithTask(t.ID)

	sm := task.NewStateMachine(t)
	if err := sm.Start(); err != nil {
		log.Error().Err(err).Msg("task not startable")
		return t
	}
	if err := r.store.Update(ctx, t); err != nil {
		log.Error().Err(err).Msg("failed to mark task running")
		return t
	}
	r.publish(ctx, events.EventTaskStarted, t)

	start := time.Now()
	result, err := r.invokeAgent(ctx, t)
	duration := time.Since(start)

	if err != nil {
		diagnostic, _ := json.Marshal(map[string]string{"error": err.Error()})
		if err := sm.Fail(err.Error(), diagnostic); err != nil {
			log.Error().Err(err).Msg("failed to mark task failed")
			return t
		}
		metrics.RecordTaskCompletion(t.Name, t.Status.String(), duration.Seconds())
		if err := r.store.Update(ctx, t); err != nil {
			log.Error().Err(err).Msg("failed to persist failed task")
		}
		r.publish(ctx, events.EventTaskFailed, t)
		log.Warn().Err(err).Dur("duration", duration).Msg("task failed")
		return t
	}

	if err := sm.Succeed(result); err != nil {
		log.Error().Err(err).Msg("failed to mark task succeeded")
		return t
	}
	metrics.RecordTaskCompletion(t.Name, t.Status.String(), duration.Seconds())
	if err := r.store.Update(ctx, t); err != nil {
		log.Error().Err(err).Msg("failed to persist succeeded task")
	}
	r.publish(ctx, events.EventTaskSucceeded, t)
	log.Debug().Dur("duration", duration).Msg("task succeeded")
	return t
}

// invokeAgent runs the agent function with panic recovery and the per-task
// timeout from the runtime config.
func (r *Runner) invokeAgent(ctx context.Context, t *task.Task) (result json.RawMessage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().
				Str("task_id", t.ID).
				Str("agent", t.Name).
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("agent panicked")
			err = fmt.Errorf("agent panicked: %v", rec)
		}
	}()

	agent, ok := r.agents[t.Name]
	if !ok {
		return nil, fmt.Errorf("unknown agent: %s", t.Name)
	}

	if timeout := t.ExecutionTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := sleepCtx(ctx, r.cfg.RunLatency); err != nil {
		return nil, fmt.Errorf("execution timed out: %w", err)
	}

	return agent(ctx, t)
}

func (r *Runner) publish(ctx context.Context, eventType events.EventType, t *task.Task) {
	if r.publisher == nil {
		return
	}
	data := events.TaskEventData(t.ID, t.Name, t.Status.String(), nil)
	if t.Error != "" {
		data["error"] = t.Error
	}
	if err := r.publisher.Publish(ctx, events.NewEvent(eventType, data)); err != nil {
		logger.Error().Err(err).Str("task_id", t.ID).Msg("failed to publish event")
	}
}

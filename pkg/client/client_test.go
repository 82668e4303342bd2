package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions() []Option {
	return []Option{
		WithAPIKey("test-key"),
		WithPollInterval(10 * time.Millisecond),
		WithPollTimeout(time.Second),
		WithRetryPolicy(RetryPolicy{
			MaxAttempts:       3,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        10 * time.Millisecond,
			BackoffFactor:     2.0,
			RetryableStatuses: []int{429, 500, 502, 503, 504},
		}),
	}
}

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) (*TaskClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, append(fastOptions(), opts...)...)
	require.NoError(t, err)
	return c, srv
}

func TestNew(t *testing.T) {
	c, err := New("http://localhost:8080/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.baseURL)

	_, err = New("")
	assert.Error(t, err)
}

func TestCreateTask(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/tasks", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req TaskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "CROW", req.Name)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(TaskHandle{ID: "task-1"})
	}))

	handle, err := c.CreateTask(context.Background(), TaskRequest{
		Name:  "CROW",
		Query: "How many moons does Jupiter have?",
	})
	require.NoError(t, err)
	assert.Equal(t, "task-1", handle.ID)
}

func TestCreateTask_ValidatesLocally(t *testing.T) {
	c, err := New("http://localhost:8080")
	require.NoError(t, err)

	var valErr *ValidationError

	_, err = c.CreateTask(context.Background(), TaskRequest{Query: "hi"})
	require.ErrorAs(t, err, &valErr)

	_, err = c.CreateTask(context.Background(), TaskRequest{Name: "CROW"})
	require.ErrorAs(t, err, &valErr)
}

func TestCreateTask_ServerRejects(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   func(error) bool
	}{
		{"unauthorized", http.StatusUnauthorized, func(err error) bool {
			var e *AuthError
			return errors.As(err, &e) && e.StatusCode == http.StatusUnauthorized
		}},
		{"forbidden", http.StatusForbidden, func(err error) bool {
			var e *AuthError
			return errors.As(err, &e)
		}},
		{"bad request", http.StatusBadRequest, func(err error) bool {
			var e *ValidationError
			return errors.As(err, &e) && e.StatusCode == http.StatusBadRequest
		}},
		{"server error", http.StatusInternalServerError, func(err error) bool {
			var e *TransportError
			return errors.As(err, &e) && e.StatusCode == http.StatusInternalServerError
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, tt.name, tt.status)
			}))

			_, err := c.CreateTask(context.Background(), TaskRequest{Name: "CROW", Query: "q"})
			require.Error(t, err)
			assert.True(t, tt.want(err), "unexpected error type: %v", err)
		})
	}
}

func TestCreateTask_NetworkError(t *testing.T) {
	c, err := New("http://127.0.0.1:1", WithTimeout(100*time.Millisecond))
	require.NoError(t, err)

	_, err = c.CreateTask(context.Background(), TaskRequest{Name: "CROW", Query: "q"})

	var transErr *TransportError
	require.ErrorAs(t, err, &transErr)
	assert.Error(t, transErr.Unwrap())
}

func TestBatchCreateTasks_PreservesOrder(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/tasks/batch", r.URL.Path)

		var reqs []TaskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqs))
		require.Len(t, reqs, 2)
		assert.Equal(t, "CROW", reqs[0].Name)
		assert.Equal(t, "OWL", reqs[1].Name)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]TaskHandle{{ID: "crow-task"}, {ID: "owl-task"}})
	}))

	handles, err := c.BatchCreateTasks(context.Background(), []TaskRequest{
		{Name: "CROW", Query: "first"},
		{Name: "OWL", Query: "second"},
	})
	require.NoError(t, err)
	require.Len(t, handles, 2)
	assert.Equal(t, "crow-task", handles[0].ID)
	assert.Equal(t, "owl-task", handles[1].ID)
}

func TestBatchCreateTasks_Validation(t *testing.T) {
	c, err := New("http://localhost:8080")
	require.NoError(t, err)

	var valErr *ValidationError

	_, err = c.BatchCreateTasks(context.Background(), nil)
	require.ErrorAs(t, err, &valErr)

	_, err = c.BatchCreateTasks(context.Background(), []TaskRequest{
		{Name: "CROW", Query: "ok"},
		{Name: "", Query: "missing name"},
	})
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, err.Error(), "task 1")
}

func TestBatchCreateTasks_LengthMismatch(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]TaskHandle{{ID: "only-one"}})
	}))

	_, err := c.BatchCreateTasks(context.Background(), []TaskRequest{
		{Name: "CROW", Query: "a"},
		{Name: "OWL", Query: "b"},
	})

	var transErr *TransportError
	require.ErrorAs(t, err, &transErr)
}

func TestGetTask(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/tasks/task-1", r.URL.Path)
		json.NewEncoder(w).Encode(Task{ID: "task-1", Name: "CROW", Status: StatusRunning})
	}))

	task, err := c.GetTask(context.Background(), TaskHandle{ID: "task-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, task.Status)
	assert.False(t, task.Status.IsTerminal())
}

func TestGetTask_NotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "task not found", http.StatusNotFound)
	}))

	_, err := c.GetTask(context.Background(), TaskHandle{ID: "missing"})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, http.StatusNotFound, valErr.StatusCode)
}

func TestGetResult_NotReady(t *testing.T) {
	for _, status := range []int{http.StatusConflict, http.StatusTooEarly} {
		t.Run(fmt.Sprintf("status_%d", status), func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "task is not finished", status)
			}))

			_, err := c.GetResult(context.Background(), TaskHandle{ID: "task-1"})

			var notReady *NotReadyError
			require.ErrorAs(t, err, &notReady)
			assert.Equal(t, "task-1", notReady.TaskID)
		})
	}
}

func TestGetResult(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/tasks/task-1/result", r.URL.Path)
		w.Write([]byte(`{"answer":"79 moons"}`))
	}))

	result, err := c.GetResult(context.Background(), TaskHandle{ID: "task-1"})
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(result, &decoded))
	assert.Equal(t, "79 moons", decoded["answer"])
}

// pollServer simulates a task that reports running for a fixed number of
// status polls before settling into a terminal status.
type pollServer struct {
	runningPolls int32
	finalStatus  Status
	result       string
	polls        atomic.Int32
}

func (s *pollServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/tasks":
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(TaskHandle{ID: "task-1"})
		case r.URL.Path == "/api/v1/tasks/task-1":
			status := StatusRunning
			if s.polls.Add(1) > s.runningPolls {
				status = s.finalStatus
			}
			json.NewEncoder(w).Encode(Task{ID: "task-1", Name: "CROW", Status: status})
		case r.URL.Path == "/api/v1/tasks/task-1/result":
			w.Write([]byte(s.result))
		default:
			http.NotFound(w, r)
		}
	}
}

func TestRunTask_Succeeds(t *testing.T) {
	srv := &pollServer{runningPolls: 2, finalStatus: StatusSucceeded, result: `{"answer":"42"}`}
	c, _ := newTestClient(t, srv.handler())

	result, err := c.RunTask(context.Background(), TaskRequest{Name: "CROW", Query: "q"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"42"}`, string(result))

	// First poll fires immediately after creation, so a task finishing
	// after two running polls needs exactly three.
	assert.Equal(t, int32(3), srv.polls.Load())
}

func TestRunTask_Failed(t *testing.T) {
	srv := &pollServer{runningPolls: 1, finalStatus: StatusFailed, result: `{"error":"agent exploded"}`}
	c, _ := newTestClient(t, srv.handler())

	_, err := c.RunTask(context.Background(), TaskRequest{Name: "CROW", Query: "q"})

	var failed *TaskFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "task-1", failed.TaskID)
	assert.Contains(t, string(failed.Detail), "agent exploded")
}

func TestRunTask_Timeout(t *testing.T) {
	srv := &pollServer{runningPolls: 1 << 30, finalStatus: StatusSucceeded}
	c, _ := newTestClient(t, srv.handler(),
		WithPollInterval(10*time.Millisecond),
		WithPollTimeout(55*time.Millisecond),
	)

	start := time.Now()
	_, err := c.RunTask(context.Background(), TaskRequest{Name: "CROW", Query: "q"})
	elapsed := time.Since(start)

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "task-1", timeout.TaskID)
	assert.GreaterOrEqual(t, timeout.Elapsed, 55*time.Millisecond)
	// The overshoot is bounded by one poll interval plus scheduling noise.
	assert.Less(t, elapsed, 250*time.Millisecond)
}

func TestRunTask_ContextCancelled(t *testing.T) {
	srv := &pollServer{runningPolls: 1 << 30, finalStatus: StatusSucceeded}
	c, _ := newTestClient(t, srv.handler(), WithPollTimeout(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := c.RunTask(ctx, TaskRequest{Name: "CROW", Query: "q"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunTaskSync(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/tasks/run", r.URL.Path)
		w.Write([]byte(`{"id":"task-1","name":"OWL","status":"succeeded","result":{"answer":"done"}}`))
	}))

	result, err := c.RunTaskSync(context.Background(), TaskRequest{Name: "OWL", Query: "q"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"done"}`, string(result))
}

func TestRunTaskSync_Failed(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"task-1","status":"failed","error":"boom","result":{"error":"boom"}}`))
	}))

	_, err := c.RunTaskSync(context.Background(), TaskRequest{Name: "OWL", Query: "q"})

	var failed *TaskFailedError
	require.ErrorAs(t, err, &failed)
	assert.Contains(t, string(failed.Detail), "boom")
}

func TestGet_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Task{ID: "task-1", Status: StatusQueued})
	}))

	task, err := c.GetTask(context.Background(), TaskHandle{ID: "task-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, task.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))

	_, err := c.GetTask(context.Background(), TaskHandle{ID: "task-1"})

	var transErr *TransportError
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, http.StatusServiceUnavailable, transErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPost_NeverRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))

	_, err := c.CreateTask(context.Background(), TaskRequest{Name: "CROW", Query: "q"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAuthError_AllEndpoints(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing authorization header", http.StatusUnauthorized)
	}))

	ctx := context.Background()
	handle := TaskHandle{ID: "task-1"}
	req := TaskRequest{Name: "CROW", Query: "q"}

	calls := map[string]func() error{
		"CreateTask":       func() error { _, err := c.CreateTask(ctx, req); return err },
		"BatchCreateTasks": func() error { _, err := c.BatchCreateTasks(ctx, []TaskRequest{req}); return err },
		"GetTask":          func() error { _, err := c.GetTask(ctx, handle); return err },
		"GetResult":        func() error { _, err := c.GetResult(ctx, handle); return err },
		"RunTask":          func() error { _, err := c.RunTask(ctx, req); return err },
		"RunTaskSync":      func() error { _, err := c.RunTaskSync(ctx, req); return err },
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			var authErr *AuthError
			require.ErrorAs(t, call(), &authErr)
			assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
		})
	}
}

func TestCustomHeaders(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "aviary-tests", r.Header.Get("X-Client-Name"))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(TaskHandle{ID: "task-1"})
	}), WithHeader("X-Client-Name", "aviary-tests"))

	_, err := c.CreateTask(context.Background(), TaskRequest{Name: "CROW", Query: "q"})
	require.NoError(t, err)
}

func TestCallerProvidedTaskID(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req TaskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "11111111-2222-3333-4444-555555555555", req.ID)
		require.NotNil(t, req.RuntimeConfig)
		assert.Equal(t, 120, req.RuntimeConfig.Timeout)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(TaskHandle{ID: req.ID})
	}))

	handle, err := c.CreateTask(context.Background(), TaskRequest{
		ID:            "11111111-2222-3333-4444-555555555555",
		Name:          "PHOENIX",
		Query:         "continue the analysis",
		RuntimeConfig: &RuntimeConfig{Timeout: 120},
	})
	require.NoError(t, err)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", handle.ID)
}

func TestErrorMessages(t *testing.T) {
	assert.Contains(t, (&NotReadyError{TaskID: "t1"}).Error(), "not finished")
	assert.Contains(t, (&TaskFailedError{TaskID: "t1"}).Error(), "failed")
	assert.Contains(t, (&TimeoutError{TaskID: "t1", Elapsed: time.Second}).Error(), "1s")

	err := &TransportError{Err: errors.New("connection refused")}
	assert.True(t, strings.Contains(err.Error(), "connection refused"))
}

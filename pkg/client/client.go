package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const apiPrefix = "/api/v1"

// TaskClient submits tasks to an Aviary server and polls them to completion.
type TaskClient struct {
	baseURL string
	opts    *options
	ws      *WebSocketClient
}

// New creates a new TaskClient.
func New(baseURL string, opts ...Option) (*TaskClient, error) {
	// Ensure URL doesn't have trailing slash for consistency
	baseURL = strings.TrimSuffix(baseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &TaskClient{
		baseURL: baseURL,
		opts:    o,
	}, nil
}

// CreateTask submits a task for asynchronous execution and returns its handle.
// Creation is never retried automatically: replaying a create on a flaky
// network could submit the task twice.
func (c *TaskClient) CreateTask(ctx context.Context, req TaskRequest) (TaskHandle, error) {
	if err := validateRequest(req); err != nil {
		return TaskHandle{}, err
	}

	status, body, err := c.post(ctx, "/tasks", req)
	if err != nil {
		return TaskHandle{}, err
	}
	if status != http.StatusCreated {
		return TaskHandle{}, c.writeError(status, body)
	}

	var handle TaskHandle
	if err := json.Unmarshal(body, &handle); err != nil {
		return TaskHandle{}, &TransportError{Err: fmt.Errorf("decoding response: %w", err)}
	}

	c.opts.logger.Debug().Str("task_id", handle.ID).Str("agent", req.Name).Msg("task created")
	return handle, nil
}

// BatchCreateTasks submits several tasks in one request. Handles are returned
// in the same order as the requests. The batch is atomic: either every task
// is accepted or none is.
func (c *TaskClient) BatchCreateTasks(ctx context.Context, reqs []TaskRequest) ([]TaskHandle, error) {
	if len(reqs) == 0 {
		return nil, &ValidationError{Body: "batch must contain at least one task"}
	}
	for i, req := range reqs {
		if err := validateRequest(req); err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
	}

	status, body, err := c.post(ctx, "/tasks/batch", reqs)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, c.writeError(status, body)
	}

	var handles []TaskHandle
	if err := json.Unmarshal(body, &handles); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(handles) != len(reqs) {
		return nil, &TransportError{Err: fmt.Errorf("server returned %d handles for %d tasks", len(handles), len(reqs))}
	}

	return handles, nil
}

// GetTask fetches the current server-side snapshot of a task.
func (c *TaskClient) GetTask(ctx context.Context, handle TaskHandle) (*Task, error) {
	status, body, err := c.get(ctx, "/tasks/"+handle.ID)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.readError(handle.ID, status, body)
	}

	var t Task
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("decoding response: %w", err)}
	}
	return &t, nil
}

// GetStatus fetches only the task's current status.
func (c *TaskClient) GetStatus(ctx context.Context, handle TaskHandle) (Status, error) {
	t, err := c.GetTask(ctx, handle)
	if err != nil {
		return "", err
	}
	return t.Status, nil
}

// GetResult fetches the result payload of a finished task. It returns a
// NotReadyError while the task is still queued or running.
func (c *TaskClient) GetResult(ctx context.Context, handle TaskHandle) (TaskResult, error) {
	status, body, err := c.get(ctx, "/tasks/"+handle.ID+"/result")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.readError(handle.ID, status, body)
	}
	return TaskResult(body), nil
}

// RunTask submits a task and polls it until it finishes, returning the
// result. The first status poll happens immediately after creation; later
// polls are spaced by the configured poll interval. When the task fails, a
// TaskFailedError carries the server's diagnostic payload. When the poll
// timeout elapses first, a TimeoutError is returned and the task keeps
// running server-side.
func (c *TaskClient) RunTask(ctx context.Context, req TaskRequest) (TaskResult, error) {
	handle, err := c.CreateTask(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.PollTask(ctx, handle)
}

// PollTask polls an already-submitted task until it reaches a terminal
// status, the poll timeout elapses, or ctx is cancelled.
func (c *TaskClient) PollTask(ctx context.Context, handle TaskHandle) (TaskResult, error) {
	start := time.Now()
	polls := 0

	for {
		status, err := c.GetStatus(ctx, handle)
		if err != nil {
			return nil, err
		}
		polls++

		switch status {
		case StatusSucceeded:
			return c.GetResult(ctx, handle)
		case StatusFailed:
			failed := &TaskFailedError{TaskID: handle.ID}
			if diag, derr := c.GetResult(ctx, handle); derr == nil {
				failed.Detail = json.RawMessage(diag)
			}
			return nil, failed
		}

		elapsed := time.Since(start)
		if elapsed >= c.opts.pollTimeout {
			c.opts.logger.Warn().
				Str("task_id", handle.ID).
				Int("polls", polls).
				Dur("elapsed", elapsed).
				Msg("poll timeout reached")
			return nil, &TimeoutError{TaskID: handle.ID, Elapsed: elapsed}
		}

		wait := c.opts.pollInterval
		if remaining := c.opts.pollTimeout - elapsed; wait > remaining {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RunTaskSync submits a task for synchronous execution: the server runs it
// inline and responds only once it is finished. The HTTP client timeout
// bounds the wait.
func (c *TaskClient) RunTaskSync(ctx context.Context, req TaskRequest) (TaskResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	status, body, err := c.post(ctx, "/tasks/run", req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.writeError(status, body)
	}

	// The synchronous endpoint responds with the finished task, result
	// included, so no follow-up fetch is needed.
	var t struct {
		Task
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("decoding response: %w", err)}
	}
	if t.Status == StatusFailed {
		detail := t.Result
		if len(detail) == 0 {
			detail = diagnostic(t.Error)
		}
		return nil, &TaskFailedError{TaskID: t.ID, Detail: detail}
	}

	return TaskResult(t.Result), nil
}

func validateRequest(req TaskRequest) error {
	if req.Name == "" {
		return &ValidationError{Body: "task name is required"}
	}
	if req.Query == "" {
		return &ValidationError{Body: "task query is required"}
	}
	return nil
}

func diagnostic(errMsg string) json.RawMessage {
	if errMsg == "" {
		return nil
	}
	b, _ := json.Marshal(map[string]string{"error": errMsg})
	return b
}

// post issues a single non-retried POST request.
func (c *TaskClient) post(ctx context.Context, path string, payload interface{}) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPrefix+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.opts.applyHeaders(req)

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &TransportError{Err: fmt.Errorf("reading response: %w", err)}
	}
	return resp.StatusCode, respBody, nil
}

// get issues a GET request, retrying transient failures per the retry policy.
func (c *TaskClient) get(ctx context.Context, path string) (int, []byte, error) {
	policy := c.opts.retryPolicy
	var lastErr error

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := policy.backoff(attempt - 1)
			c.opts.logger.Debug().
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Str("path", path).
				Msg("retrying request")
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPrefix+path, nil)
		if err != nil {
			return 0, nil, fmt.Errorf("building request: %w", err)
		}
		c.opts.applyHeaders(req)

		resp, err := c.opts.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil, &TransportError{Err: err}
			}
			lastErr = &TransportError{Err: err}
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = &TransportError{Err: fmt.Errorf("reading response: %w", err)}
			continue
		}

		if policy.isRetryable(resp.StatusCode) {
			lastErr = &TransportError{StatusCode: resp.StatusCode, Body: string(respBody)}
			continue
		}

		return resp.StatusCode, respBody, nil
	}

	return 0, nil, lastErr
}

// writeError maps a non-2xx status from a write endpoint to a typed error.
func (c *TaskClient) writeError(status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{StatusCode: status, Body: string(body)}
	case status >= 400 && status < 500:
		return &ValidationError{StatusCode: status, Body: string(body)}
	default:
		return &TransportError{StatusCode: status, Body: string(body)}
	}
}

// readError maps a non-2xx status from a read endpoint to a typed error.
// 409 Conflict is the server's not-finished response; 425 Too Early is
// accepted for the same meaning.
func (c *TaskClient) readError(taskID string, status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{StatusCode: status, Body: string(body)}
	case status == http.StatusConflict || status == http.StatusTooEarly:
		return &NotReadyError{TaskID: taskID, StatusCode: status}
	case status >= 400 && status < 500:
		return &ValidationError{StatusCode: status, Body: string(body)}
	default:
		return &TransportError{StatusCode: status, Body: string(body)}
	}
}

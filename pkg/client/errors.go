package client

import (
	"encoding/json"
	"fmt"
	"time"
)

// AuthError is returned when the server rejects the request's credentials
// (HTTP 401) or the credentials lack permission (HTTP 403).
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (status %d): %s", e.StatusCode, e.Body)
}

// ValidationError is returned when the server rejects the request as
// malformed or referencing something it cannot serve (4xx other than
// auth and not-ready responses).
type ValidationError struct {
	StatusCode int
	Body       string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("request rejected (status %d): %s", e.StatusCode, e.Body)
}

// NotReadyError is returned by GetResult when the task has not reached a
// terminal status yet. Callers can keep polling.
type NotReadyError struct {
	TaskID     string
	StatusCode int
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("task %s is not finished", e.TaskID)
}

// TaskFailedError is returned when a task reaches the failed status.
// Detail carries the server's diagnostic payload when one is available.
type TaskFailedError struct {
	TaskID string
	Detail json.RawMessage
}

func (e *TaskFailedError) Error() string {
	if len(e.Detail) > 0 {
		return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Detail)
	}
	return fmt.Sprintf("task %s failed", e.TaskID)
}

// TimeoutError is returned by RunTask when the poll timeout elapses before
// the task reaches a terminal status. The task keeps running server-side;
// the handle stays valid for later polling.
type TimeoutError struct {
	TaskID  string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s did not finish within %s", e.TaskID, e.Elapsed.Round(time.Millisecond))
}

// TransportError covers network failures and unexpected server errors (5xx).
// Err is non-nil for network-level failures and wraps the underlying error.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error: %v", e.Err)
	}
	return fmt.Sprintf("server error (status %d): %s", e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

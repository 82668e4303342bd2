package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aviaryhq/aviary-go/internal/events"
	"github.com/aviaryhq/aviary-go/internal/logger"
	"github.com/aviaryhq/aviary-go/internal/metrics"
	"github.com/aviaryhq/aviary-go/internal/runner"
	"github.com/aviaryhq/aviary-go/internal/store"
	"github.com/aviaryhq/aviary-go/internal/task"
)

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	store     store.Store
	runner    *runner.Runner
	publisher events.Publisher
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(s store.Store, r *runner.Runner, pub events.Publisher) *TaskHandler {
	return &TaskHandler{
		store:     s,
		runner:    r,
		publisher: pub,
	}
}

// Create handles POST /api/v1/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req task.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := h.validate(&req); msg != "" {
		h.respondError(w, http.StatusBadRequest, msg)
		return
	}

	t := task.FromRequest(&req)
	if err := h.store.Create(r.Context(), t); err != nil {
		if errors.Is(err, task.ErrTaskAlreadyExists) {
			h.respondError(w, http.StatusConflict, "task already exists")
			return
		}
		logger.Error().Err(err).Str("task_id", t.ID).Msg("failed to store task")
		h.respondError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	metrics.RecordTaskSubmission(t.Name)
	h.publishSubmitted(r, t)

	logger.Info().
		Str("task_id", t.ID).
		Str("agent", t.Name).
		Msg("task created")

	h.respondJSON(w, http.StatusCreated, t.ToHandle())
}

// CreateBatch handles POST /api/v1/tasks/batch. Handles are returned in
// input order.
func (h *TaskHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []task.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: expected a JSON array of tasks")
		return
	}
	if len(reqs) == 0 {
		h.respondError(w, http.StatusBadRequest, "batch must contain at least one task")
		return
	}

	// Validate everything before creating anything
	seen := make(map[string]bool, len(reqs))
	for i := range reqs {
		if msg := h.validate(&reqs[i]); msg != "" {
			h.respondError(w, http.StatusBadRequest, msg)
			return
		}
		if id := reqs[i].ID; id != "" {
			if seen[id] {
				h.respondError(w, http.StatusBadRequest, "duplicate task ID in batch: "+id)
				return
			}
			seen[id] = true
		}
	}

	// The batch is all-or-nothing: a failed create rolls back everything
	// stored so far.
	tasks := make([]*task.Task, 0, len(reqs))
	rollback := func() {
		for _, t := range tasks {
			if err := h.store.Delete(r.Context(), t.ID); err != nil {
				logger.Error().Err(err).Str("task_id", t.ID).Msg("failed to roll back batch task")
			}
		}
	}
	for i := range reqs {
		t := task.FromRequest(&reqs[i])
		if err := h.store.Create(r.Context(), t); err != nil {
			rollback()
			if errors.Is(err, task.ErrTaskAlreadyExists) {
				h.respondError(w, http.StatusConflict, "task already exists: "+t.ID)
				return
			}
			logger.Error().Err(err).Str("task_id", t.ID).Msg("failed to store batch task")
			h.respondError(w, http.StatusInternalServerError, "failed to create batch")
			return
		}
		tasks = append(tasks, t)
	}

	handles := make([]*task.HandleResponse, 0, len(tasks))
	for _, t := range tasks {
		metrics.RecordTaskSubmission(t.Name)
		h.publishSubmitted(r, t)
		handles = append(handles, t.ToHandle())
	}

	logger.Info().Int("count", len(handles)).Msg("batch created")
	h.respondJSON(w, http.StatusCreated, handles)
}

// RunSync handles POST /api/v1/tasks/run: the task is executed on the
// request goroutine and the finished task, result included, is returned.
func (h *TaskHandler) RunSync(w http.ResponseWriter, r *http.Request) {
	var req task.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := h.validate(&req); msg != "" {
		h.respondError(w, http.StatusBadRequest, msg)
		return
	}

	t := task.FromRequest(&req)
	metrics.RecordTaskSubmission(t.Name)

	final, err := h.runner.RunSync(r.Context(), t)
	if err != nil {
		if errors.Is(err, task.ErrTaskAlreadyExists) {
			h.respondError(w, http.StatusConflict, "task already exists")
			return
		}
		logger.Error().Err(err).Str("task_id", t.ID).Msg("synchronous run failed")
		h.respondError(w, http.StatusInternalServerError, "failed to run task")
		return
	}

	h.respondJSON(w, http.StatusOK, final)
}

// Get handles GET /api/v1/tasks/{taskID}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		h.respondError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	t, err := h.store.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			h.respondError(w, http.StatusNotFound, "task not found")
			return
		}
		logger.Error().Err(err).Str("task_id", taskID).Msg("failed to get task")
		h.respondError(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	h.respondJSON(w, http.StatusOK, t.ToResponse())
}

// GetResult handles GET /api/v1/tasks/{taskID}/result. A task that has not
// reached a terminal status yields 409 so clients never see partial output.
func (h *TaskHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		h.respondError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	t, err := h.store.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			h.respondError(w, http.StatusNotFound, "task not found")
			return
		}
		logger.Error().Err(err).Str("task_id", taskID).Msg("failed to get task")
		h.respondError(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	if !t.Status.IsTerminal() {
		h.respondError(w, http.StatusConflict, "task is not finished")
		return
	}

	result := t.Result
	if len(result) == 0 {
		result = []byte("null")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result); err != nil {
		logger.Error().Err(err).Msg("failed to write result response")
	}
}

// validate returns an error message for a bad create request, or "".
func (h *TaskHandler) validate(req *task.CreateRequest) string {
	if req.Name == "" {
		return "agent name is required"
	}
	if req.Query == "" {
		return "query is required"
	}
	if h.runner != nil && !h.runner.HasAgent(req.Name) {
		return "unknown agent: " + req.Name
	}
	if req.ID != "" {
		if _, err := uuid.Parse(req.ID); err != nil {
			return "task ID must be a UUID"
		}
	}
	return ""
}

func (h *TaskHandler) publishSubmitted(r *http.Request, t *task.Task) {
	if h.publisher == nil {
		return
	}
	ev := events.NewEvent(events.EventTaskSubmitted, events.TaskEventData(t.ID, t.Name, t.Status.String(), nil))
	if err := h.publisher.Publish(r.Context(), ev); err != nil {
		logger.Error().Err(err).Str("task_id", t.ID).Msg("failed to publish event")
	}
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *TaskHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

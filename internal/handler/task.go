package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tasklist/tasklist/internal/auth"
	"github.com/tasklist/tasklist/internal/handler/dto"
	"github.com/tasklist/tasklist/internal/model"
	"github.com/tasklist/tasklist/internal/service"
)

// TaskHandler handles HTTP requests for the caller's own tasks.
type TaskHandler struct {
	svc    *service.TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(svc *service.TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		svc:    svc,
		logger: logger,
	}
}

// List handles GET /api/v1/tasks/.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	input := service.ListTasksInput{
		Search:   query.Get("search"),
		Ordering: query.Get("ordering"),
	}

	if raw := query.Get("completed"); raw != "" {
		completed, ok := parseBool(raw)
		if !ok {
			handleServiceError(w, r, h.logger, service.InvalidBoolError("completed"))
			return
		}
		input.Completed = &completed
	}

	tasks, err := h.svc.ListTasks(r.Context(), auth.IdentityFromContext(r.Context()), input)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToTaskListResponse(tasks))
}

// Create handles POST /api/v1/tasks/.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.TaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	task, err := h.svc.CreateTask(r.Context(), auth.IdentityFromContext(r.Context()), service.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("task_created",
		"task_id", task.ID,
		"user_id", task.OwnerID,
	)

	writeJSON(w, http.StatusCreated, dto.ToTaskResponse(task))
}

// Get handles GET /api/v1/tasks/{id}/.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.svc.GetTask(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToTaskResponse(task))
}

// Update handles PATCH /api/v1/tasks/{id}/.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	task, err := h.svc.UpdateTask(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), taskRequestDecoder(r))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("task_updated",
		"task_id", task.ID,
		"user_id", task.OwnerID,
		"partial", true,
	)

	writeJSON(w, http.StatusOK, dto.ToTaskResponse(task))
}

// Replace handles PUT /api/v1/tasks/{id}/.
func (h *TaskHandler) Replace(w http.ResponseWriter, r *http.Request) {
	task, err := h.svc.ReplaceTask(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), taskRequestDecoder(r))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("task_updated",
		"task_id", task.ID,
		"user_id", task.OwnerID,
		"partial", false,
	)

	writeJSON(w, http.StatusOK, dto.ToTaskResponse(task))
}

// Delete handles DELETE /api/v1/tasks/{id}/.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	identity := auth.IdentityFromContext(r.Context())

	if err := h.svc.DeleteTask(r.Context(), identity, id); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("task_deleted",
		"task_id", id,
		"user_id", identity.UserID,
	)

	w.WriteHeader(http.StatusNoContent)
}

// taskRequestDecoder defers reading the request body until the service asks for it.
func taskRequestDecoder(r *http.Request) service.TaskDecoder {
	return func(u *model.TaskUpdate) error {
		var req dto.TaskRequest
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		*u = model.TaskUpdate{
			Title:       req.Title,
			Description: req.Description,
			Completed:   req.Completed,
		}
		return nil
	}
}

// parseBool accepts the boolean spellings used by query filters.
func parseBool(s string) (bool, bool) {
	switch s {
	case "true", "True", "1":
		return true, true
	case "false", "False", "0":
		return false, true
	}
	return false, false
}

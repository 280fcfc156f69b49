package handler

import (
	"log/slog"
	"net/http"

	"github.com/tasklist/tasklist/internal/auth"
	"github.com/tasklist/tasklist/internal/handler/dto"
	"github.com/tasklist/tasklist/internal/service"
)

// AdminHandler provides admin-only endpoints.
type AdminHandler struct {
	svc    *service.TaskService
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(svc *service.TaskService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		svc:    svc,
		logger: logger,
	}
}

// ListTasks handles GET /api/v1/admin/tasks/.
// Returns every owner's tasks, newest first.
func (h *AdminHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.ListAllTasks(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToTaskListResponse(tasks))
}

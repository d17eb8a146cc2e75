package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/service"
)

// TaskHandler serves /tasks. Every route sits behind auth.RequireAuth, so
// the caller is always in the request context.
type TaskHandler struct {
	tasks  *service.TaskService
	logger *slog.Logger
}

func NewTaskHandler(tasks *service.TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

// createTaskRequest has no owner field: an "owner" in the body is ignored.
type createTaskRequest struct {
	Description string `json:"description"`
	Completed   *bool  `json:"completed"`
}

// HandleCreate adds a task for the caller.
//
// HTTP: POST /tasks → 201 task
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var req createTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	task, err := h.tasks.Create(r.Context(), user, service.CreateTaskInput{
		Description: req.Description,
		Completed:   req.Completed,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// HandleList returns the caller's tasks.
//
// HTTP: GET /tasks?completed=true&sortBy=createdAt:desc&limit=10&skip=20
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	q := r.URL.Query()
	params, err := service.ParseListParams(q.Get("completed"), q.Get("sortBy"), q.Get("limit"), q.Get("skip"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	tasks, err := h.tasks.List(r.Context(), user, params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// HandleGet returns one of the caller's tasks.
//
// HTTP: GET /tasks/{id}
func (h *TaskHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	task, err := h.tasks.Get(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// HandleUpdate applies an allow-listed patch to one of the caller's tasks.
//
// HTTP: PATCH /tasks/{id} with any of {"description", "completed"}
func (h *TaskHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var raw map[string]json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		writeError(w, r, err)
		return
	}
	patch, err := service.ParseTaskPatch(raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	task, err := h.tasks.Update(r.Context(), user, chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// HandleDelete removes one of the caller's tasks and returns it.
//
// HTTP: DELETE /tasks/{id}
func (h *TaskHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	task, err := h.tasks.Delete(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

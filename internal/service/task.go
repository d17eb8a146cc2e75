package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

// TaskService manages the tasks of the authenticated user.
//
// OWNER SCOPING:
// Every method takes the caller as *model.User and passes user.ID down to
// the repository, which matches on (id, owner). A task that belongs to
// somebody else is therefore reported as not found, exactly like a task
// that does not exist.
type TaskService struct {
	repo   repository.TaskRepository
	logger *slog.Logger
}

func NewTaskService(repo repository.TaskRepository, logger *slog.Logger) *TaskService {
	return &TaskService{repo: repo, logger: logger}
}

// CreateTaskInput is the client data for a new task. There is no owner
// field: the owner is always the caller.
type CreateTaskInput struct {
	Description string
	Completed   *bool
}

// TaskPatch is a validated partial update. Nil fields are left unchanged.
type TaskPatch struct {
	Description *string
	Completed   *bool
}

func (s *TaskService) Create(ctx context.Context, user *model.User, in CreateTaskInput) (*model.Task, error) {
	desc, err := normalizeDescription(in.Description)
	if err != nil {
		return nil, err
	}

	task := &model.Task{
		Description: desc,
		Owner:       user.ID,
	}
	if in.Completed != nil {
		task.Completed = *in.Completed
	}

	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, apperror.Internal("Unable to create task", err)
	}

	s.logger.Info("task created",
		slog.String("id", task.ID),
		slog.String("owner", task.Owner),
	)
	return task, nil
}

// List returns the caller's tasks matching params.
func (s *TaskService) List(ctx context.Context, user *model.User, params TaskListParams) ([]model.Task, error) {
	tasks, err := s.repo.ListTasks(ctx, repository.TaskFilter{
		OwnerID:   user.ID,
		Completed: params.Completed,
		SortBy:    params.SortBy,
		SortDesc:  params.SortDesc,
		Limit:     params.Limit,
		Skip:      params.Skip,
	})
	if err != nil {
		s.logger.Error("failed to list tasks",
			slog.String("owner", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Internal("Unable to list tasks", err)
	}
	return tasks, nil
}

func (s *TaskService) Get(ctx context.Context, user *model.User, id string) (*model.Task, error) {
	task, err := s.repo.GetTask(ctx, strings.TrimSpace(id), user.ID)
	if err != nil {
		return nil, storeError("Unable to load task", err)
	}
	return task, nil
}

// Update applies patch to one of the caller's tasks.
func (s *TaskService) Update(ctx context.Context, user *model.User, id string, patch TaskPatch) (*model.Task, error) {
	task, err := s.Get(ctx, user, id)
	if err != nil {
		return nil, err
	}

	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Completed != nil {
		task.Completed = *patch.Completed
	}

	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return nil, storeError("Unable to update task", err)
	}

	s.logger.Info("task updated", slog.String("id", task.ID))
	return task, nil
}

// Delete removes one of the caller's tasks and returns it.
func (s *TaskService) Delete(ctx context.Context, user *model.User, id string) (*model.Task, error) {
	task, err := s.repo.DeleteTask(ctx, strings.TrimSpace(id), user.ID)
	if err != nil {
		return nil, storeError("Unable to delete task", err)
	}

	s.logger.Info("task deleted", slog.String("id", task.ID))
	return task, nil
}

// ParseTaskPatch validates a raw JSON update against the allow-list
// {description, completed}. Any other key, or a value of the wrong type,
// rejects the whole patch.
func ParseTaskPatch(raw map[string]json.RawMessage) (TaskPatch, error) {
	var patch TaskPatch
	for key, value := range raw {
		switch key {
		case "description":
			var desc string
			if err := decodeField(key, value, &desc); err != nil {
				return TaskPatch{}, err
			}
			desc, err := normalizeDescription(desc)
			if err != nil {
				return TaskPatch{}, err
			}
			patch.Description = &desc
		case "completed":
			var done bool
			if err := decodeField(key, value, &done); err != nil {
				return TaskPatch{}, err
			}
			patch.Completed = &done
		default:
			return TaskPatch{}, apperror.ValidationFailed(key, "Invalid updates!")
		}
	}
	return patch, nil
}

// decodeField unmarshals one patch value, refusing null and type mismatches.
func decodeField(key string, value json.RawMessage, dst any) error {
	if string(value) == "null" {
		return apperror.ValidationFailed(key, key+" must not be null")
	}
	if err := json.Unmarshal(value, dst); err != nil {
		return apperror.ValidationFailed(key, key+" has the wrong type")
	}
	return nil
}

// storeError passes not-found errors through and wraps everything else as
// an internal failure.
func storeError(msg string, err error) error {
	if errors.Is(err, apperror.ErrNotFound) {
		return err
	}
	return apperror.Internal(msg, err)
}

// Package repository declares the storage contracts the services depend on.
// Implementations live in subpackages (see repository/sqlite).
package repository

import (
	"context"

	"github.com/sakif/task-manager/internal/model"
)

// Unbounded is the Limit/Skip value meaning "no limit" / "no offset".
const Unbounded = -1

// SortField names a sortable task attribute.
type SortField string

const (
	SortByCreatedAt   SortField = "createdAt"
	SortByUpdatedAt   SortField = "updatedAt"
	SortByCompleted   SortField = "completed"
	SortByDescription SortField = "description"
)

// TaskFilter is the criteria for listing one owner's tasks.
//
// OwnerID is mandatory: implementations must always restrict by it.
// A nil Completed matches both states. An empty SortBy keeps the default
// (oldest first). Limit and Skip use Unbounded for "not set".
type TaskFilter struct {
	OwnerID   string
	Completed *bool
	SortBy    SortField
	SortDesc  bool
	Limit     int
	Skip      int
}

type UserRepository interface {
	// CreateUser inserts the user and returns apperror.ErrConflict when the
	// email is already taken.
	CreateUser(ctx context.Context, user *model.User) error
	// GetUserByID loads the user including its active token set.
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UpdateUser writes name, age, email, and password hash.
	UpdateUser(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, id string) error

	AddToken(ctx context.Context, userID, token string) error
	RemoveToken(ctx context.Context, userID, token string) error
	ClearTokens(ctx context.Context, userID string) error

	SetAvatar(ctx context.Context, userID string, png []byte) error
	ClearAvatar(ctx context.Context, userID string) error
	// GetAvatar returns apperror.ErrNotFound when the user or avatar is missing.
	GetAvatar(ctx context.Context, userID string) ([]byte, error)
}

// TaskRepository stores tasks. Every lookup and mutation is keyed by
// (id, owner) so a caller can never reach another user's rows.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *model.Task) error
	GetTask(ctx context.Context, id, ownerID string) (*model.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error)
	UpdateTask(ctx context.Context, task *model.Task) error
	DeleteTask(ctx context.Context, id, ownerID string) (*model.Task, error)
	// DeleteTasksByOwner removes every task of ownerID and reports how many.
	DeleteTasksByOwner(ctx context.Context, ownerID string) (int64, error)
}

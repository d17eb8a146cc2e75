package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

func newTaskFixture(t *testing.T) (*testEnv, *model.User, *model.User) {
	t.Helper()
	env := newTestEnv(t)
	alice := env.signUp(t, "Alice", "alice@x.com").User
	bob := env.signUp(t, "Bob", "bob@x.com").User
	return env, alice, bob
}

// =========================================================================
// Create TESTS
// =========================================================================

func TestCreateTask(t *testing.T) {
	env, alice, _ := newTaskFixture(t)

	task, err := env.task.Create(context.Background(), alice, CreateTaskInput{Description: "  Buy milk "})
	require.NoError(t, err)

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "Buy milk", task.Description)
	assert.False(t, task.Completed, "completed defaults to false")
	assert.Equal(t, alice.ID, task.Owner)

	done, err := env.task.Create(context.Background(), alice, CreateTaskInput{Description: "Walk", Completed: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, done.Completed)
}

func TestCreateTask_EmptyDescription(t *testing.T) {
	env, alice, _ := newTaskFixture(t)

	_, err := env.task.Create(context.Background(), alice, CreateTaskInput{Description: "   "})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Zero(t, env.tasks.countOwnedBy(alice.ID))
}

// =========================================================================
// List TESTS
// =========================================================================

func TestListTasks_ScopedAndFiltered(t *testing.T) {
	env, alice, bob := newTaskFixture(t)
	ctx := context.Background()

	for i, done := range []bool{true, false, true} {
		_, err := env.task.Create(ctx, alice, CreateTaskInput{Description: "alice " + string(rune('a'+i)), Completed: &done})
		require.NoError(t, err)
	}
	_, err := env.task.Create(ctx, bob, CreateTaskInput{Description: "bob's"})
	require.NoError(t, err)

	all, err := env.task.List(ctx, alice, TaskListParams{Limit: repository.Unbounded, Skip: repository.Unbounded})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, alice.ID, env.tasks.lastFilter.OwnerID)

	done, err := env.task.List(ctx, alice, TaskListParams{Completed: boolPtr(true)})
	require.NoError(t, err)
	open, err := env.task.List(ctx, alice, TaskListParams{Completed: boolPtr(false)})
	require.NoError(t, err)

	assert.Len(t, done, 2)
	assert.Len(t, open, 1)
	for _, task := range done {
		assert.True(t, task.Completed)
	}
	assert.ElementsMatch(t, all, append(done, open...))
}

func TestListTasks_PassesCriteria(t *testing.T) {
	env, alice, _ := newTaskFixture(t)

	params := TaskListParams{SortBy: repository.SortByDescription, SortDesc: true, Limit: 5, Skip: 10}
	_, err := env.task.List(context.Background(), alice, params)
	require.NoError(t, err)

	assert.Equal(t, repository.TaskFilter{
		OwnerID:  alice.ID,
		SortBy:   repository.SortByDescription,
		SortDesc: true,
		Limit:    5,
		Skip:     10,
	}, env.tasks.lastFilter)
}

func TestListTasks_StoreErrorIsInternal(t *testing.T) {
	env, alice, _ := newTaskFixture(t)
	env.tasks.listErr = errDatabase

	_, err := env.task.List(context.Background(), alice, TaskListParams{})
	assert.ErrorIs(t, err, apperror.ErrInternal)
}

// =========================================================================
// OWNERSHIP TESTS
// =========================================================================

func TestTask_OwnershipIsolation(t *testing.T) {
	env, alice, bob := newTaskFixture(t)
	ctx := context.Background()

	task, err := env.task.Create(ctx, alice, CreateTaskInput{Description: "private"})
	require.NoError(t, err)

	_, err = env.task.Get(ctx, bob, task.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = env.task.Update(ctx, bob, task.ID, TaskPatch{Completed: boolPtr(true)})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = env.task.Delete(ctx, bob, task.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	// Untouched for the owner.
	got, err := env.task.Get(ctx, alice, task.ID)
	require.NoError(t, err)
	assert.False(t, got.Completed)
}

func TestUpdateAndDeleteTask(t *testing.T) {
	env, alice, _ := newTaskFixture(t)
	ctx := context.Background()

	task, err := env.task.Create(ctx, alice, CreateTaskInput{Description: "draft"})
	require.NoError(t, err)

	desc := "final"
	updated, err := env.task.Update(ctx, alice, task.ID, TaskPatch{Description: &desc, Completed: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Description)
	assert.True(t, updated.Completed)
	assert.Equal(t, alice.ID, updated.Owner)

	deleted, err := env.task.Delete(ctx, alice, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, deleted.ID)

	_, err = env.task.Get(ctx, alice, task.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// =========================================================================
// ParseTaskPatch TESTS
// =========================================================================

func rawPatch(t *testing.T, body string) map[string]json.RawMessage {
	t.Helper()
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &raw))
	return raw
}

func TestParseTaskPatch(t *testing.T) {
	patch, err := ParseTaskPatch(rawPatch(t, `{"description":" new ","completed":true}`))
	require.NoError(t, err)
	require.NotNil(t, patch.Description)
	require.NotNil(t, patch.Completed)
	assert.Equal(t, "new", *patch.Description)
	assert.True(t, *patch.Completed)

	empty, err := ParseTaskPatch(rawPatch(t, `{}`))
	require.NoError(t, err)
	assert.Equal(t, TaskPatch{}, empty)
}

func TestParseTaskPatch_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"owner is not updatable", `{"owner":"other"}`},
		{"owner alongside allowed field", `{"completed":true,"owner":"other"}`},
		{"id is not updatable", `{"id":"x"}`},
		{"completed wrong type", `{"completed":"yes"}`},
		{"description wrong type", `{"description":42}`},
		{"description null", `{"description":null}`},
		{"description blank", `{"description":"  "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch, err := ParseTaskPatch(rawPatch(t, tt.body))
			assert.True(t, errors.Is(err, apperror.ErrValidation), "err = %v", err)
			assert.Equal(t, TaskPatch{}, patch, "nothing is applied on failure")
		})
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/avatar"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================
//
// In-memory stand-ins for the repositories and the mailer. They follow the
// same contracts as the SQLite implementation: lookups return apperror
// NotFound, duplicate emails return apperror Conflict, and returned values are
// copies so tests cannot reach into the fake's state by accident.

type fakeUserRepo struct {
	users   map[string]*model.User
	avatars map[string][]byte
	nextID  int

	// set to a non-nil error to simulate a database failure
	createErr error
	updateErr error
	deleteErr error
	tokenErr  error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:   make(map[string]*model.User),
		avatars: make(map[string][]byte),
	}
}

func (f *fakeUserRepo) emailTaken(email, exceptID string) bool {
	for id, u := range f.users {
		if u.Email == email && id != exceptID {
			return true
		}
	}
	return false
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.emailTaken(user.Email, "") {
		return apperror.Conflict("user", user.Email)
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	copied.Tokens = slices.Clone(u.Tokens)
	return &copied, nil
}

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	for id, u := range f.users {
		if u.Email == email {
			return f.GetUserByID(ctx, id)
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) UpdateUser(_ context.Context, user *model.User) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	stored, ok := f.users[user.ID]
	if !ok {
		return apperror.NotFound("user", user.ID)
	}
	if f.emailTaken(user.Email, user.ID) {
		return apperror.Conflict("user", user.Email)
	}
	stored.Name = user.Name
	stored.Age = user.Age
	stored.Email = user.Email
	stored.PasswordHash = user.PasswordHash
	return nil
}

func (f *fakeUserRepo) DeleteUser(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(f.users, id)
	delete(f.avatars, id)
	return nil
}

func (f *fakeUserRepo) AddToken(_ context.Context, userID, token string) error {
	if f.tokenErr != nil {
		return f.tokenErr
	}
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	u.Tokens = append(u.Tokens, token)
	return nil
}

func (f *fakeUserRepo) RemoveToken(_ context.Context, userID, token string) error {
	if u, ok := f.users[userID]; ok {
		u.Tokens = slices.DeleteFunc(u.Tokens, func(t string) bool { return t == token })
	}
	return nil
}

func (f *fakeUserRepo) ClearTokens(_ context.Context, userID string) error {
	if u, ok := f.users[userID]; ok {
		u.Tokens = nil
	}
	return nil
}

func (f *fakeUserRepo) SetAvatar(_ context.Context, userID string, png []byte) error {
	if _, ok := f.users[userID]; !ok {
		return apperror.NotFound("user", userID)
	}
	f.avatars[userID] = png
	return nil
}

func (f *fakeUserRepo) ClearAvatar(_ context.Context, userID string) error {
	if _, ok := f.users[userID]; !ok {
		return apperror.NotFound("user", userID)
	}
	delete(f.avatars, userID)
	return nil
}

func (f *fakeUserRepo) GetAvatar(_ context.Context, userID string) ([]byte, error) {
	if _, ok := f.users[userID]; !ok {
		return nil, apperror.NotFound("user", userID)
	}
	data, ok := f.avatars[userID]
	if !ok {
		return nil, apperror.NotFound("avatar", userID)
	}
	return data, nil
}

type fakeTaskRepo struct {
	tasks  map[string]*model.Task
	nextID int
	clock  time.Time

	listErr   error
	deleteErr error
	// lastFilter records the filter passed to ListTasks.
	lastFilter repository.TaskFilter
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{
		tasks: make(map[string]*model.Task),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeTaskRepo) CreateTask(_ context.Context, task *model.Task) error {
	f.nextID++
	f.clock = f.clock.Add(time.Second)
	task.ID = fmt.Sprintf("task-%02d", f.nextID)
	task.CreatedAt = f.clock
	task.UpdatedAt = f.clock
	stored := *task
	f.tasks[task.ID] = &stored
	return nil
}

func (f *fakeTaskRepo) GetTask(_ context.Context, id, ownerID string) (*model.Task, error) {
	t, ok := f.tasks[id]
	if !ok || t.Owner != ownerID {
		return nil, apperror.NotFound("task", id)
	}
	copied := *t
	return &copied, nil
}

func (f *fakeTaskRepo) ListTasks(_ context.Context, filter repository.TaskFilter) ([]model.Task, error) {
	f.lastFilter = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Task
	for _, t := range f.tasks {
		if t.Owner != filter.OwnerID {
			continue
		}
		if filter.Completed != nil && t.Completed != *filter.Completed {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTaskRepo) UpdateTask(_ context.Context, task *model.Task) error {
	stored, ok := f.tasks[task.ID]
	if !ok || stored.Owner != task.Owner {
		return apperror.NotFound("task", task.ID)
	}
	stored.Description = task.Description
	stored.Completed = task.Completed
	return nil
}

func (f *fakeTaskRepo) DeleteTask(_ context.Context, id, ownerID string) (*model.Task, error) {
	t, ok := f.tasks[id]
	if !ok || t.Owner != ownerID {
		return nil, apperror.NotFound("task", id)
	}
	delete(f.tasks, id)
	return t, nil
}

func (f *fakeTaskRepo) DeleteTasksByOwner(_ context.Context, ownerID string) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	var n int64
	for id, t := range f.tasks {
		if t.Owner == ownerID {
			delete(f.tasks, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeTaskRepo) countOwnedBy(ownerID string) int {
	n := 0
	for _, t := range f.tasks {
		if t.Owner == ownerID {
			n++
		}
	}
	return n
}

// fakeMailer records sends. A non-nil err makes every send fail.
type fakeMailer struct {
	mu       sync.Mutex
	welcomes []string
	goodbyes []string
	err      error
}

func (m *fakeMailer) SendWelcome(_ context.Context, email, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.welcomes = append(m.welcomes, email)
	return m.err
}

func (m *fakeMailer) SendGoodbye(_ context.Context, email, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goodbyes = append(m.goodbyes, email)
	return m.err
}

// =========================================================================
// HELPERS
// =========================================================================

var errDatabase = errors.New("database is on fire")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testPasswords(t *testing.T) *auth.PasswordService {
	t.Helper()
	ps, err := auth.NewPasswordService(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewPasswordService: %v", err)
	}
	return ps
}

type testEnv struct {
	users   *fakeUserRepo
	tasks   *fakeTaskRepo
	mailer  *fakeMailer
	auth    *AuthService
	task    *TaskService
	profile *ProfileService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", 0)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	passwords := testPasswords(t)
	logger := testLogger()

	env := &testEnv{
		users:  newFakeUserRepo(),
		tasks:  newFakeTaskRepo(),
		mailer: &fakeMailer{},
	}
	env.auth = NewAuthService(env.users, tokens, passwords, env.mailer, logger)
	env.task = NewTaskService(env.tasks, logger)
	env.profile = NewProfileService(env.users, env.tasks, passwords, avatar.NewNormalizer(0), env.mailer, logger)
	return env
}

// signUp creates an account and fails the test on error.
func (e *testEnv) signUp(t *testing.T, name, email string) *AuthResult {
	t.Helper()
	res, err := e.auth.SignUp(context.Background(), SignUpInput{
		Name:     name,
		Email:    email,
		Password: "workingexample",
	})
	if err != nil {
		t.Fatalf("SignUp(%q) error = %v", email, err)
	}
	return res
}

func boolPtr(b bool) *bool { return &b }

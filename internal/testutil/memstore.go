package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tasklist/tasklist/internal/model"
	"github.com/tasklist/tasklist/internal/repository"
)

// MemoryStore is an in-process stand-in for the Postgres repository.
// It mirrors the repository's error contract so services behave identically.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*model.User
	tasks map[string]*model.Task
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*model.User),
		tasks: make(map[string]*model.Task),
	}
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// CreateUser stores a copy of the user.
func (m *MemoryStore) CreateUser(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == user.Username {
			return repository.ErrUsernameTaken
		}
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

// GetUserByID returns a copy of the user.
func (m *MemoryStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// GetUserByUsername returns a copy of the user.
func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

// SetUserAdmin grants or revokes the admin flag.
func (m *MemoryStore) SetUserAdmin(ctx context.Context, username string, isAdmin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == username {
			u.IsAdmin = isAdmin
			return nil
		}
	}
	return repository.ErrUserNotFound
}

// CountUsers returns how many users share the username.
func (m *MemoryStore) CountUsers(username string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, u := range m.users {
		if u.Username == username {
			n++
		}
	}
	return n
}

// CreateTask stores a copy of the task.
func (m *MemoryStore) CreateTask(ctx context.Context, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[task.OwnerID]; !ok {
		return fmt.Errorf("failed to create task: owner %s does not exist", task.OwnerID)
	}
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

// GetTaskByID returns a copy of the task regardless of owner.
func (m *MemoryStore) GetTaskByID(ctx context.Context, id string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	return m.withOwnerName(t), nil
}

// ListTasks applies the filter the same way the SQL query does.
func (m *MemoryStore) ListTasks(ctx context.Context, filter model.TaskFilter) ([]*model.Task, error) {
	orderings := filter.Orderings()
	for _, o := range orderings {
		if !o.IsValid() {
			return nil, repository.ErrInvalidOrdering
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	terms := filter.SearchTerms()
	out := make([]*model.Task, 0)
	for _, t := range m.tasks {
		if filter.OwnerID != "" && t.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Completed != nil && t.Completed != *filter.Completed {
			continue
		}
		if !matchesAll(t, terms) {
			continue
		}
		out = append(out, m.withOwnerName(t))
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		for _, o := range orderings {
			ka, kb := orderKey(a, o), orderKey(b, o)
			if ka.Equal(kb) {
				continue
			}
			if o.Descending() {
				return ka.After(kb)
			}
			return ka.Before(kb)
		}
		if orderings[0].Descending() {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})

	return out, nil
}

// UpdateTask overwrites the mutable fields.
func (m *MemoryStore) UpdateTask(ctx context.Context, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[task.ID]
	if !ok {
		return repository.ErrTaskNotFound
	}
	t.Title = task.Title
	t.Description = task.Description
	t.Completed = task.Completed
	t.UpdatedAt = task.UpdatedAt
	return nil
}

// DeleteTask removes the task.
func (m *MemoryStore) DeleteTask(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[id]; !ok {
		return repository.ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

// TaskCount returns the number of stored tasks.
func (m *MemoryStore) TaskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func (m *MemoryStore) withOwnerName(t *model.Task) *model.Task {
	cp := *t
	if u, ok := m.users[t.OwnerID]; ok {
		cp.OwnerName = u.Username
	}
	return &cp
}

func orderKey(t *model.Task, o model.TaskOrdering) time.Time {
	if o.Column() == "updated_at" {
		return t.UpdatedAt
	}
	return t.CreatedAt
}

// matchesAll mirrors ILIKE: every term must appear in the title or description.
func matchesAll(t *model.Task, terms []string) bool {
	title, desc := strings.ToLower(t.Title), strings.ToLower(t.Description)
	for _, term := range terms {
		term = strings.ToLower(term)
		if !strings.Contains(title, term) && !strings.Contains(desc, term) {
			return false
		}
	}
	return true
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/tasklist/tasklist/internal/metrics"
	"github.com/tasklist/tasklist/internal/model"
	"github.com/tasklist/tasklist/internal/repository"
)

// TaskStore is the persistence contract for tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, task *model.Task) error
	GetTaskByID(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, filter model.TaskFilter) ([]*model.Task, error)
	UpdateTask(ctx context.Context, task *model.Task) error
	DeleteTask(ctx context.Context, id string) error
}

// TaskService handles task business logic and authorization.
type TaskService struct {
	store   TaskStore
	policy  *Policy
	metrics metrics.Recorder
	now     func() time.Time
}

// NewTaskService creates a new TaskService.
func NewTaskService(store TaskStore, policy *Policy, recorder metrics.Recorder) *TaskService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if policy == nil {
		policy = NewPolicy(recorder)
	}
	return &TaskService{
		store:   store,
		policy:  policy,
		metrics: recorder,
		now:     time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *TaskService) WithClock(now func() time.Time) *TaskService {
	s.now = now
	return s
}

// ListTasksInput holds the query parameters of a task listing.
type ListTasksInput struct {
	Completed *bool
	Search    string
	Ordering  string
}

// CreateTaskInput defines input for creating a task.
// Nil means the field was not supplied.
type CreateTaskInput struct {
	Title       *string
	Description *string
	Completed   *bool
}

// TaskDecoder fills a TaskUpdate from request input.
// Update and replace call it only after ownership has been confirmed.
type TaskDecoder func(*model.TaskUpdate) error

// ListTasks returns the caller's own tasks matching the input.
// Ordering is a comma separated list of sort keys; an empty list uses the default.
func (s *TaskService) ListTasks(ctx context.Context, identity *model.Identity, input ListTasksInput) ([]*model.Task, error) {
	ordering := model.SplitTaskOrderings(input.Ordering)
	for _, o := range ordering {
		if !o.IsValid() {
			return nil, NewValidationError("ordering",
				fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", o))
		}
	}

	filter, err := s.policy.ScopeCollection(identity, model.TaskFilter{
		Completed: input.Completed,
		Search:    strings.TrimSpace(input.Search),
		Ordering:  ordering,
	})
	if err != nil {
		return nil, err
	}

	tasks, err := s.store.ListTasks(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// CreateTask creates a task owned by the caller.
func (s *TaskService) CreateTask(ctx context.Context, identity *model.Identity, input CreateTaskInput) (*model.Task, error) {
	if identity == nil || identity.UserID == "" {
		return nil, ErrUnauthenticated
	}

	update, err := normalizeTaskUpdate(model.TaskUpdate{
		Title:       input.Title,
		Description: input.Description,
		Completed:   input.Completed,
	}, true)
	if err != nil {
		return nil, err
	}

	task := &model.Task{}
	update.Apply(task)

	now := s.now().UTC().Truncate(time.Microsecond)
	task.ID = newTaskID(now)
	task.OwnerID = identity.UserID
	task.OwnerName = identity.Username
	task.CreatedAt = now
	task.UpdatedAt = now

	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.metrics.IncTaskCreated()
	return task, nil
}

// GetTask retrieves a task the caller owns.
func (s *TaskService) GetTask(ctx context.Context, identity *model.Identity, id string) (*model.Task, error) {
	return s.loadOwned(ctx, identity, id)
}

// UpdateTask applies a partial update to a task the caller owns.
// The body is decoded only once the caller is known to own the task.
func (s *TaskService) UpdateTask(ctx context.Context, identity *model.Identity, id string, decode TaskDecoder) (*model.Task, error) {
	task, err := s.loadOwned(ctx, identity, id)
	if err != nil {
		return nil, err
	}

	update, err := decodeTaskUpdate(decode, false)
	if err != nil {
		return nil, err
	}

	update.Apply(task)
	return s.save(ctx, task)
}

// ReplaceTask overwrites every mutable field of a task the caller owns.
// Omitted optional fields reset to their defaults.
func (s *TaskService) ReplaceTask(ctx context.Context, identity *model.Identity, id string, decode TaskDecoder) (*model.Task, error) {
	task, err := s.loadOwned(ctx, identity, id)
	if err != nil {
		return nil, err
	}

	update, err := decodeTaskUpdate(decode, true)
	if err != nil {
		return nil, err
	}

	task.Description = ""
	task.Completed = false
	update.Apply(task)
	return s.save(ctx, task)
}

// DeleteTask permanently removes a task the caller owns.
func (s *TaskService) DeleteTask(ctx context.Context, identity *model.Identity, id string) error {
	if _, err := s.loadOwned(ctx, identity, id); err != nil {
		return err
	}

	if err := s.store.DeleteTask(ctx, id); err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}

	s.metrics.IncTaskDeleted()
	return nil
}

// ListAllTasks returns every task across owners, newest first.
// The admin check runs before the store is touched.
func (s *TaskService) ListAllTasks(ctx context.Context, identity *model.Identity) ([]*model.Task, error) {
	if err := s.policy.RequireAdmin(identity); err != nil {
		return nil, err
	}

	tasks, err := s.store.ListTasks(ctx, model.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list all tasks: %w", err)
	}
	return tasks, nil
}

// loadOwned fetches a task without owner scoping, then enforces ownership.
// A missing task is ErrTaskNotFound; someone else's task is ErrForbidden.
func (s *TaskService) loadOwned(ctx context.Context, identity *model.Identity, id string) (*model.Task, error) {
	if identity == nil || identity.UserID == "" {
		return nil, ErrUnauthenticated
	}

	task, err := s.store.GetTaskByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	if err := s.policy.CheckOwnership(identity, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) save(ctx context.Context, task *model.Task) (*model.Task, error) {
	task.UpdatedAt = nextUpdatedAt(task.UpdatedAt, s.now())

	if err := s.store.UpdateTask(ctx, task); err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	s.metrics.IncTaskUpdated()
	return task, nil
}

// nextUpdatedAt returns a timestamp strictly after prev.
// Postgres stores microseconds, so the clock is truncated to match.
func nextUpdatedAt(prev, now time.Time) time.Time {
	next := now.UTC().Truncate(time.Microsecond)
	if !next.After(prev) {
		next = prev.Add(time.Microsecond)
	}
	return next
}

func decodeTaskUpdate(decode TaskDecoder, titleRequired bool) (model.TaskUpdate, error) {
	var update model.TaskUpdate
	if err := decode(&update); err != nil {
		return model.TaskUpdate{}, fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}
	return normalizeTaskUpdate(update, titleRequired)
}

// normalizeTaskUpdate trims and validates the supplied fields.
// When titleRequired is set a nil title is an error.
func normalizeTaskUpdate(u model.TaskUpdate, titleRequired bool) (model.TaskUpdate, error) {
	verr := &ValidationError{}
	out := model.TaskUpdate{Completed: u.Completed}

	if u.Title != nil {
		t := strings.TrimSpace(*u.Title)
		switch {
		case t == "":
			verr.Add("title", msgBlank)
		case utf8.RuneCountInString(t) > model.MaxTitleLength:
			verr.Add("title", maxLengthMessage(model.MaxTitleLength))
		default:
			out.Title = &t
		}
	} else if titleRequired {
		verr.Add("title", msgRequired)
	}

	if u.Description != nil {
		d := strings.TrimSpace(*u.Description)
		if utf8.RuneCountInString(d) > model.MaxDescriptionLength {
			verr.Add("description", maxLengthMessage(model.MaxDescriptionLength))
		} else {
			out.Description = &d
		}
	}

	if err := verr.orNil(); err != nil {
		return model.TaskUpdate{}, err
	}
	return out, nil
}

func maxLengthMessage(n int) string {
	return fmt.Sprintf("Ensure this field has no more than %d characters.", n)
}

func newTaskID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

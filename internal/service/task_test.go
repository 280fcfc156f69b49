package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklist/tasklist/internal/metrics"
	"github.com/tasklist/tasklist/internal/model"
	"github.com/tasklist/tasklist/internal/testutil"
)

func ptr[T any](v T) *T { return &v }

// fields returns a TaskDecoder that supplies u as the request body.
func fields(u model.TaskUpdate) TaskDecoder {
	return func(dst *model.TaskUpdate) error {
		*dst = u
		return nil
	}
}

// countingStore records how often the store is read.
type countingStore struct {
	*testutil.MemoryStore
	lists atomic.Int32
	gets  atomic.Int32
}

func (c *countingStore) ListTasks(ctx context.Context, filter model.TaskFilter) ([]*model.Task, error) {
	c.lists.Add(1)
	return c.MemoryStore.ListTasks(ctx, filter)
}

func (c *countingStore) GetTaskByID(ctx context.Context, id string) (*model.Task, error) {
	c.gets.Add(1)
	return c.MemoryStore.GetTaskByID(ctx, id)
}

type taskFixture struct {
	store   *countingStore
	svc     *TaskService
	metrics *metrics.InMemoryRecorder
	alice   *model.User
	bob     *model.User
	admin   *model.User
}

func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()

	mem := testutil.NewMemoryStore()
	f := &taskFixture{
		store:   &countingStore{MemoryStore: mem},
		metrics: metrics.NewInMemory(),
		alice:   testutil.NewTestUser(t, "alice"),
		bob:     testutil.NewTestUser(t, "bob"),
		admin:   testutil.NewTestAdmin(t, "root"),
	}
	for _, u := range []*model.User{f.alice, f.bob, f.admin} {
		require.NoError(t, mem.CreateUser(context.Background(), u))
	}
	f.svc = NewTaskService(f.store, NewPolicy(f.metrics), f.metrics)
	return f
}

func (f *taskFixture) create(t *testing.T, owner *model.User, title string) *model.Task {
	t.Helper()
	task, err := f.svc.CreateTask(context.Background(), testutil.IdentityFor(owner), CreateTaskInput{Title: ptr(title)})
	require.NoError(t, err)
	return task
}

func TestCreateTask_Defaults(t *testing.T) {
	f := newTaskFixture(t)

	task := f.create(t, f.alice, "  Buy milk  ")

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "Buy milk", task.Title)
	assert.Equal(t, "", task.Description)
	assert.False(t, task.Completed)
	assert.Equal(t, f.alice.ID, task.OwnerID)
	assert.Equal(t, "alice", task.OwnerName)
	assert.Equal(t, task.CreatedAt, task.UpdatedAt)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().TasksCreated)
}

func TestCreateTask_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input CreateTaskInput
		field string
		msg   string
	}{
		{"missing title", CreateTaskInput{}, "title", msgRequired},
		{"blank title", CreateTaskInput{Title: ptr("   ")}, "title", msgBlank},
		{"long title", CreateTaskInput{Title: ptr(strings.Repeat("a", 201))}, "title", maxLengthMessage(200)},
		{"long description", CreateTaskInput{Title: ptr("ok"), Description: ptr(strings.Repeat("d", 10001))}, "description", maxLengthMessage(10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTaskFixture(t)

			_, err := f.svc.CreateTask(context.Background(), testutil.IdentityFor(f.alice), tt.input)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Contains(t, verr.Fields, tt.field)
			assert.Equal(t, []string{tt.msg}, verr.Fields[tt.field])
			assert.Equal(t, 0, f.store.TaskCount())
		})
	}
}

func TestCreateTask_TitleLengthBoundary(t *testing.T) {
	f := newTaskFixture(t)

	_, err := f.svc.CreateTask(context.Background(), testutil.IdentityFor(f.alice), CreateTaskInput{Title: ptr(strings.Repeat("é", 200))})
	require.NoError(t, err)

	_, err = f.svc.CreateTask(context.Background(), testutil.IdentityFor(f.alice), CreateTaskInput{Title: ptr(strings.Repeat("é", 201))})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{maxLengthMessage(200)}, verr.Fields["title"])
}

func TestCreateTask_Unauthenticated(t *testing.T) {
	f := newTaskFixture(t)

	_, err := f.svc.CreateTask(context.Background(), nil, CreateTaskInput{Title: ptr("x")})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestListTasks_ScopedToCaller(t *testing.T) {
	f := newTaskFixture(t)
	f.create(t, f.alice, "alice 1")
	f.create(t, f.alice, "alice 2")
	f.create(t, f.bob, "bob 1")

	tasks, err := f.svc.ListTasks(context.Background(), testutil.IdentityFor(f.alice), ListTasksInput{})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.Equal(t, f.alice.ID, task.OwnerID)
	}

	tasks, err = f.svc.ListTasks(context.Background(), testutil.IdentityFor(f.bob), ListTasksInput{Search: "alice"})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestListTasks_AdminSeesOnlyOwnTasks(t *testing.T) {
	f := newTaskFixture(t)
	f.create(t, f.alice, "alice 1")

	tasks, err := f.svc.ListTasks(context.Background(), testutil.IdentityFor(f.admin), ListTasksInput{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestListTasks_FiltersAndOrdering(t *testing.T) {
	f := newTaskFixture(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	f.svc.WithClock(func() time.Time { return clock })

	first := f.create(t, f.alice, "Write report")
	clock = base.Add(time.Minute)
	second := f.create(t, f.alice, "Groceries")
	clock = base.Add(2 * time.Minute)
	_, err := f.svc.CreateTask(context.Background(), testutil.IdentityFor(f.alice), CreateTaskInput{
		Title:       ptr("Call"),
		Description: ptr("about the REPORT deadline"),
		Completed:   ptr(true),
	})
	require.NoError(t, err)

	ident := testutil.IdentityFor(f.alice)

	tasks, err := f.svc.ListTasks(context.Background(), ident, ListTasksInput{})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "Call", tasks[0].Title)
	assert.Equal(t, first.ID, tasks[2].ID)

	tasks, err = f.svc.ListTasks(context.Background(), ident, ListTasksInput{Ordering: "created_at"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, tasks[0].ID)

	tasks, err = f.svc.ListTasks(context.Background(), ident, ListTasksInput{Completed: ptr(false)})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	tasks, err = f.svc.ListTasks(context.Background(), ident, ListTasksInput{Search: "report"})
	require.NoError(t, err)
	assert.Len(t, tasks, 2, "search matches title or description case-insensitively")

	clock = base.Add(time.Hour)
	_, err = f.svc.UpdateTask(context.Background(), ident, second.ID, fields(model.TaskUpdate{Completed: ptr(true)}))
	require.NoError(t, err)
	tasks, err = f.svc.ListTasks(context.Background(), ident, ListTasksInput{Ordering: "-updated_at"})
	require.NoError(t, err)
	assert.Equal(t, second.ID, tasks[0].ID)

	tasks, err = f.svc.ListTasks(context.Background(), ident, ListTasksInput{Ordering: "-updated_at,created_at"})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, second.ID, tasks[0].ID)
	assert.Equal(t, first.ID, tasks[2].ID)
}

func TestListTasks_SearchRequiresEveryTerm(t *testing.T) {
	f := newTaskFixture(t)
	ident := testutil.IdentityFor(f.alice)

	milk, err := f.svc.CreateTask(context.Background(), ident, CreateTaskInput{
		Title:       ptr("Buy milk"),
		Description: ptr("from the store"),
	})
	require.NoError(t, err)
	f.create(t, f.alice, "Store receipts")

	tests := []struct {
		search string
		want   int
	}{
		{"milk store", 1},
		{"milk,STORE", 1},
		{"store", 2},
		{"milk bread", 0},
	}
	for _, tt := range tests {
		tasks, err := f.svc.ListTasks(context.Background(), ident, ListTasksInput{Search: tt.search})
		require.NoError(t, err)
		assert.Len(t, tasks, tt.want, "search %q", tt.search)
		if tt.want == 1 {
			assert.Equal(t, milk.ID, tasks[0].ID)
		}
	}
}

func TestListTasks_InvalidOrdering(t *testing.T) {
	f := newTaskFixture(t)

	_, err := f.svc.ListTasks(context.Background(), testutil.IdentityFor(f.alice), ListTasksInput{Ordering: "created_at,title"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"Select a valid choice. title is not one of the available choices."}, verr.Fields["ordering"])
	assert.Equal(t, int32(0), f.store.lists.Load())
}

func TestGetTask(t *testing.T) {
	f := newTaskFixture(t)
	task := f.create(t, f.alice, "mine")

	tests := []struct {
		name    string
		caller  *model.User
		id      string
		wantErr error
	}{
		{"owner", f.alice, task.ID, nil},
		{"other user gets forbidden", f.bob, task.ID, ErrForbidden},
		{"admin gets forbidden", f.admin, task.ID, ErrForbidden},
		{"missing task", f.alice, "01ARZ3NDEKTSV4RRFFQ69G5FAV", ErrTaskNotFound},
		{"missing task for non-owner", f.bob, "01ARZ3NDEKTSV4RRFFQ69G5FAV", ErrTaskNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.GetTask(context.Background(), testutil.IdentityFor(tt.caller), tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, task.ID, got.ID)
		})
	}

	snap := f.metrics.Snapshot()
	assert.Equal(t, uint64(2), snap.DeniedNotOwner)
}

func TestUpdateTask_Partial(t *testing.T) {
	f := newTaskFixture(t)
	task := f.create(t, f.alice, "original")
	ident := testutil.IdentityFor(f.alice)

	updated, err := f.svc.UpdateTask(context.Background(), ident, task.ID, fields(model.TaskUpdate{Completed: ptr(true)}))
	require.NoError(t, err)

	assert.Equal(t, "original", updated.Title)
	assert.True(t, updated.Completed)
	assert.Equal(t, task.ID, updated.ID)
	assert.Equal(t, task.OwnerID, updated.OwnerID)
	assert.Equal(t, task.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(task.UpdatedAt))

	stored, err := f.svc.GetTask(context.Background(), ident, task.ID)
	require.NoError(t, err)
	assert.True(t, stored.Completed)
	assert.Equal(t, updated.UpdatedAt, stored.UpdatedAt)
}

func TestUpdateTask_UpdatedAtAdvancesWithFrozenClock(t *testing.T) {
	f := newTaskFixture(t)
	frozen := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f.svc.WithClock(func() time.Time { return frozen })
	task := f.create(t, f.alice, "t")
	ident := testutil.IdentityFor(f.alice)

	prev := task.UpdatedAt
	for i := 0; i < 3; i++ {
		updated, err := f.svc.UpdateTask(context.Background(), ident, task.ID, fields(model.TaskUpdate{}))
		require.NoError(t, err)
		assert.True(t, updated.UpdatedAt.After(prev))
		prev = updated.UpdatedAt
	}
}

func TestUpdateTask_ErrorPrecedence(t *testing.T) {
	f := newTaskFixture(t)
	task := f.create(t, f.alice, "original")

	_, err := f.svc.UpdateTask(context.Background(), testutil.IdentityFor(f.bob), task.ID, fields(model.TaskUpdate{Title: ptr("")}))
	assert.ErrorIs(t, err, ErrForbidden, "ownership is checked before the body")

	_, err = f.svc.UpdateTask(context.Background(), testutil.IdentityFor(f.bob), "missing", fields(model.TaskUpdate{Title: ptr("")}))
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = f.svc.UpdateTask(context.Background(), testutil.IdentityFor(f.alice), task.ID, fields(model.TaskUpdate{Title: ptr("")}))
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	stored, err := f.svc.GetTask(context.Background(), testutil.IdentityFor(f.alice), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", stored.Title)
	assert.Equal(t, task.UpdatedAt, stored.UpdatedAt)
}

func TestUpdateTask_BodyDecodedAfterOwnership(t *testing.T) {
	f := newTaskFixture(t)
	task := f.create(t, f.alice, "original")
	malformed := errors.New("unexpected EOF")

	var calls int
	decode := func(*model.TaskUpdate) error {
		calls++
		return malformed
	}

	_, err := f.svc.UpdateTask(context.Background(), testutil.IdentityFor(f.bob), task.ID, decode)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.ReplaceTask(context.Background(), testutil.IdentityFor(f.bob), task.ID, decode)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.UpdateTask(context.Background(), testutil.IdentityFor(f.alice), "01ARZ3NDEKTSV4RRFFQ69G5FAV", decode)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.Zero(t, calls, "body must not be read before ownership is known")

	_, err = f.svc.UpdateTask(context.Background(), testutil.IdentityFor(f.alice), task.ID, decode)
	assert.ErrorIs(t, err, ErrMalformedBody)
	assert.ErrorIs(t, err, malformed)
	assert.Equal(t, 1, calls)

	stored, err := f.svc.GetTask(context.Background(), testutil.IdentityFor(f.alice), task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.UpdatedAt, stored.UpdatedAt)
}

func TestReplaceTask(t *testing.T) {
	f := newTaskFixture(t)
	ident := testutil.IdentityFor(f.alice)
	task, err := f.svc.CreateTask(context.Background(), ident, CreateTaskInput{
		Title:       ptr("old"),
		Description: ptr("details"),
		Completed:   ptr(true),
	})
	require.NoError(t, err)

	replaced, err := f.svc.ReplaceTask(context.Background(), ident, task.ID, fields(model.TaskUpdate{Title: ptr("new")}))
	require.NoError(t, err)
	assert.Equal(t, "new", replaced.Title)
	assert.Equal(t, "", replaced.Description)
	assert.False(t, replaced.Completed)

	_, err = f.svc.ReplaceTask(context.Background(), ident, task.ID, fields(model.TaskUpdate{Description: ptr("x")}))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{msgRequired}, verr.Fields["title"])

	_, err = f.svc.ReplaceTask(context.Background(), testutil.IdentityFor(f.bob), task.ID, fields(model.TaskUpdate{Title: ptr("hijack")}))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDeleteTask(t *testing.T) {
	f := newTaskFixture(t)
	task := f.create(t, f.alice, "doomed")

	err := f.svc.DeleteTask(context.Background(), testutil.IdentityFor(f.bob), task.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 1, f.store.TaskCount())

	require.NoError(t, f.svc.DeleteTask(context.Background(), testutil.IdentityFor(f.alice), task.ID))
	assert.Equal(t, 0, f.store.TaskCount())

	_, err = f.svc.GetTask(context.Background(), testutil.IdentityFor(f.alice), task.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	err = f.svc.DeleteTask(context.Background(), testutil.IdentityFor(f.alice), task.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	assert.Equal(t, uint64(1), f.metrics.Snapshot().TasksDeleted)
}

func TestListAllTasks(t *testing.T) {
	f := newTaskFixture(t)
	f.create(t, f.alice, "a")
	f.create(t, f.bob, "b")

	_, err := f.svc.ListAllTasks(context.Background(), testutil.IdentityFor(f.alice))
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, int32(0), f.store.lists.Load(), "non-admin must not reach the store")
	assert.Equal(t, uint64(1), f.metrics.Snapshot().DeniedNotAdmin)

	tasks, err := f.svc.ListAllTasks(context.Background(), testutil.IdentityFor(f.admin))
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
	assert.True(t, !tasks[0].CreatedAt.Before(tasks[1].CreatedAt))
}

func TestConcurrentCreates(t *testing.T) {
	f := newTaskFixture(t)
	ident := testutil.IdentityFor(f.alice)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateTask(context.Background(), ident, CreateTaskInput{Title: ptr("parallel")})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, f.store.TaskCount())
}

func TestNextUpdatedAt(t *testing.T) {
	prev := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, prev.Add(time.Second), nextUpdatedAt(prev, prev.Add(time.Second)))
	assert.Equal(t, prev.Add(time.Microsecond), nextUpdatedAt(prev, prev))
	assert.Equal(t, prev.Add(time.Microsecond), nextUpdatedAt(prev, prev.Add(-time.Hour)))
	assert.Equal(t, prev.Add(time.Microsecond), nextUpdatedAt(prev, prev.Add(500*time.Nanosecond)))
}

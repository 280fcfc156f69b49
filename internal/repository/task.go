package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/tasklist/tasklist/internal/model"
)

// Common errors for task repository operations.
var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrInvalidOrdering = errors.New("invalid ordering")
)

const taskColumns = `t.id, t.title, t.description, t.completed, t.owner_id, u.username, t.created_at, t.updated_at`

// likeEscaper escapes LIKE metacharacters so search input is matched literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// CreateTask inserts a new task into the database.
func (r *Repository) CreateTask(ctx context.Context, task *model.Task) error {
	query := `
		INSERT INTO tasks (id, title, description, completed, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Completed,
		task.OwnerID,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// GetTaskByID retrieves a task by its ID regardless of owner.
// Ownership is enforced by the caller.
func (r *Repository) GetTaskByID(ctx context.Context, id string) (*model.Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM tasks t
		JOIN users u ON u.id = t.owner_id
		WHERE t.id = $1
	`

	task, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task by ID: %w", err)
	}

	return task, nil
}

// ListTasks retrieves tasks matching the filter.
// An empty filter.OwnerID lists every owner's tasks.
func (r *Repository) ListTasks(ctx context.Context, filter model.TaskFilter) ([]*model.Task, error) {
	query, args, err := buildListTasksQuery(filter)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*model.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// UpdateTask writes the task's mutable fields. The owner and ID are never changed.
// Concurrent updates are last-write-wins.
func (r *Repository) UpdateTask(ctx context.Context, task *model.Task) error {
	query := `
		UPDATE tasks
		SET title = $2, description = $3, completed = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Completed,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}

	return nil
}

// DeleteTask permanently removes a task.
func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}

	return nil
}

func sqlDirection(o model.TaskOrdering) string {
	if o.Descending() {
		return "DESC"
	}
	return "ASC"
}

// buildListTasksQuery renders the SELECT for a filter.
// The owner predicate is always the first condition when present.
func buildListTasksQuery(filter model.TaskFilter) (string, []any, error) {
	orderings := filter.Orderings()
	for _, o := range orderings {
		if !o.IsValid() {
			return "", nil, fmt.Errorf("%w: %q", ErrInvalidOrdering, o)
		}
	}

	var (
		conditions []string
		args       []any
	)

	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("t.owner_id = $%d", len(args)))
	}

	if filter.Completed != nil {
		args = append(args, *filter.Completed)
		conditions = append(conditions, fmt.Sprintf("t.completed = $%d", len(args)))
	}

	for _, term := range filter.SearchTerms() {
		args = append(args, "%"+likeEscaper.Replace(term)+"%")
		conditions = append(conditions, fmt.Sprintf("(t.title ILIKE $%d OR t.description ILIKE $%d)", len(args), len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(taskColumns)
	b.WriteString(" FROM tasks t JOIN users u ON u.id = t.owner_id")

	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}

	b.WriteString(" ORDER BY ")
	for _, o := range orderings {
		fmt.Fprintf(&b, "t.%s %s, ", pq.QuoteIdentifier(o.Column()), sqlDirection(o))
	}
	fmt.Fprintf(&b, "t.id %s", sqlDirection(orderings[0]))

	return b.String(), args, nil
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var task model.Task
	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Completed,
		&task.OwnerID,
		&task.OwnerName,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	return &task, err
}

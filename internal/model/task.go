// Package model defines domain entities for the application.
package model

import (
	"strings"
	"time"
	"unicode"
)

// Task field limits.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 10000
)

// Task represents a single to-do item owned by one user.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	OwnerID     string    `json:"-"`
	OwnerName   string    `json:"user"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsOwnedBy reports whether the task belongs to the given user.
func (t *Task) IsOwnedBy(userID string) bool {
	return userID != "" && t.OwnerID == userID
}

// TaskOrdering is a sort key accepted by task listings.
// A leading "-" means descending.
type TaskOrdering string

const (
	OrderCreatedAsc  TaskOrdering = "created_at"
	OrderCreatedDesc TaskOrdering = "-created_at"
	OrderUpdatedAsc  TaskOrdering = "updated_at"
	OrderUpdatedDesc TaskOrdering = "-updated_at"
)

// DefaultTaskOrdering is reverse-creation order.
const DefaultTaskOrdering = OrderCreatedDesc

// IsValid checks if the ordering is one of the supported keys.
func (o TaskOrdering) IsValid() bool {
	switch o {
	case OrderCreatedAsc, OrderCreatedDesc, OrderUpdatedAsc, OrderUpdatedDesc:
		return true
	}
	return false
}

// Column returns the sort column without direction prefix.
func (o TaskOrdering) Column() string {
	return strings.TrimPrefix(string(o), "-")
}

// Descending reports whether the ordering sorts newest first.
func (o TaskOrdering) Descending() bool {
	return strings.HasPrefix(string(o), "-")
}

// SplitTaskOrderings splits a comma separated ordering parameter into keys.
// Blank entries are dropped; validity is left to the caller.
func SplitTaskOrderings(raw string) []TaskOrdering {
	var keys []TaskOrdering
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			keys = append(keys, TaskOrdering(part))
		}
	}
	return keys
}

// TaskFilter narrows a task listing.
// An empty OwnerID means no owner restriction and is only valid for admin listings.
type TaskFilter struct {
	OwnerID   string
	Completed *bool
	Search    string
	Ordering  []TaskOrdering
}

// SearchTerms splits Search on whitespace and commas.
// A task matches only when every term is found in its title or description.
func (f TaskFilter) SearchTerms() []string {
	return strings.FieldsFunc(f.Search, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// Orderings returns the sort keys in priority order, falling back to the default.
func (f TaskFilter) Orderings() []TaskOrdering {
	if len(f.Ordering) == 0 {
		return []TaskOrdering{DefaultTaskOrdering}
	}
	return f.Ordering
}

// TaskUpdate carries a partial set of mutable task fields.
// Nil fields are left unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
	Completed   *bool
}

// Apply copies the supplied fields onto the task.
func (u TaskUpdate) Apply(t *Task) {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Completed != nil {
		t.Completed = *u.Completed
	}
}

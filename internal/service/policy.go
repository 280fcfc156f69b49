package service

import (
	"github.com/tasklist/tasklist/internal/metrics"
	"github.com/tasklist/tasklist/internal/model"
)

// Policy decides whether an identity may act on tasks.
//
// Collection reads are pre-scoped to the caller. Detail access loads the task
// unscoped and then checks ownership, so a non-owner gets ErrForbidden rather
// than ErrTaskNotFound. Admin listing is a capability check made before any
// data is read.
type Policy struct {
	metrics metrics.Recorder
}

// NewPolicy creates a Policy.
func NewPolicy(recorder metrics.Recorder) *Policy {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Policy{metrics: recorder}
}

// ScopeCollection forces the filter onto the caller's own tasks.
// Any owner already present on the filter is overwritten.
func (p *Policy) ScopeCollection(identity *model.Identity, filter model.TaskFilter) (model.TaskFilter, error) {
	if identity == nil || identity.UserID == "" {
		return filter, ErrUnauthenticated
	}
	filter.OwnerID = identity.UserID
	return filter, nil
}

// CheckOwnership allows the operation only for the task's owner.
// The admin flag grants no detail access.
func (p *Policy) CheckOwnership(identity *model.Identity, task *model.Task) error {
	if identity == nil || identity.UserID == "" {
		return ErrUnauthenticated
	}
	if !identity.Owns(task) {
		p.metrics.IncAccessDenied("not_owner")
		return ErrForbidden
	}
	return nil
}

// RequireAdmin allows the operation only for admin identities.
func (p *Policy) RequireAdmin(identity *model.Identity) error {
	if identity == nil || identity.UserID == "" {
		return ErrUnauthenticated
	}
	if !identity.IsAdmin {
		p.metrics.IncAccessDenied("not_admin")
		return ErrForbidden
	}
	return nil
}

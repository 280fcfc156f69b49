package metrics

import "sync/atomic"

// Snapshot captures current in-memory counters.
type Snapshot struct {
	TasksCreated         uint64
	TasksUpdated         uint64
	TasksDeleted         uint64
	UsersRegistered      uint64
	TokensIssuedPassword uint64
	TokensIssuedRefresh  uint64
	AuthFailures         uint64
	DeniedNotOwner       uint64
	DeniedNotAdmin       uint64
}

// InMemoryRecorder stores metrics in memory.
// It backs the /metrics endpoint and is used by tests.
type InMemoryRecorder struct {
	tasksCreated         atomic.Uint64
	tasksUpdated         atomic.Uint64
	tasksDeleted         atomic.Uint64
	usersRegistered      atomic.Uint64
	tokensIssuedPassword atomic.Uint64
	tokensIssuedRefresh  atomic.Uint64
	authFailures         atomic.Uint64
	deniedNotOwner       atomic.Uint64
	deniedNotAdmin       atomic.Uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		TasksCreated:         m.tasksCreated.Load(),
		TasksUpdated:         m.tasksUpdated.Load(),
		TasksDeleted:         m.tasksDeleted.Load(),
		UsersRegistered:      m.usersRegistered.Load(),
		TokensIssuedPassword: m.tokensIssuedPassword.Load(),
		TokensIssuedRefresh:  m.tokensIssuedRefresh.Load(),
		AuthFailures:         m.authFailures.Load(),
		DeniedNotOwner:       m.deniedNotOwner.Load(),
		DeniedNotAdmin:       m.deniedNotAdmin.Load(),
	}
}

func (m *InMemoryRecorder) IncTaskCreated()    { m.tasksCreated.Add(1) }
func (m *InMemoryRecorder) IncTaskUpdated()    { m.tasksUpdated.Add(1) }
func (m *InMemoryRecorder) IncTaskDeleted()    { m.tasksDeleted.Add(1) }
func (m *InMemoryRecorder) IncUserRegistered() { m.usersRegistered.Add(1) }
func (m *InMemoryRecorder) IncAuthFailed()     { m.authFailures.Add(1) }

// IncTokenIssued counts issued token pairs by grant.
func (m *InMemoryRecorder) IncTokenIssued(grant string) {
	switch grant {
	case "refresh":
		m.tokensIssuedRefresh.Add(1)
	default:
		m.tokensIssuedPassword.Add(1)
	}
}

// IncAccessDenied counts forbidden outcomes by reason.
func (m *InMemoryRecorder) IncAccessDenied(reason string) {
	switch reason {
	case "not_admin":
		m.deniedNotAdmin.Add(1)
	default:
		m.deniedNotOwner.Add(1)
	}
}

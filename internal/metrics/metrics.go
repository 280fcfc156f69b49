// Package metrics provides lightweight hooks for instrumentation.
package metrics

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Task metrics
	IncTaskCreated()
	IncTaskUpdated()
	IncTaskDeleted()

	// Identity and credential metrics
	IncUserRegistered()
	IncTokenIssued(grant string) // grant: "password" or "refresh"
	IncAuthFailed()

	// Authorization policy outcomes
	IncAccessDenied(reason string) // reason: "not_owner" or "not_admin"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}

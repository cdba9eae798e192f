// Package metrics provides lightweight hooks for instrumentation.
package metrics

// Recorder captures metric events for the auth core.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	IncRegistration()
	IncLoginSuccess()
	IncLoginFailure()
	IncTokenRotation()
	IncTokenReplayBlocked()
	IncPasswordResetRequested()
	IncPasswordResetCompleted()
	IncIntegrationLinked()
	IncIntegrationRemoved()
	IncIntegrationRejected()
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}

package metrics

import "sync/atomic"

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Registrations           uint64 `json:"registrations"`
	LoginSuccesses          uint64 `json:"login_successes"`
	LoginFailures           uint64 `json:"login_failures"`
	TokenRotations          uint64 `json:"token_rotations"`
	TokenReplaysBlocked     uint64 `json:"token_replays_blocked"`
	PasswordResetsRequested uint64 `json:"password_resets_requested"`
	PasswordResetsCompleted uint64 `json:"password_resets_completed"`
	IntegrationsLinked      uint64 `json:"integrations_linked"`
	IntegrationsRemoved     uint64 `json:"integrations_removed"`
	IntegrationsRejected    uint64 `json:"integrations_rejected"`
}

// InMemoryRecorder stores counters in process memory.
type InMemoryRecorder struct {
	registrations           uint64
	loginSuccesses          uint64
	loginFailures           uint64
	tokenRotations          uint64
	tokenReplaysBlocked     uint64
	passwordResetsRequested uint64
	passwordResetsCompleted uint64
	integrationsLinked      uint64
	integrationsRemoved     uint64
	integrationsRejected    uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		Registrations:           atomic.LoadUint64(&m.registrations),
		LoginSuccesses:          atomic.LoadUint64(&m.loginSuccesses),
		LoginFailures:           atomic.LoadUint64(&m.loginFailures),
		TokenRotations:          atomic.LoadUint64(&m.tokenRotations),
		TokenReplaysBlocked:     atomic.LoadUint64(&m.tokenReplaysBlocked),
		PasswordResetsRequested: atomic.LoadUint64(&m.passwordResetsRequested),
		PasswordResetsCompleted: atomic.LoadUint64(&m.passwordResetsCompleted),
		IntegrationsLinked:      atomic.LoadUint64(&m.integrationsLinked),
		IntegrationsRemoved:     atomic.LoadUint64(&m.integrationsRemoved),
		IntegrationsRejected:    atomic.LoadUint64(&m.integrationsRejected),
	}
}

func (m *InMemoryRecorder) IncRegistration()           { atomic.AddUint64(&m.registrations, 1) }
func (m *InMemoryRecorder) IncLoginSuccess()           { atomic.AddUint64(&m.loginSuccesses, 1) }
func (m *InMemoryRecorder) IncLoginFailure()           { atomic.AddUint64(&m.loginFailures, 1) }
func (m *InMemoryRecorder) IncTokenRotation()          { atomic.AddUint64(&m.tokenRotations, 1) }
func (m *InMemoryRecorder) IncTokenReplayBlocked()     { atomic.AddUint64(&m.tokenReplaysBlocked, 1) }
func (m *InMemoryRecorder) IncPasswordResetRequested() { atomic.AddUint64(&m.passwordResetsRequested, 1) }
func (m *InMemoryRecorder) IncPasswordResetCompleted() { atomic.AddUint64(&m.passwordResetsCompleted, 1) }
func (m *InMemoryRecorder) IncIntegrationLinked()      { atomic.AddUint64(&m.integrationsLinked, 1) }
func (m *InMemoryRecorder) IncIntegrationRemoved()     { atomic.AddUint64(&m.integrationsRemoved, 1) }
func (m *InMemoryRecorder) IncIntegrationRejected()    { atomic.AddUint64(&m.integrationsRejected, 1) }

package metrics

// NoopRecorder discards all metric events.
type NoopRecorder struct{}

// NewNoop returns a Recorder that does nothing.
func NewNoop() *NoopRecorder {
	return &NoopRecorder{}
}

func (NoopRecorder) IncRegistration()           {}
func (NoopRecorder) IncLoginSuccess()           {}
func (NoopRecorder) IncLoginFailure()           {}
func (NoopRecorder) IncTokenRotation()          {}
func (NoopRecorder) IncTokenReplayBlocked()     {}
func (NoopRecorder) IncPasswordResetRequested() {}
func (NoopRecorder) IncPasswordResetCompleted() {}
func (NoopRecorder) IncIntegrationLinked()      {}
func (NoopRecorder) IncIntegrationRemoved()     {}
func (NoopRecorder) IncIntegrationRejected()    {}

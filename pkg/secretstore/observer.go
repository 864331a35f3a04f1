package secretstore

// Remote retrieval outcomes reported to an Observer
const (
	OutcomeFulfilled = "fulfilled"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
	OutcomeSendError = "send_error"
)

// Observer receives store events, typically to export metrics
type Observer interface {
	Lookup(layer string, hit bool)
	CacheFill(layer string, err error)
	RemoteOutcome(outcome string)
	UnmatchedResponse()
	PendingRequests(n int)
}

// NopObserver ignores every event
type NopObserver struct{}

func (NopObserver) Lookup(string, bool)     {}
func (NopObserver) CacheFill(string, error) {}
func (NopObserver) RemoteOutcome(string)    {}
func (NopObserver) UnmatchedResponse()      {}
func (NopObserver) PendingRequests(int)     {}

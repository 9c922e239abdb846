package italcambio

// Status tags the normalized result of one vendor call. The poller and
// orchestrator only ever see these tags, never raw transport errors.
type Status int

const (
	StatusOK Status = iota
	StatusNoAvailability
	StatusRateLimited
	StatusTransportError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoAvailability:
		return "no-availability"
	case StatusRateLimited:
		return "rate-limited"
	case StatusTransportError:
		return "transport-error"
	}
	return "unknown"
}

type Outcome struct {
	Status Status
	Detail string // transport failure detail, empty otherwise
	// Retryable marks timeouts, as opposed to malformed bodies or 5xx.
	Retryable bool
}

func ok() Outcome             { return Outcome{Status: StatusOK} }
func noAvailability() Outcome { return Outcome{Status: StatusNoAvailability} }
func rateLimited() Outcome    { return Outcome{Status: StatusRateLimited} }

func transport(detail string, retryable bool) Outcome {
	return Outcome{Status: StatusTransportError, Detail: detail, Retryable: retryable}
}

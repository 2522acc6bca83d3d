package domain

// CallState is the per-identity position in the signaling state machine.
// Ringing and Active both hold the registry's isInCall flag; Idle clears it.
type CallState int

const (
	CallIdle CallState = iota
	CallRinging
	CallActive
)

func (s CallState) String() string {
	switch s {
	case CallRinging:
		return "ringing"
	case CallActive:
		return "active"
	default:
		return "idle"
	}
}

// CallSession pairs the two participants negotiating one call.
// It lives only in the coordinator's table and is never persisted.
type CallSession struct {
	CallID string
	Caller string
	Callee string
}

// Counterpart returns the other participant of the session, or an empty
// string when the given identity is not part of it.
func (c CallSession) Counterpart(userID string) string {
	switch userID {
	case c.Caller:
		return c.Callee
	case c.Callee:
		return c.Caller
	default:
		return ""
	}
}

// Package interview implements the session stage controller: a deterministic
// state machine that decides, for every inbound event, what phase the
// session is in, whether it must transition, and what to ask the response
// generator.
package interview

// EventType categorizes inbound session events.
type EventType string

const (
	// EventStart is the initial session-start event.
	EventStart EventType = "start"
	// EventMessage carries a candidate message (typed or transcribed).
	EventMessage EventType = "message"
	// EventIdle reports candidate inactivity.
	EventIdle EventType = "idle"
	// EventCode reports an out-of-band editor update. The controller never
	// answers it.
	EventCode EventType = "code"
)

// Event is one inbound event to be processed against a session.
type Event struct {
	Type EventType
	// Text is the candidate message for EventMessage.
	Text string
	// IdleSeconds is how long the candidate has been inactive, for EventIdle.
	IdleSeconds int
}

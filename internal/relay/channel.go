package relay

// Kind identifies the transport style of a channel.
type Kind string

const (
	// KindBidirectional is a full-duplex socket transport (WebSocket).
	KindBidirectional Kind = "bidirectional"
	// KindPush is a one-way server-to-client stream (SSE).
	KindPush Kind = "push"
)

// State is the lifecycle state of a channel.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Channel is one connected client's delivery path. Implementations live
// in the transport package; the registry owns a channel from Register
// until Unregister and assigns its identifier.
//
// Deliver must not block indefinitely: transports either buffer the
// payload or fail fast. A non-nil error means the channel is no longer
// deliverable and will be removed by the dispatcher.
type Channel interface {
	Kind() Kind
	State() State
	Deliver(payload []byte) error
	Close(reason string)
}

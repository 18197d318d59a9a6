package relayconn

// State is the connection lifecycle state. Transitions:
//
//	Disconnected → Connecting → Connected → Reconnecting → Connected …
//
// Closing is entered from any state when Close is called and always
// ends in Disconnected.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

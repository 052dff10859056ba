package irc

// State is the connection lifecycle stage of a Session.
type State int

const (
	// StateDisconnected — no socket, waiting for the next attempt.
	StateDisconnected State = iota
	// StateConnecting — TCP dial in progress.
	StateConnecting
	// StateRegistering — NICK/USER sent, waiting for the welcome numeric.
	StateRegistering
	// StateJoining — registered, waiting for every channel join to confirm.
	StateJoining
	// StateReady — all configured channels joined, full traffic flowing.
	StateReady
)

var stateNames = [...]string{
	"Disconnected",
	"Connecting",
	"Registering",
	"Joining",
	"Ready",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

package supervisor

// State is one node of the per-server lifecycle state machine (spec.md §4.2).
type State string

const (
	StateStopped    State = "stopped"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateRestarting State = "restarting"
	StateCrashed    State = "crashed"
	StateError      State = "error"
)

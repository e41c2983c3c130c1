package session

// State is the lifecycle position of a session.
type State int

const (
	// Idle is the initial state; nothing is held.
	Idle State = iota
	// Acquiring waits for the capture device.
	Acquiring
	// Connecting holds the device and waits for the analysis channel.
	Connecting
	// Active holds device and channel and samples frames on every tick.
	Active
	// Stopped holds nothing. A new Start re-enters Acquiring.
	Stopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Acquiring:
		return "acquiring"
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats counts the work of the current or most recent attempt.
type Stats struct {
	// Ticks that sampled the device.
	Ticks uint64 `json:"ticks"`
	// Sent frames accepted by the channel.
	Sent uint64 `json:"sent"`
	// Skipped ticks: no frame yet, unknown dimensions, or encode failure.
	Skipped uint64 `json:"skipped"`
	// Dropped sends that raced a channel close.
	Dropped uint64 `json:"dropped"`
	// Results received while active.
	Results uint64 `json:"results"`
}

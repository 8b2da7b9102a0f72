package hotwire

// State of a module in its lifecycle.
type State int32

const (
	Awaiting State = iota
	Loaded
	Initialized
	Started
	Crashed
	Failed
	Stopped
	// Restarting is reserved; the loader never enters it.
	Restarting
)

// Terminal reports whether s ends the lifecycle.
func (s State) Terminal() bool {
	return s == Crashed || s == Failed || s == Stopped
}

func (s State) String() string {
	switch s {
	case Awaiting:
		return "Awaiting"
	case Loaded:
		return "Loaded"
	case Initialized:
		return "Initialized"
	case Started:
		return "Started"
	case Crashed:
		return "Crashed"
	case Failed:
		return "Failed"
	case Stopped:
		return "Stopped"
	case Restarting:
		return "Restarting"
	default:
		return "Unknown"
	}
}

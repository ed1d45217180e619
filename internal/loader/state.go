package loader

// State is the lifecycle state of a Loader.
type State int

// Loader states.
const (
	New State = iota
	Started
	Partial
	Continued
	Full
	Canceled
	Faulted
)

var stateNames = map[State]string{
	New:       "New",
	Started:   "Started",
	Partial:   "Partial",
	Continued: "Continued",
	Full:      "Full",
	Canceled:  "Canceled",
	Faulted:   "Faulted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Terminal reports whether no further Resume is accepted in this state.
func (s State) Terminal() bool {
	return s == Full || s == Canceled || s == Faulted
}

// InFlight reports whether a Resume call is currently draining.
func (s State) InFlight() bool {
	return s == Started || s == Continued
}

// ParseState returns the State with the given name.
func ParseState(name string) (State, bool) {
	for s, n := range stateNames {
		if n == name {
			return s, true
		}
	}
	return New, false
}

// Checkpoint identifies where a cancellation was observed.
type Checkpoint int

// Cancellation checkpoints, in the order a session can pass them.
const (
	// CheckpointBeforeStart: the scope was already canceled on the first Resume.
	CheckpointBeforeStart Checkpoint = iota + 1
	// CheckpointProducer: the producer stopped before exhausting the source.
	CheckpointProducer
	// CheckpointWait: observed by the drain loop around a wait.
	CheckpointWait
	// CheckpointBudget: observed when the time budget ran out.
	CheckpointBudget
	// CheckpointTail: observed after the producer completed.
	CheckpointTail
)

func (c Checkpoint) String() string {
	switch c {
	case CheckpointBeforeStart:
		return "before_start"
	case CheckpointProducer:
		return "producer"
	case CheckpointWait:
		return "wait"
	case CheckpointBudget:
		return "budget"
	case CheckpointTail:
		return "tail"
	default:
		return "unknown"
	}
}

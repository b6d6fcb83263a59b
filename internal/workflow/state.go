package workflow

// State is the position of the [Workflow] in the login → generate → create lifecycle.
type State int

const (
	LoggedOut State = iota
	Authenticating
	Ready
	Generating
	Previewing
	Creating
	Completed
)

func (s State) String() string {
	switch s {
	case LoggedOut:
		return "logged_out"
	case Authenticating:
		return "authenticating"
	case Ready:
		return "ready"
	case Generating:
		return "generating"
	case Previewing:
		return "previewing"
	case Creating:
		return "creating"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Busy reports whether a network operation is running in this state.
func (s State) Busy() bool {
	return s == Generating || s == Creating
}

package sandbox

// State is a stage in the sandbox lifecycle of one job.
type State int

const (
	StateCreated State = iota + 1
	StateCodeMounted
	StateBuilt
	StateExecuted
	StateCleanedUp
	StateFailed
)

// String returns the lifecycle stage name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateCodeMounted:
		return "code_mounted"
	case StateBuilt:
		return "built"
	case StateExecuted:
		return "executed"
	case StateCleanedUp:
		return "cleaned_up"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateObserver receives lifecycle transitions, mainly for logging and
// tests. Observers must not block.
type StateObserver func(jobID string, state State)

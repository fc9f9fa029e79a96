package agent

// State is the lifecycle state of a run. Only the run loop changes it.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateFinished
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateFinished:
		return "FINISHED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further cycles may run.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateError
}

// Reason is the machine-readable explanation of how a run ended.
type Reason string

const (
	ReasonFinalAnswer     Reason = "final answer"
	ReasonTerminated      Reason = "terminated"
	ReasonStepLimit       Reason = "step limit exceeded"
	ReasonTimeLimit       Reason = "time limit exceeded"
	ReasonNoProgress      Reason = "no progress"
	ReasonThinkFailed     Reason = "think failed"
	ReasonMalformedMemory Reason = "malformed memory"
	ReasonCancelled       Reason = "cancelled"
)

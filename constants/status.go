package constants

// RunState is the canonical lifecycle state of one summarization run.
type RunState string

// Stable values (the run store persists these exact strings).
const (
	RunStateIdle     RunState = "IDLE"     // created, no work started
	RunStateMapping  RunState = "MAPPING"  // per-segment map calls in flight
	RunStateReducing RunState = "REDUCING" // grouped reduce rounds in flight
	RunStateDone     RunState = "DONE"     // single result produced
	RunStateFailed   RunState = "FAILED"   // terminal failure
)

// Phase names a pipeline stage for logging and call records.
type Phase string

const (
	PhaseMap    Phase = "MAP"
	PhaseReduce Phase = "REDUCE"
)

// CallStatus is the terminal status of one recorded LLM call.
type CallStatus string

const (
	CallStatusOK     CallStatus = "OK"
	CallStatusFailed CallStatus = "FAILED"
)

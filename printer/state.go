package printer

// ConnectionState tracks the connector's own view of the printer connection
// and job lifecycle, independent from the firmware-reported print state.
// Command-issued transitions pass through the pending states (starting,
// pausing, resuming, cancelling, finishing) until the firmware signals
// confirm them.
type ConnectionState string

// Connection states
const (
	StateClosed          ConnectionState = "closed"
	StateConnecting      ConnectionState = "connecting"
	StateOperational     ConnectionState = "operational"
	StateStarting        ConnectionState = "starting"
	StatePrinting        ConnectionState = "printing"
	StatePausing         ConnectionState = "pausing"
	StatePaused          ConnectionState = "paused"
	StateResuming        ConnectionState = "resuming"
	StateCancelling      ConnectionState = "cancelling"
	StateFinishing       ConnectionState = "finishing"
	StateClosedWithError ConnectionState = "closed-with-error"
)

// Active reports whether a print job is in flight in this state.
func (s ConnectionState) Active() bool {
	switch s {
	case StateStarting, StatePrinting, StatePausing, StatePaused, StateResuming, StateCancelling, StateFinishing:
		return true
	default:
		return false
	}
}

// JobOutcome describes how a print job ended.
type JobOutcome string

// Job outcomes
const (
	JobComplete  JobOutcome = "complete"
	JobCancelled JobOutcome = "cancelled"
	JobFailed    JobOutcome = "failed"
)

// JobProgress is the derived progress of the active print job. Elapsed is
// the firmware's total duration; Cleaned excludes pre-extrusion warmup and
// leveling time and is the basis for the remaining-time estimate.
type JobProgress struct {
	Job          string
	Progress     float64
	FilePosition int64
	Elapsed      float64
	Cleaned      float64
	Remaining    float64
}

// FirmwareInfo describes the firmware stack behind a connection.
type FirmwareInfo struct {
	Name             string
	MoonrakerVersion string
	APIVersion       string
}

// Temperature is one heater reading exposed to the host, keyed by the
// host-side heater names (tool0, bed, chamber).
type Temperature struct {
	Actual float64
	Target float64
}

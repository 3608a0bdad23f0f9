package printer

// EventSink receives reconciled printer events. Implementations must not
// block; callbacks may run on the protocol client's receipt goroutine.
type EventSink interface {
	// OnStateChange fires on every connection state transition.
	OnStateChange(from, to ConnectionState)

	// OnFirmwareInfo fires once per successful handshake.
	OnFirmwareInfo(info FirmwareInfo)

	// OnTemperatures delivers heater readings keyed by host-side names.
	OnTemperatures(temps map[string]Temperature)

	// OnLogs delivers console and connector log lines.
	OnLogs(lines ...string)

	// OnJobStarted fires when a print job begins, whether started through
	// this connector or detected externally.
	OnJobStarted(job string)

	// OnJobEnded fires when the active job reaches a terminal state.
	OnJobEnded(job string, outcome JobOutcome)

	// OnProgress delivers updated job progress while a job is active.
	OnProgress(progress JobProgress)

	// OnZChange fires when the gcode Z position changes.
	OnZChange(z float64)

	// OnFilesAvailable reports whether printer file storage is reachable.
	OnFilesAvailable(available bool)

	// OnFilesRefreshed fires after a storage root's file tree was rebuilt.
	OnFilesRefreshed(root string)
}

// NopEvents implements EventSink with no-ops, for embedding.
type NopEvents struct{}

func (NopEvents) OnStateChange(ConnectionState, ConnectionState) {}
func (NopEvents) OnFirmwareInfo(FirmwareInfo)                    {}
func (NopEvents) OnTemperatures(map[string]Temperature)          {}
func (NopEvents) OnLogs(...string)                               {}
func (NopEvents) OnJobStarted(string)                            {}
func (NopEvents) OnJobEnded(string, JobOutcome)                  {}
func (NopEvents) OnProgress(JobProgress)                         {}
func (NopEvents) OnZChange(float64)                              {}
func (NopEvents) OnFilesAvailable(bool)                          {}
func (NopEvents) OnFilesRefreshed(string)                        {}

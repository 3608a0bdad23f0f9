package moonraker

// Listener receives protocol events from the client. Handlers for
// notification-driven events are invoked from the websocket receipt
// goroutine and must not block on client calls.
type Listener interface {
	// OnConnected fires once the full handshake has completed and status
	// subscriptions are active.
	OnConnected()

	// OnDisconnected fires when the session is over. A nil error means a
	// clean, requested shutdown.
	OnDisconnected(err error)

	// OnServerInfo forwards the server.info response of a successful
	// handshake.
	OnServerInfo(info ServerInfo)

	// OnPrinterState fires whenever print_stats reports a state value.
	OnPrinterState(state PrinterState)

	// OnIdleState fires whenever idle_timeout reports a state value.
	OnIdleState(state IdleState)

	// OnPrintProgress carries partial progress values from virtual_sdcard
	// and print_stats updates.
	OnPrintProgress(update ProgressUpdate)

	// OnPrintDetected fires when virtual_sdcard reports a newly loaded
	// file path, before the corresponding job starts.
	OnPrintDetected(path string)

	// OnTemperatures delivers a snapshot of the heater cache. Actual-only
	// changes are throttled; target changes are delivered immediately.
	OnTemperatures(temps map[string]TemperatureReading)

	// OnPositionUpdate fires whenever gcode_move reports a gcode position.
	OnPositionUpdate(pos Coordinate)

	// OnMacrosUpdated delivers the recomputed macro catalog.
	OnMacrosUpdated(macros map[string]MacroParams)

	// OnGcodeLog delivers console lines: firmware responses, sent command
	// echoes and connector banners.
	OnGcodeLog(lines ...string)

	// OnActionCommand fires for firmware "// action:" lines with the raw
	// line, the action word and the remaining parameter string.
	OnActionCommand(line, action, params string)

	// OnFilesRefreshed fires after the file tree of a storage root has
	// been (re)built; read the result through Client.Tree.
	OnFilesRefreshed(root string)

	// OnJobHistory delivers the job history fetched during the handshake.
	OnJobHistory(jobs []JobHistoryEntry)
}

// NopListener implements Listener with no-ops. Embed it to implement only
// the events a host cares about.
type NopListener struct{}

func (NopListener) OnConnected()                                     {}
func (NopListener) OnDisconnected(error)                             {}
func (NopListener) OnServerInfo(ServerInfo)                          {}
func (NopListener) OnPrinterState(PrinterState)                      {}
func (NopListener) OnIdleState(IdleState)                            {}
func (NopListener) OnPrintProgress(ProgressUpdate)                   {}
func (NopListener) OnPrintDetected(string)                           {}
func (NopListener) OnTemperatures(map[string]TemperatureReading)     {}
func (NopListener) OnPositionUpdate(Coordinate)                      {}
func (NopListener) OnMacrosUpdated(map[string]MacroParams)           {}
func (NopListener) OnGcodeLog(...string)                             {}
func (NopListener) OnActionCommand(string, string, string)           {}
func (NopListener) OnFilesRefreshed(string)                          {}
func (NopListener) OnJobHistory([]JobHistoryEntry)                   {}

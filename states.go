package moonraker

// KlipperState is the lifecycle state of the Klipper firmware as reported by
// Moonraker. It drives whether a handshake may proceed; transitions happen
// only on klippy notifications or explicit server.info queries.
type KlipperState string

// Known Klipper firmware states
const (
	KlipperReady        KlipperState = "ready"
	KlipperError        KlipperState = "error"
	KlipperShutdown     KlipperState = "shutdown"
	KlipperStartup      KlipperState = "startup"
	KlipperDisconnected KlipperState = "disconnected"
	KlipperUnknown      KlipperState = "unknown"
)

// KlipperStateFrom maps a reported value onto a known state, falling back to
// KlipperUnknown.
func KlipperStateFrom(value string) KlipperState {
	switch KlipperState(value) {
	case KlipperReady, KlipperError, KlipperShutdown, KlipperStartup, KlipperDisconnected:
		return KlipperState(value)
	default:
		return KlipperUnknown
	}
}

// klipperStateDiagnostics maps non-ready firmware states onto the diagnostic
// message logged when a handshake cannot proceed.
var klipperStateDiagnostics = map[KlipperState]string{
	KlipperStartup:  "Klipper is still starting up",
	KlipperError:    "Klipper experienced an error during startup",
	KlipperShutdown: "Klipper is in a shutdown state",
	KlipperDisconnected: "Klipper is not running, has experienced a critical error during startup " +
		"or doesn't have its API server enabled",
}

// PrinterState is the firmware-reported high level print state.
type PrinterState string

// Known printer states
const (
	PrinterStandby   PrinterState = "standby"
	PrinterPrinting  PrinterState = "printing"
	PrinterPaused    PrinterState = "paused"
	PrinterComplete  PrinterState = "complete"
	PrinterError     PrinterState = "error"
	PrinterCancelled PrinterState = "cancelled"
	PrinterUnknown   PrinterState = "unknown"
)

// PrinterStateFrom maps a reported value onto a known state, falling back to
// PrinterUnknown.
func PrinterStateFrom(value string) PrinterState {
	switch PrinterState(value) {
	case PrinterStandby, PrinterPrinting, PrinterPaused, PrinterComplete, PrinterError, PrinterCancelled:
		return PrinterState(value)
	default:
		return PrinterUnknown
	}
}

// IdleState is the idle_timeout module's busy/idle report. "Printing" here
// means gcode is being executed, which also covers long-running macros with
// no active print job.
type IdleState string

// Known idle states. Moonraker reports these capitalized.
const (
	IdlePrinting IdleState = "Printing"
	IdleReady    IdleState = "Ready"
	IdleIdle     IdleState = "Idle"
	IdleUnknown  IdleState = "unknown"
)

// IdleStateFrom maps a reported value onto a known state, falling back to
// IdleUnknown.
func IdleStateFrom(value string) IdleState {
	switch IdleState(value) {
	case IdlePrinting, IdleReady, IdleIdle:
		return IdleState(value)
	default:
		return IdleUnknown
	}
}

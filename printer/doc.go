// Package printer reconciles Moonraker protocol events into a printer
// connection and job state machine for a host application.
//
// The firmware reports two independent signals: a print state (standby,
// printing, paused, ...) and an idle state (whether gcode is executing).
// Neither alone disambiguates all transitions, because long-running macros
// keep the firmware busy without an active print. The reconciler therefore
// double-checks pending terminal transitions: pausing, cancelling and
// finishing only settle once the print state matches the expected terminal
// value and the idle state confirms the firmware has drained its queue.
package printer

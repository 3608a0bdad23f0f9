// Package moonraker implements a client for the Moonraker API server that
// fronts the Klipper 3D printer firmware.
//
// A Client owns one websocket session. On connect it identifies itself,
// waits for the firmware to report ready, replays the console history,
// discovers the relevant printer objects and subscribes to status updates.
// From then on it keeps caches of temperatures, macros and file trees
// current and forwards protocol events to the Listener supplied at
// construction.
//
// Notification handlers run on the websocket receipt goroutine. Listener
// implementations must not issue blocking client calls from event handlers;
// doing so would stall response processing.
package moonraker

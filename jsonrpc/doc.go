// Package jsonrpc implements the websocket JSON-RPC 2.0 transport used to
// talk to Moonraker.
//
// The Client maintains one websocket session. Outbound calls may be issued
// from any goroutine; each returns a Call whose result arrives asynchronously.
// A single receipt goroutine reads every inbound frame and is the only place
// pending calls resolve and notification handlers run, which serializes all
// state derived from server traffic without further locking.
//
// Responses are correlated to calls by monotonically increasing integer ids.
// Ids are never reused, even across reconnects. Responses whose id matches no
// pending call are dropped silently. Inbound frames may be single objects or
// batch arrays. Server-pushed notifications (method prefix "notify_") are
// dispatched to subscribers in registration order; any other inbound method
// call is answered with a method-not-found error.
//
// The transport never reconnects by itself: when the session ends it fails
// all pending calls, reports the close to its owner and waits for an explicit
// Connect.
package jsonrpc

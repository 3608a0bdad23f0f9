package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/moonraker/errors"
)

// NotificationHandler receives a server-pushed notification. Handlers run
// synchronously on the receipt goroutine, in registration order.
type NotificationHandler func(method string, params json.RawMessage)

// subscriber pairs a handler with its identity key for duplicate detection.
type subscriber struct {
	key     uintptr
	handler NotificationHandler
}

// Client maintains one websocket session speaking JSON-RPC 2.0: it frames
// requests, assigns monotonically increasing message ids, resolves pending
// calls against incoming responses and dispatches notifications to
// subscribers. All inbound traffic is handled serially by a single receipt
// goroutine, which is the only place calls resolve and handlers run.
type Client struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger *slog.Logger

	mu   sync.RWMutex // guards conn
	conn *websocket.Conn

	writeMu sync.Mutex // gorilla permits a single concurrent writer

	nextID atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]*Call

	subsMu sync.Mutex
	subs   map[string][]subscriber

	connectHandler func()
	closeHandler   func(err error)

	closing atomic.Bool
	wg      sync.WaitGroup

	metrics *Metrics
}

// NewClient creates a JSON-RPC websocket client for the given URL.
// The connection is not opened until Connect is called.
func NewClient(url string, opts ...Option) (*Client, error) {
	c := &Client{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 45 * time.Second,
		},
		logger:  slog.Default(),
		pending: make(map[int64]*Call),
		subs:    make(map[string][]subscriber),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	return c, nil
}

// URL returns the websocket URL this client dials.
func (c *Client) URL() string {
	return c.url
}

// Connected reports whether a session is currently open.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Connect opens the websocket session and starts the receipt goroutine.
// Calling Connect while a session is active is a no-op. After a close the
// client may be connected again; message ids keep increasing across sessions.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	c.logger.Info("connecting", "url", c.url)

	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (http status %d)", err, resp.StatusCode)
		}
		return errors.WrapTransient(err, "Client", "Connect", "dial websocket")
	}

	c.conn = conn
	c.closing.Store(false)

	if c.metrics != nil {
		c.metrics.connectionsTotal.Inc()
	}

	c.wg.Add(1)
	go c.readLoop(conn)

	c.logger.Info("connected", "url", c.url)

	if c.connectHandler != nil {
		go c.connectHandler()
	}

	return nil
}

// Close shuts the session down with a normal close frame and waits for the
// receipt goroutine to exit. Safe to call when not connected.
func (c *Client) Close() error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return nil
	}

	c.closing.Store(true)

	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := conn.Close()
	c.wg.Wait()

	if err != nil {
		return errors.WrapTransient(err, "Client", "Close", "close websocket")
	}
	return nil
}

// Call allocates the next message id, registers a pending call, sends the
// request and returns the in-flight call. Resolution happens exclusively on
// the receipt goroutine; use Call.Wait or Call.Decode with a context to bound
// the wait.
func (c *Client) Call(method string, params any) (*Call, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return nil, errors.WrapTransient(errors.ErrNotConnected, "Client", "Call", method)
	}

	id := c.nextID.Add(1)
	call := newCall(c, method, id)

	req := Request{
		Version: Version,
		Method:  method,
		Params:  params,
		ID:      &id,
	}

	c.logger.Debug("calling method", "method", method, "id", id)

	c.pendingMu.Lock()
	c.pending[id] = call
	pendingCount := len(c.pending)
	c.pendingMu.Unlock()

	if c.metrics != nil {
		c.metrics.callsTotal.WithLabelValues(method).Inc()
		c.metrics.pendingCalls.Set(float64(pendingCount))
	}

	if err := c.writeJSON(conn, req); err != nil {
		c.forget(id)
		wrapped := errors.WrapTransient(err, "Client", "Call", method)
		call.complete(nil, wrapped)
		return nil, wrapped
	}

	return call, nil
}

// Invoke is a convenience wrapper: Call plus Decode under one context.
func (c *Client) Invoke(ctx context.Context, method string, params, result any) error {
	call, err := c.Call(method, params)
	if err != nil {
		return err
	}
	return call.Decode(ctx, result)
}

// NotifyError sends a JSON-RPC error object back to the peer. Used when an
// inbound message claims a method this client does not serve.
func (c *Client) NotifyError(rpcErr *Error, id *int64) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return errors.WrapTransient(errors.ErrNotConnected, "Client", "NotifyError", "send error")
	}

	resp := Response{
		Version: Version,
		Error:   rpcErr,
		ID:      id,
	}
	return c.writeJSON(conn, resp)
}

// Subscribe registers a handler for a notification method. Registering the
// same handler twice for the same method is a no-op. Handlers are invoked in
// registration order.
func (c *Client) Subscribe(method string, handler NotificationHandler) {
	if handler == nil {
		return
	}
	key := reflect.ValueOf(handler).Pointer()

	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	for _, sub := range c.subs[method] {
		if sub.key == key {
			return
		}
	}
	c.subs[method] = append(c.subs[method], subscriber{key: key, handler: handler})
}

// Unsubscribe removes a previously registered handler. Unknown handlers are
// ignored.
func (c *Client) Unsubscribe(method string, handler NotificationHandler) {
	if handler == nil {
		return
	}
	key := reflect.ValueOf(handler).Pointer()

	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	subs := c.subs[method]
	for i, sub := range subs {
		if sub.key == key {
			c.subs[method] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// ResetSubscriptions removes all notification handlers.
func (c *Client) ResetSubscriptions() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.subs = make(map[string][]subscriber)
}

// writeJSON serializes and sends one frame. Writes are serialized because
// gorilla/websocket supports only one concurrent writer.
func (c *Client) writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// forget removes a pending call without resolving it. Used when a caller
// stops waiting, so late responses for the id are dropped as unmatched.
func (c *Client) forget(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	pendingCount := len(c.pending)
	c.pendingMu.Unlock()

	if c.metrics != nil {
		c.metrics.pendingCalls.Set(float64(pendingCount))
	}
}

// readLoop is the single receipt goroutine: every inbound frame, response and
// notification is processed here serially.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		c.handleFrame(data)
	}
}

// handleDisconnect tears down session state and reports the close upward.
// There is no automatic reconnect; the owner decides whether to Connect again.
func (c *Client) handleDisconnect(conn *websocket.Conn, readErr error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	closeErr := c.closeError(readErr)

	if closeErr != nil {
		c.logger.Error("connection closed", "error", closeErr)
	} else {
		c.logger.Info("connection closed")
	}

	// Pending calls can never resolve once the socket is gone.
	failErr := closeErr
	if failErr == nil {
		failErr = errors.ErrConnectionClosed
	}
	c.failPending(failErr)

	if c.closeHandler != nil {
		c.closeHandler(closeErr)
	}
}

// closeError derives the error reported upward from the read failure.
// A close we initiated or a normal peer close is not an error.
func (c *Client) closeError(readErr error) error {
	if c.closing.Load() {
		return nil
	}

	if ce, ok := readErr.(*websocket.CloseError); ok {
		if ce.Code == websocket.CloseNormalClosure {
			return nil
		}
		return fmt.Errorf("websocket closed unexpectedly: %s (code %d)", ce.Text, ce.Code)
	}

	return fmt.Errorf("%w: %v", errors.ErrConnectionLost, readErr)
}

// failPending resolves every outstanding call with err and clears the table.
func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[int64]*Call)
	c.pendingMu.Unlock()

	if c.metrics != nil {
		c.metrics.pendingCalls.Set(0)
	}

	for _, call := range pending {
		call.complete(nil, err)
	}
}

// handleFrame parses a text frame as either a single message object or a
// batch array of them.
func (c *Client) handleFrame(data []byte) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return
	}

	if trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			c.logger.Warn("failed to parse batch frame", "error", err)
			return
		}
		for _, raw := range batch {
			c.handleMessage(raw)
		}
		return
	}

	c.handleMessage(trimmed)
}

// handleMessage routes one inbound message. The body is guarded by a blanket
// recovery so one bad message cannot kill the receipt goroutine.
func (c *Client) handleMessage(raw json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic while handling message", "panic", r)
			if c.metrics != nil {
				c.metrics.errorsTotal.WithLabelValues("panic").Inc()
			}
		}
	}()

	var msg anyMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Warn("failed to parse message", "error", err)
		if c.metrics != nil {
			c.metrics.errorsTotal.WithLabelValues("parse").Inc()
		}
		return
	}

	if msg.Version != Version {
		return
	}

	switch {
	case msg.isResponse():
		c.handleResponse(&msg)

	case strings.HasPrefix(msg.Method, notifyPrefix):
		c.dispatch(msg.Method, msg.Params)

	case msg.Method != "":
		// Inbound call for a method this client does not serve.
		if err := c.NotifyError(NewMethodNotFoundError(raw), msg.ID); err != nil {
			c.logger.Warn("failed to send method-not-found reply", "error", err)
		}
	}
}

// handleResponse resolves the pending call matching the response id.
// Unmatched ids (already resolved, purged or never issued) are dropped.
func (c *Client) handleResponse(msg *anyMessage) {
	if msg.ID == nil {
		c.logger.Warn("received response without id")
		return
	}

	c.pendingMu.Lock()
	call, ok := c.pending[*msg.ID]
	if ok {
		delete(c.pending, *msg.ID)
	}
	pendingCount := len(c.pending)
	c.pendingMu.Unlock()

	if c.metrics != nil {
		c.metrics.pendingCalls.Set(float64(pendingCount))
	}

	if !ok {
		c.logger.Debug("dropping unmatched response", "id", *msg.ID)
		if c.metrics != nil {
			c.metrics.orphanResponses.Inc()
		}
		return
	}

	if msg.Error != nil {
		c.logger.Error("received error result",
			"method", call.Method, "id", call.ID,
			"code", msg.Error.Code, "message", msg.Error.Message)
		if c.metrics != nil {
			c.metrics.callErrorsTotal.WithLabelValues(call.Method).Inc()
		}
		call.complete(nil, msg.Error)
		return
	}

	c.logger.Debug("received result", "method", call.Method, "id", call.ID)
	call.complete(msg.Result, nil)
}

// dispatch invokes notification handlers synchronously in registration order.
func (c *Client) dispatch(method string, params json.RawMessage) {
	c.subsMu.Lock()
	subs := make([]subscriber, len(c.subs[method]))
	copy(subs, c.subs[method])
	c.subsMu.Unlock()

	if len(subs) > 0 {
		c.logger.Debug("received notification", "method", method)
	}
	if c.metrics != nil {
		c.metrics.notificationsTotal.WithLabelValues(method).Inc()
	}

	for _, sub := range subs {
		sub.handler(method, params)
	}
}

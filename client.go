package moonraker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/moonraker/errors"
	"github.com/c360/moonraker/jsonrpc"
	"github.com/c360/moonraker/metric"
)

const (
	defaultPort    = 7125
	defaultTimeout = 30 * time.Second

	websocketURLFormat = "ws://%s:%d/websocket"
	httpURLFormat      = "http://%s:%d"

	// handshake attempts accumulate until the firmware reports ready again
	maxHandshakeAttempts = 5

	// actual-only temperature updates are delivered at most once per interval
	temperatureInterval = time.Second

	genericHeaterPrefix = "heater_generic "
	macroPrefix         = "gcode_macro "

	actionPrefix = "// action:"

	defaultClientName = "moonrakerd"
	defaultClientURL  = "https://github.com/c360/moonraker"

	// RootGcodes is the Moonraker storage root holding printable files.
	RootGcodes = "gcodes"
)

// objectMatcher selects printer objects from printer.objects.list output,
// either by exact name or by prefix.
type objectMatcher struct {
	name   string
	prefix string
}

func (m objectMatcher) matches(object string) bool {
	if m.prefix != "" {
		return strings.HasPrefix(object, m.prefix)
	}
	return object == m.name
}

// relevantObjects are the printer objects the connector tracks. Everything
// else the firmware exposes is ignored.
var relevantObjects = []objectMatcher{
	{name: "configfile"},
	{name: "display_status"},
	{name: "extruder"},
	{name: "gcode_move"},
	{name: "heater_bed"},
	{name: "idle_timeout"},
	{name: "print_stats"},
	{name: "virtual_sdcard"},
	{prefix: genericHeaterPrefix},
	{prefix: macroPrefix},
}

// Client is a Moonraker protocol client. It drives the websocket handshake,
// keeps printer state caches current from status notifications and exposes
// the command surface of the Moonraker API. Events are delivered through the
// Listener passed to New.
type Client struct {
	host          string
	port          int
	apiKey        string
	clientName    string
	clientVersion string
	timeout       time.Duration
	roots         map[string]struct{}

	rpc        *jsonrpc.Client
	httpClient *http.Client
	listener   Listener
	logger     *slog.Logger
	registry   *metric.Registry
	metrics    *clientMetrics

	tempLimiter *rate.Limiter

	// mu guards everything below. Notification handlers run on the
	// websocket receipt goroutine, handshake continuations on their own
	// goroutine, so cache access is locked rather than thread-confined.
	mu               sync.Mutex
	klipperState     KlipperState
	handshakeAttempt int
	klippySubscribed bool
	historyReceived  bool
	heaters          []string
	subscribedObjs   []string
	temperatures     map[string]TemperatureReading
	macros           map[string]MacroParams
	jobHistory       []JobHistoryEntry
	lastFilePath     string

	treeMu sync.RWMutex
	trees  map[string]Tree
}

// New creates a client for the Moonraker instance on host. The listener
// receives all protocol events; it must not be nil.
func New(listener Listener, host string, opts ...Option) (*Client, error) {
	if listener == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "New", "listener check")
	}
	if host == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "New", "host check")
	}

	c := &Client{
		host:          host,
		port:          defaultPort,
		clientName:    defaultClientName,
		clientVersion: "dev",
		timeout:       defaultTimeout,
		roots:         map[string]struct{}{RootGcodes: {}},
		httpClient:    &http.Client{},
		listener:      listener,
		logger:        slog.Default(),
		tempLimiter:   rate.NewLimiter(rate.Every(temperatureInterval), 1),
		temperatures:  make(map[string]TemperatureReading),
		macros:        make(map[string]MacroParams),
		trees:         make(map[string]Tree),
		klipperState:  KlipperUnknown,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	rpcOpts := []jsonrpc.Option{
		jsonrpc.WithLogger(c.logger),
		jsonrpc.WithConnectHandler(c.onSocketOpen),
		jsonrpc.WithCloseHandler(c.onSocketClose),
	}
	if c.registry != nil {
		m, err := newClientMetrics(c.registry)
		if err != nil {
			return nil, err
		}
		c.metrics = m
		rpcOpts = append(rpcOpts, jsonrpc.WithMetrics(c.registry))
	}

	rpc, err := jsonrpc.NewClient(fmt.Sprintf(websocketURLFormat, c.host, c.port), rpcOpts...)
	if err != nil {
		return nil, err
	}
	c.rpc = rpc

	return c, nil
}

// RPC exposes the underlying transport, mainly for tests and custom calls.
func (c *Client) RPC() *jsonrpc.Client {
	return c.rpc
}

// HTTPURL returns the base URL for Moonraker's HTTP endpoints.
func (c *Client) HTTPURL() string {
	return fmt.Sprintf(httpURLFormat, c.host, c.port)
}

// Connect opens the websocket session and kicks off identification and the
// handshake. Completion is signalled through the listener's OnConnected.
func (c *Client) Connect(ctx context.Context) error {
	c.resetSession()
	return c.rpc.Connect(ctx)
}

// Close shuts the session down. The listener sees OnDisconnected with a nil
// error.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// Connected reports whether the websocket session is up. It does not imply
// the handshake has completed.
func (c *Client) Connected() bool {
	return c.rpc.Connected()
}

// KlipperState returns the last known firmware state.
func (c *Client) KlipperState() KlipperState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.klipperState
}

// Temperatures returns a snapshot of the heater cache.
func (c *Client) Temperatures() map[string]TemperatureReading {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make(map[string]TemperatureReading, len(c.temperatures))
	for k, v := range c.temperatures {
		snapshot[k] = v
	}
	return snapshot
}

// Macros returns a snapshot of the macro catalog.
func (c *Client) Macros() map[string]MacroParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make(map[string]MacroParams, len(c.macros))
	for k, v := range c.macros {
		params := make(MacroParams, len(v))
		for name, def := range v {
			params[name] = def
		}
		snapshot[k] = params
	}
	return snapshot
}

// JobHistory returns the job history fetched during the handshake.
func (c *Client) JobHistory() []JobHistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	jobs := make([]JobHistoryEntry, len(c.jobHistory))
	copy(jobs, c.jobHistory)
	return jobs
}

// resetSession clears per-session caches before a (re)connect. The klippy
// topic subscriptions persist on the transport across sessions.
func (c *Client) resetSession() {
	c.mu.Lock()
	c.klipperState = KlipperUnknown
	c.handshakeAttempt = 0
	c.historyReceived = false
	c.heaters = nil
	c.subscribedObjs = nil
	c.temperatures = make(map[string]TemperatureReading)
	c.macros = make(map[string]MacroParams)
	c.lastFilePath = ""
	c.mu.Unlock()

	c.treeMu.Lock()
	c.trees = make(map[string]Tree)
	c.treeMu.Unlock()
}

func (c *Client) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.timeout)
}

// onSocketOpen runs on its own goroutine once the websocket is up.
func (c *Client) onSocketOpen() {
	if err := c.identify(); err != nil {
		c.logger.Error("error while identifying connection", "error", err)
		c.listener.OnDisconnected(fmt.Errorf("error while identifying connection: %w -- API key correct?", err))
		return
	}
	c.handshake(true)
}

func (c *Client) onSocketClose(err error) {
	if c.metrics != nil {
		c.metrics.klippyReady.Set(0)
	}
	c.listener.OnDisconnected(err)
}

// identify announces the client to Moonraker and records the assigned
// connection id.
func (c *Client) identify() error {
	params := map[string]any{
		"client_name": c.clientName,
		"version":     c.clientVersion,
		"type":        "agent",
		"url":         defaultClientURL,
	}
	if c.apiKey != "" {
		params["api_key"] = c.apiKey
	}

	ctx, cancel := c.callContext()
	defer cancel()

	var result struct {
		ConnectionID int64 `json:"connection_id"`
	}
	if err := c.rpc.Invoke(ctx, "server.connection.identify", params, &result); err != nil {
		return err
	}

	c.logger.Info("connection identified", "connection_id", result.ConnectionID)
	return nil
}

// handshake queries server.info and, if the firmware is ready, runs the full
// bootstrap: console history, job history, object discovery, initial query
// and status subscription. When the firmware is not ready it returns and
// waits for a klippy ready notification to retrigger it.
func (c *Client) handshake(reset bool) {
	c.mu.Lock()
	if reset {
		c.handshakeAttempt = 0
	}
	if !c.klippySubscribed {
		c.klippySubscribed = true
		for _, topic := range []string{"ready", "disconnected", "shutdown"} {
			c.rpc.Subscribe("notify_klippy_"+topic, c.onKlippyStateChange)
		}
	}
	c.handshakeAttempt++
	attempt := c.handshakeAttempt
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.handshakeAttempts.Inc()
	}

	if attempt > maxHandshakeAttempts {
		if c.metrics != nil {
			c.metrics.handshakeFailures.Inc()
		}
		c.listener.OnDisconnected(errors.ErrMaxHandshakeAttempts)
		return
	}

	ctx, cancel := c.callContext()
	defer cancel()

	var info ServerInfo
	if err := c.rpc.Invoke(ctx, "server.info", nil, &info); err != nil {
		c.logger.Error("error while retrieving server info", "error", err)
		if c.metrics != nil {
			c.metrics.handshakeFailures.Inc()
		}
		c.listener.OnDisconnected(fmt.Errorf("error while retrieving server info: %w -- check moonraker.log for details", err))
		return
	}

	state := KlipperStateFrom(info.KlippyState)

	// direct assignment, the ready transition must not retrigger the
	// handshake from inside itself
	c.mu.Lock()
	c.klipperState = state
	c.mu.Unlock()
	if c.metrics != nil {
		if state == KlipperReady {
			c.metrics.klippyReady.Set(1)
		} else {
			c.metrics.klippyReady.Set(0)
		}
	}

	if state != KlipperReady {
		diag, ok := klipperStateDiagnostics[state]
		if !ok {
			diag = fmt.Sprintf("Klipper reports state %q", state)
		}
		c.logger.Error(diag, "state", state, "attempt", attempt)
		c.listener.OnGcodeLog("!!! " + diag)
		if c.metrics != nil {
			c.metrics.handshakeFailures.Inc()
		}
		return
	}

	c.listener.OnServerInfo(info)
	c.logger.Info("connected to Moonraker",
		"moonraker_version", info.MoonrakerVersion,
		"api_version", info.APIVersionString)

	c.FetchConsoleHistory(ctx, 100, false)
	c.fetchJobHistory(ctx)
	c.subscribeToUpdates(ctx)
}

// onKlippyStateChange runs on the receipt goroutine for klippy lifecycle
// notifications.
func (c *Client) onKlippyStateChange(method string, _ json.RawMessage) {
	switch method {
	case "notify_klippy_ready":
		c.logger.Info("klippy is ready")
		c.setKlipperState(KlipperReady)
	case "notify_klippy_disconnected":
		c.logger.Warn("klippy disconnected")
		c.setKlipperState(KlipperDisconnected)
	case "notify_klippy_shutdown":
		c.logger.Warn("klippy shutdown, issue FIRMWARE_RESTART to restart")
		c.setKlipperState(KlipperShutdown)
	}
}

// setKlipperState records a firmware state transition. A transition into
// ready restarts the handshake with a fresh attempt budget, on its own
// goroutine so the receipt goroutine is never blocked on RPC replies.
func (c *Client) setKlipperState(state KlipperState) {
	c.mu.Lock()
	prev := c.klipperState
	c.klipperState = state
	c.mu.Unlock()

	if c.metrics != nil {
		if state == KlipperReady {
			c.metrics.klippyReady.Set(1)
		} else {
			c.metrics.klippyReady.Set(0)
		}
	}

	if state == prev {
		return
	}
	if prev != KlipperReady && state == KlipperReady {
		go c.handshake(true)
	}
}

// subscribeToUpdates registers the status notification handlers, discovers
// the relevant printer objects, primes the caches with an initial query and
// subscribes to object updates. OnConnected fires once the subscription is
// acknowledged.
func (c *Client) subscribeToUpdates(ctx context.Context) {
	c.rpc.Subscribe("notify_status_update", c.onStatusUpdate)
	c.rpc.Subscribe("notify_filelist_changed", c.onFilelistChanged)
	c.rpc.Subscribe("notify_gcode_response", c.onGcodeResponse)

	var list struct {
		Objects []string `json:"objects"`
	}
	if err := c.rpc.Invoke(ctx, "printer.objects.list", nil, &list); err != nil {
		c.logger.Error("error while retrieving printer objects", "error", err)
		c.listener.OnDisconnected(fmt.Errorf("error while retrieving printer objects: %w", err))
		return
	}

	var matched []string
	for _, obj := range list.Objects {
		for _, matcher := range relevantObjects {
			if matcher.matches(obj) {
				matched = append(matched, obj)
				break
			}
		}
	}
	if len(matched) == 0 {
		c.logger.Warn("no relevant printer objects reported")
		return
	}

	// configfile and the macros are one-shot query material, not
	// subscription material
	var subbed, heaters []string
	for _, obj := range matched {
		if obj != "configfile" && !strings.HasPrefix(obj, macroPrefix) {
			subbed = append(subbed, obj)
		}
		if obj == "extruder" || obj == "heater_bed" || strings.HasPrefix(obj, genericHeaterPrefix) {
			heaters = append(heaters, obj)
		}
	}

	c.mu.Lock()
	c.subscribedObjs = subbed
	c.heaters = heaters
	c.mu.Unlock()

	if err := c.QueryPrinterObjects(ctx, matched); err != nil {
		c.logger.Error("error while querying printer objects", "error", err)
	}

	params := map[string]any{"objects": nullValues(subbed)}
	if err := c.rpc.Invoke(ctx, "printer.objects.subscribe", params, nil); err != nil {
		c.logger.Error("error while subscribing to printer objects", "error", err)
		c.listener.OnDisconnected(fmt.Errorf("error while subscribing to printer objects: %w", err))
		return
	}

	c.listener.OnConnected()

	for root := range c.roots {
		root := root
		go func() {
			refreshCtx, cancel := c.callContext()
			defer cancel()
			if err := c.RefreshTree(refreshCtx, root); err != nil {
				c.logger.Error("error while refreshing file tree", "root", root, "error", err)
			}
		}()
	}
}

// QueryPrinterObjects fetches a one-shot status snapshot for the named
// objects and feeds it through the cache update path.
func (c *Client) QueryPrinterObjects(ctx context.Context, objects []string) error {
	if objects == nil {
		c.mu.Lock()
		objects = c.subscribedObjs
		c.mu.Unlock()
	}

	params := map[string]any{"objects": nullValues(objects)}
	var result objectsStatus
	if err := c.rpc.Invoke(ctx, "printer.objects.query", params, &result); err != nil {
		return errors.WrapTransient(err, "Client", "QueryPrinterObjects", "object query")
	}
	if result.Status == nil {
		c.logger.Warn("printer object query result is missing the status field")
		return errors.WrapInvalid(errors.ErrMissingField, "Client", "QueryPrinterObjects", "status field check")
	}

	c.processQueryResult(result.Status)
	return nil
}

// QueryPrintStatus fetches the current print_stats and virtual_sdcard
// snapshot, used to discover prints started outside this connection.
func (c *Client) QueryPrintStatus(ctx context.Context) (PrintStats, SDCardStats, error) {
	params := map[string]any{"objects": nullValues([]string{"print_stats", "virtual_sdcard"})}

	var result struct {
		Status struct {
			PrintStats    *PrintStats  `json:"print_stats"`
			VirtualSDCard *SDCardStats `json:"virtual_sdcard"`
		} `json:"status"`
	}
	if err := c.rpc.Invoke(ctx, "printer.objects.query", params, &result); err != nil {
		return PrintStats{}, SDCardStats{}, errors.WrapTransient(err, "Client", "QueryPrintStatus", "object query")
	}
	if result.Status.PrintStats == nil || result.Status.VirtualSDCard == nil {
		return PrintStats{}, SDCardStats{}, errors.WrapInvalid(errors.ErrMissingField,
			"Client", "QueryPrintStatus", "print_stats and virtual_sdcard check")
	}
	return *result.Status.PrintStats, *result.Status.VirtualSDCard, nil
}

// nullValues builds the {"name": null, ...} object map Moonraker expects for
// query and subscribe calls.
func nullValues(objects []string) map[string]any {
	m := make(map[string]any, len(objects))
	for _, obj := range objects {
		m[obj] = nil
	}
	return m
}

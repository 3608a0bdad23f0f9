package printer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/moonraker"
	"github.com/c360/moonraker/errors"
)

const (
	defaultCommandTimeout = 30 * time.Second

	// placeholder job name when an externally started print cannot be
	// identified
	unknownJob = "unknown job"
)

// temperatureLookup maps firmware heater names onto the host-side names.
// Unmapped heaters keep their firmware name.
var temperatureLookup = map[string]string{
	"extruder":   "tool0",
	"heater_bed": "bed",
	"chamber":    "chamber",
}

// Profile carries the host-side printer profile values the gcode helpers
// depend on.
type Profile struct {
	// AxisSpeeds holds the maximum speed per axis (x, y, z, e) in mm/min.
	AxisSpeeds map[string]float64
	// ExtruderCount is the number of extruders.
	ExtruderCount int
	// SharedNozzle marks multi-extruder setups feeding a single nozzle.
	SharedNozzle bool
}

// DefaultProfile returns a conservative single-extruder profile.
func DefaultProfile() Profile {
	return Profile{
		AxisSpeeds:    map[string]float64{"x": 6000, "y": 6000, "z": 200, "e": 300},
		ExtruderCount: 1,
	}
}

// Printer reconciles protocol client events into a connection/job state
// machine and exposes the command surface to the host application. It
// implements moonraker.Listener.
type Printer struct {
	events     EventSink
	client     ProtocolClient
	logger     *slog.Logger
	profile    Profile
	timeout    time.Duration
	clientOpts []moonraker.Option

	mu           sync.Mutex
	state        ConnectionState
	lastError    error
	printerState moonraker.PrinterState
	idleState    moonraker.IdleState
	job          *JobProgress
	lastZ        *float64
	cachedJobs   map[string]string

	discovering atomic.Bool
}

// Option configures a Printer.
type Option func(*Printer) error

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Printer) error {
		if logger == nil {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Printer", "WithLogger", "logger check")
		}
		p.logger = logger
		return nil
	}
}

// WithProfile sets the printer profile used by the gcode helpers.
func WithProfile(profile Profile) Option {
	return func(p *Printer) error {
		if len(profile.AxisSpeeds) == 0 || profile.ExtruderCount < 1 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Printer", "WithProfile", "profile check")
		}
		p.profile = profile
		return nil
	}
}

// WithCommandTimeout sets the deadline for internally awaited commands.
func WithCommandTimeout(timeout time.Duration) Option {
	return func(p *Printer) error {
		if timeout <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Printer", "WithCommandTimeout", "timeout check")
		}
		p.timeout = timeout
		return nil
	}
}

// ClientOption adapts protocol client options for New.
func ClientOption(opt moonraker.Option) Option {
	return func(p *Printer) error {
		p.clientOpts = append(p.clientOpts, opt)
		return nil
	}
}

// New creates a reconciler for the Moonraker instance on host. The events
// sink receives all reconciled callbacks.
func New(events EventSink, host string, opts ...Option) (*Printer, error) {
	if events == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Printer", "New", "events check")
	}

	p := &Printer{
		events:     events,
		logger:     slog.Default(),
		profile:    DefaultProfile(),
		timeout:    defaultCommandTimeout,
		state:      StateClosed,
		cachedJobs: make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	clientOpts := append([]moonraker.Option{moonraker.WithLogger(p.logger)}, p.clientOpts...)
	client, err := moonraker.New(p, host, clientOpts...)
	if err != nil {
		return nil, err
	}
	p.client = clientAdapter{client}

	return p, nil
}

// Connect opens the connection. The transition to operational happens
// asynchronously once the protocol handshake completes.
func (p *Printer) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateClosed && p.state != StateClosedWithError {
		p.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyConnected, "Printer", "Connect", "state check")
	}
	p.lastError = nil
	p.mu.Unlock()

	p.setState(StateConnecting)
	if err := p.client.Connect(ctx); err != nil {
		p.fail(err)
		return err
	}
	return nil
}

// Disconnect closes the connection.
func (p *Printer) Disconnect() error {
	return p.client.Close()
}

// State returns the current connection state.
func (p *Printer) State() ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// LastError returns the error that put the connection into the
// closed-with-error state, if any.
func (p *Printer) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastError
}

// Ready reports whether the printer can accept a new job.
func (p *Printer) Ready() bool {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	return state == StateOperational && p.client.KlipperState() == moonraker.KlipperReady
}

// Job returns a snapshot of the active job progress, or nil.
func (p *Printer) Job() *JobProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.job == nil {
		return nil
	}
	job := *p.job
	return &job
}

func (p *Printer) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), p.timeout)
}

// setState performs a connection state transition and surfaces it to the
// event sink and the console log.
func (p *Printer) setState(state ConnectionState) {
	p.mu.Lock()
	from := p.state
	if from == state {
		p.mu.Unlock()
		return
	}
	p.state = state
	p.mu.Unlock()

	message := fmt.Sprintf("State changed from %s to %s", from, state)
	p.logger.Info("connection state changed", "from", from, "to", state)
	p.events.OnLogs(message)
	p.events.OnStateChange(from, state)
}

func (p *Printer) fail(err error) {
	p.mu.Lock()
	p.lastError = err
	p.mu.Unlock()
	p.setState(StateClosedWithError)
}

// reconcile drives the state machine from the latest firmware signals.
// Transitions can chain (printing to finishing to operational when the
// firmware is already idle), so it loops until the state settles.
func (p *Printer) reconcile() {
	for p.reconcileOnce() {
	}
}

func (p *Printer) reconcileOnce() bool {
	p.mu.Lock()
	state := p.state
	printerState := p.printerState
	idleState := p.idleState
	p.mu.Unlock()

	// the double-check on pending terminal transitions: the firmware must
	// report the expected terminal state AND the idle module must agree
	// that no gcode is executing, otherwise the queue is still draining
	firmwareBusy := idleState == moonraker.IdlePrinting

	switch state {
	case StateStarting, StateResuming:
		if printerState == moonraker.PrinterPrinting {
			p.setState(StatePrinting)
			return true
		}

	case StatePausing:
		switch printerState {
		case moonraker.PrinterPrinting:
			// a resume overtook the pause, track it through resuming
			p.setState(StateResuming)
			return true
		case moonraker.PrinterPaused:
			if !firmwareBusy {
				p.setState(StatePaused)
				return true
			}
		}

	case StatePaused:
		if printerState == moonraker.PrinterPrinting {
			p.setState(StateResuming)
			return true
		}

	case StateCancelling:
		switch printerState {
		case moonraker.PrinterCancelled, moonraker.PrinterError, moonraker.PrinterStandby:
			if !firmwareBusy {
				p.endJob(JobCancelled)
				p.setState(StateOperational)
				return true
			}
		}

	case StateFinishing:
		switch printerState {
		case moonraker.PrinterComplete, moonraker.PrinterStandby:
			if !firmwareBusy {
				p.endJob(JobComplete)
				p.setState(StateOperational)
				return true
			}
		}

	case StatePrinting:
		switch printerState {
		case moonraker.PrinterPaused:
			p.setState(StatePausing)
			return true
		case moonraker.PrinterComplete:
			p.setState(StateFinishing)
			return true
		case moonraker.PrinterCancelled, moonraker.PrinterError:
			p.setState(StateCancelling)
			return true
		case moonraker.PrinterStandby:
			// the job vanished without a terminal report
			p.endJob(JobFailed)
			p.setState(StateOperational)
			return true
		}

	case StateOperational:
		if printerState == moonraker.PrinterPrinting {
			p.setState(StatePrinting)
			p.discoverExternalJob()
			return true
		}
	}

	return false
}

// discoverExternalJob resolves the name of a print that was started outside
// this connector, falling back to a placeholder when the query fails.
func (p *Printer) discoverExternalJob() {
	if !p.discovering.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer p.discovering.Store(false)

		ctx, cancel := p.commandContext()
		defer cancel()

		job := unknownJob
		stats, _, err := p.client.QueryPrintStatus(ctx)
		if err != nil {
			p.logger.Warn("could not identify externally started print", "error", err)
		} else if stats.Filename != nil && *stats.Filename != "" {
			job = *stats.Filename
		}

		p.mu.Lock()
		if p.job == nil {
			p.job = &JobProgress{Job: job}
		} else if p.job.Job == "" {
			p.job.Job = job
		}
		p.mu.Unlock()

		p.events.OnJobStarted(job)
	}()
}

func (p *Printer) startJob(job string) {
	p.mu.Lock()
	p.job = &JobProgress{Job: job}
	p.mu.Unlock()
	p.events.OnJobStarted(job)
}

func (p *Printer) endJob(outcome JobOutcome) {
	p.mu.Lock()
	job := p.job
	p.job = nil
	p.mu.Unlock()

	if job != nil {
		p.events.OnJobEnded(job.Job, outcome)
	}
}

// OnConnected implements moonraker.Listener.
func (p *Printer) OnConnected() {
	p.setState(StateOperational)
	p.events.OnFilesAvailable(true)
}

// OnDisconnected implements moonraker.Listener.
func (p *Printer) OnDisconnected(err error) {
	p.events.OnFilesAvailable(false)
	p.endJob(JobFailed)

	p.mu.Lock()
	p.printerState = moonraker.PrinterUnknown
	p.idleState = moonraker.IdleUnknown
	p.lastZ = nil
	p.mu.Unlock()

	if err != nil {
		p.fail(err)
		return
	}
	p.setState(StateClosed)
}

// OnServerInfo implements moonraker.Listener.
func (p *Printer) OnServerInfo(info moonraker.ServerInfo) {
	p.events.OnFirmwareInfo(FirmwareInfo{
		Name:             "Klipper",
		MoonrakerVersion: info.MoonrakerVersion,
		APIVersion:       info.APIVersionString,
	})
}

// OnPrinterState implements moonraker.Listener.
func (p *Printer) OnPrinterState(state moonraker.PrinterState) {
	p.mu.Lock()
	p.printerState = state
	p.mu.Unlock()
	p.reconcile()
}

// OnIdleState implements moonraker.Listener.
func (p *Printer) OnIdleState(state moonraker.IdleState) {
	p.mu.Lock()
	p.idleState = state
	p.mu.Unlock()
	p.reconcile()
}

// OnPrintProgress implements moonraker.Listener. Partial updates are merged
// into the active job; the remaining time estimate derives from the cleaned
// elapsed time and the progress fraction.
func (p *Printer) OnPrintProgress(update moonraker.ProgressUpdate) {
	p.mu.Lock()
	if p.job == nil {
		p.mu.Unlock()
		return
	}
	if update.Progress != nil {
		p.job.Progress = *update.Progress
	}
	if update.FilePosition != nil {
		p.job.FilePosition = *update.FilePosition
	}
	if update.ElapsedTime != nil {
		p.job.Elapsed = *update.ElapsedTime
	}
	if update.CleanedTime != nil {
		p.job.Cleaned = *update.CleanedTime
	}
	if p.job.Progress > 0 {
		p.job.Remaining = p.job.Cleaned * (1 - p.job.Progress) / p.job.Progress
	}
	progress := *p.job
	p.mu.Unlock()

	p.events.OnProgress(progress)
}

// OnPrintDetected implements moonraker.Listener.
func (p *Printer) OnPrintDetected(path string) {
	p.logger.Info("print file loaded", "path", path)
}

// OnTemperatures implements moonraker.Listener.
func (p *Printer) OnTemperatures(temps map[string]moonraker.TemperatureReading) {
	mapped := make(map[string]Temperature, len(temps))
	for name, reading := range temps {
		if hostName, ok := temperatureLookup[name]; ok {
			name = hostName
		}
		mapped[name] = Temperature{Actual: reading.Actual, Target: reading.Target}
	}
	p.events.OnTemperatures(mapped)
}

// OnPositionUpdate implements moonraker.Listener. Only Z changes are
// surfaced, as a distinct event.
func (p *Printer) OnPositionUpdate(pos moonraker.Coordinate) {
	p.mu.Lock()
	changed := p.lastZ == nil || *p.lastZ != pos.Z
	z := pos.Z
	p.lastZ = &z
	p.mu.Unlock()

	if changed {
		p.events.OnZChange(pos.Z)
	}
}

// OnMacrosUpdated implements moonraker.Listener.
func (p *Printer) OnMacrosUpdated(macros map[string]moonraker.MacroParams) {
	p.logger.Debug("macro catalog updated", "macros", len(macros))
}

// OnGcodeLog implements moonraker.Listener.
func (p *Printer) OnGcodeLog(lines ...string) {
	p.events.OnLogs(lines...)
}

// OnActionCommand implements moonraker.Listener. Firmware action commands
// drive the job state machine directly.
func (p *Printer) OnActionCommand(line, action, params string) {
	p.logger.Info("firmware action command", "action", action, "params", params)

	switch action {
	case "pause":
		_ = p.PausePrint()
	case "resume":
		_ = p.ResumePrint()
	case "cancel":
		_ = p.CancelPrint()
	case "disconnect":
		_ = p.Disconnect()
	}
}

// OnFilesRefreshed implements moonraker.Listener.
func (p *Printer) OnFilesRefreshed(root string) {
	p.events.OnFilesRefreshed(root)
}

// OnJobHistory implements moonraker.Listener.
func (p *Printer) OnJobHistory(jobs []moonraker.JobHistoryEntry) {
	p.logger.Debug("job history received", "jobs", len(jobs))
}

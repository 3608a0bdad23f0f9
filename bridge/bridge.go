// Package bridge publishes reconciled printer events onto NATS subjects so
// other services can follow a printer without speaking Moonraker themselves.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/moonraker/errors"
	"github.com/c360/moonraker/metric"
	"github.com/c360/moonraker/printer"
)

const (
	defaultSubjectPrefix = "moonraker"
	defaultSource        = "moonrakerd"

	connectTimeout = 5 * time.Second
	drainTimeout   = 10 * time.Second
	reconnectWait  = 2 * time.Second
)

// Bridge publishes printer events as JSON envelopes. It implements
// printer.EventSink and can wrap another sink so the events still reach the
// host application.
type Bridge struct {
	url    string
	prefix string
	source string
	name   string
	next   printer.EventSink
	logger *slog.Logger

	metrics *bridgeMetrics

	mu   sync.Mutex
	conn *nats.Conn
}

// Option configures a Bridge.
type Option func(*Bridge) error

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) error {
		if logger == nil {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Bridge", "WithLogger", "logger check")
		}
		b.logger = logger
		return nil
	}
}

// WithSubjectPrefix sets the subject prefix events are published under.
func WithSubjectPrefix(prefix string) Option {
	return func(b *Bridge) error {
		if prefix == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Bridge", "WithSubjectPrefix", "prefix check")
		}
		b.prefix = prefix
		return nil
	}
}

// WithSource sets the source identifier stamped on every envelope.
func WithSource(source string) Option {
	return func(b *Bridge) error {
		if source == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Bridge", "WithSource", "source check")
		}
		b.source = source
		return nil
	}
}

// WithClientName sets the NATS connection name.
func WithClientName(name string) Option {
	return func(b *Bridge) error {
		b.name = name
		return nil
	}
}

// WithNext chains another sink that receives every event after it has been
// published.
func WithNext(next printer.EventSink) Option {
	return func(b *Bridge) error {
		if next == nil {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Bridge", "WithNext", "sink check")
		}
		b.next = next
		return nil
	}
}

// WithMetrics registers bridge metrics with the registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(b *Bridge) error {
		if registry == nil {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Bridge", "WithMetrics", "registry check")
		}
		metrics, err := newBridgeMetrics(registry)
		if err != nil {
			return err
		}
		b.metrics = metrics
		return nil
	}
}

// New creates a bridge publishing to the NATS server at url. The connection
// is opened by Start.
func New(url string, opts ...Option) (*Bridge, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Bridge", "New", "url check")
	}

	b := &Bridge{
		url:    url,
		prefix: defaultSubjectPrefix,
		source: defaultSource,
		name:   defaultSource,
		next:   printer.NopEvents{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Start opens the NATS connection. Reconnects are handled by the NATS client
// itself; events published while disconnected are dropped and counted.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return errors.WrapInvalid(errors.ErrAlreadyConnected, "Bridge", "Start", "state check")
	}

	opts := []nats.Option{
		nats.Name(b.name),
		nats.Timeout(connectTimeout),
		nats.DrainTimeout(drainTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if b.metrics != nil {
				b.metrics.connected.Set(0)
			}
			b.logger.Warn("nats connection lost", "error", err)
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			if b.metrics != nil {
				b.metrics.connected.Set(1)
			}
			b.logger.Info("nats connection restored", "url", conn.ConnectedUrl())
		}),
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	conn, err := nats.Connect(b.url, opts...)
	if err != nil {
		return errors.WrapTransient(err, "Bridge", "Start", "nats connect")
	}

	b.conn = conn
	if b.metrics != nil {
		b.metrics.connected.Set(1)
	}
	b.logger.Info("event bridge connected", "url", b.url, "prefix", b.prefix)
	return nil
}

// Stop drains and closes the NATS connection.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()

	if conn == nil {
		return nil
	}
	if b.metrics != nil {
		b.metrics.connected.Set(0)
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
		return errors.Wrap(err, "Bridge", "Stop", "drain connection")
	}
	return nil
}

func (b *Bridge) publish(event string, data any) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return
	}

	payload, err := json.Marshal(newEnvelope(b.source, event, data))
	if err != nil {
		b.logger.Error("could not encode event envelope", "event", event, "error", err)
		return
	}

	subject := b.prefix + "." + event
	if err := conn.Publish(subject, payload); err != nil {
		if b.metrics != nil {
			b.metrics.publishFailures.Inc()
		}
		b.logger.Warn("event publish failed", "subject", subject, "error", err)
		return
	}
	if b.metrics != nil {
		b.metrics.published.WithLabelValues(event).Inc()
	}
}

// OnStateChange implements printer.EventSink.
func (b *Bridge) OnStateChange(from, to printer.ConnectionState) {
	b.publish(EventState, StateChange{From: from, To: to})
	b.next.OnStateChange(from, to)
}

// OnFirmwareInfo implements printer.EventSink.
func (b *Bridge) OnFirmwareInfo(info printer.FirmwareInfo) {
	b.publish(EventFirmware, Firmware{
		Name:             info.Name,
		MoonrakerVersion: info.MoonrakerVersion,
		APIVersion:       info.APIVersion,
	})
	b.next.OnFirmwareInfo(info)
}

// OnTemperatures implements printer.EventSink.
func (b *Bridge) OnTemperatures(temps map[string]printer.Temperature) {
	readings := make(map[string]Reading, len(temps))
	for name, t := range temps {
		readings[name] = Reading{Actual: t.Actual, Target: t.Target}
	}
	b.publish(EventTemperatures, Temperatures{Readings: readings})
	b.next.OnTemperatures(temps)
}

// OnLogs implements printer.EventSink.
func (b *Bridge) OnLogs(lines ...string) {
	b.publish(EventLog, Log{Lines: lines})
	b.next.OnLogs(lines...)
}

// OnJobStarted implements printer.EventSink.
func (b *Bridge) OnJobStarted(job string) {
	b.publish(EventJobStarted, JobStarted{Job: job})
	b.next.OnJobStarted(job)
}

// OnJobEnded implements printer.EventSink.
func (b *Bridge) OnJobEnded(job string, outcome printer.JobOutcome) {
	b.publish(EventJobEnded, JobEnded{Job: job, Outcome: outcome})
	b.next.OnJobEnded(job, outcome)
}

// OnProgress implements printer.EventSink.
func (b *Bridge) OnProgress(progress printer.JobProgress) {
	b.publish(EventProgress, Progress{
		Job:          progress.Job,
		Progress:     progress.Progress,
		FilePosition: progress.FilePosition,
		Elapsed:      progress.Elapsed,
		Remaining:    progress.Remaining,
	})
	b.next.OnProgress(progress)
}

// OnZChange implements printer.EventSink.
func (b *Bridge) OnZChange(z float64) {
	b.publish(EventZChange, ZChange{Z: z})
	b.next.OnZChange(z)
}

// OnFilesAvailable implements printer.EventSink.
func (b *Bridge) OnFilesAvailable(available bool) {
	b.publish(EventFiles, Files{Available: available})
	b.next.OnFilesAvailable(available)
}

// OnFilesRefreshed implements printer.EventSink.
func (b *Bridge) OnFilesRefreshed(root string) {
	b.publish(EventFiles, Files{Available: true, Root: root})
	b.next.OnFilesRefreshed(root)
}

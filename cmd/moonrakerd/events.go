package main

import (
	"log/slog"

	"github.com/c360/moonraker/printer"
)

// daemonSink logs reconciled printer events and signals the reconnect loop
// when the connection drops.
type daemonSink struct {
	printer.NopEvents

	logger *slog.Logger
	down   chan struct{}
}

func newDaemonSink(logger *slog.Logger) *daemonSink {
	return &daemonSink{
		logger: logger,
		down:   make(chan struct{}, 1),
	}
}

func (s *daemonSink) OnStateChange(from, to printer.ConnectionState) {
	s.logger.Info("printer state changed", "from", from, "to", to)

	if to == printer.StateClosed || to == printer.StateClosedWithError {
		select {
		case s.down <- struct{}{}:
		default:
		}
	}
}

func (s *daemonSink) OnFirmwareInfo(info printer.FirmwareInfo) {
	s.logger.Info("firmware identified",
		"firmware", info.Name,
		"moonraker_version", info.MoonrakerVersion,
		"api_version", info.APIVersion)
}

func (s *daemonSink) OnJobStarted(job string) {
	s.logger.Info("print job started", "job", job)
}

func (s *daemonSink) OnJobEnded(job string, outcome printer.JobOutcome) {
	s.logger.Info("print job ended", "job", job, "outcome", outcome)
}

func (s *daemonSink) OnProgress(progress printer.JobProgress) {
	s.logger.Debug("print progress",
		"job", progress.Job,
		"progress", progress.Progress,
		"remaining_seconds", progress.Remaining)
}

func (s *daemonSink) OnLogs(lines ...string) {
	for _, line := range lines {
		s.logger.Debug("console", "line", line)
	}
}

func (s *daemonSink) OnFilesRefreshed(root string) {
	s.logger.Debug("file listing refreshed", "root", root)
}

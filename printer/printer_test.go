package printer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/moonraker"
)

// fakeClient implements ProtocolClient and records what the reconciler asks
// of it.
type fakeClient struct {
	mu       sync.Mutex
	commands [][]string
	calls    []string

	klipperState moonraker.KlipperState
	queryStats   moonraker.PrintStats
	queryErr     error

	startErr  error
	deleteErr error
	uploadErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{klipperState: moonraker.KlipperReady}
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeClient) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := make([]string, len(f.calls))
	copy(calls, f.calls)
	return calls
}

func (f *fakeClient) sentCommands() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	commands := make([][]string, len(f.commands))
	copy(commands, f.commands)
	return commands
}

func (f *fakeClient) Connect(context.Context) error { f.record("connect"); return nil }

func (f *fakeClient) Close() error { f.record("close"); return nil }

func (f *fakeClient) KlipperState() moonraker.KlipperState { return f.klipperState }

func (f *fakeClient) SendGcodeCommands(commands ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, commands)
	return nil
}

func (f *fakeClient) StartPrint(_ context.Context, path string) error {
	f.record("start:" + path)
	return f.startErr
}

func (f *fakeClient) PausePrint(context.Context) error { f.record("pause"); return nil }

func (f *fakeClient) ResumePrint(context.Context) error { f.record("resume"); return nil }

func (f *fakeClient) CancelPrint(context.Context) error { f.record("cancel"); return nil }

func (f *fakeClient) QueryPrintStatus(context.Context) (moonraker.PrintStats, moonraker.SDCardStats, error) {
	f.record("query")
	return f.queryStats, moonraker.SDCardStats{}, f.queryErr
}

func (f *fakeClient) DeleteFile(_ context.Context, path, root string) error {
	f.record("delete:" + root + "/" + path)
	return f.deleteErr
}

func (f *fakeClient) CreateFolder(_ context.Context, path, root string) error {
	f.record("mkdir:" + root + "/" + path)
	return nil
}

func (f *fakeClient) DeleteFolder(_ context.Context, path, root string, _ bool) error {
	f.record("rmdir:" + root + "/" + path)
	return nil
}

func (f *fakeClient) MovePath(_ context.Context, src, dst, _, _ string) error {
	f.record("move:" + src + ">" + dst)
	return nil
}

func (f *fakeClient) CopyPath(_ context.Context, src, dst, _, _ string) error {
	f.record("copy:" + src + ">" + dst)
	return nil
}

func (f *fakeClient) UploadFile(_ context.Context, _ io.Reader, path, root string) <-chan error {
	f.record("upload:" + root + "/" + path)
	done := make(chan error, 1)
	done <- f.uploadErr
	return done
}

func (f *fakeClient) DownloadFile(context.Context, string, string) (io.ReadCloser, error) {
	return nil, nil
}

func (f *fakeClient) Tree(string) moonraker.Tree { return nil }

func (f *fakeClient) RefreshTree(context.Context, string) error { return nil }

func (f *fakeClient) Macros() map[string]moonraker.MacroParams { return nil }

// recEvents records reconciled events.
type recEvents struct {
	NopEvents

	mu          sync.Mutex
	transitions [][2]ConnectionState
	started     []string
	ended       []string
	outcomes    []JobOutcome
	progress    []JobProgress
	zChanges    []float64
	temps       []map[string]Temperature
	logs        []string
}

func (e *recEvents) OnStateChange(from, to ConnectionState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transitions = append(e.transitions, [2]ConnectionState{from, to})
}

func (e *recEvents) OnJobStarted(job string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = append(e.started, job)
}

func (e *recEvents) OnJobEnded(job string, outcome JobOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ended = append(e.ended, job)
	e.outcomes = append(e.outcomes, outcome)
}

func (e *recEvents) OnProgress(progress JobProgress) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress = append(e.progress, progress)
}

func (e *recEvents) OnZChange(z float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.zChanges = append(e.zChanges, z)
}

func (e *recEvents) OnTemperatures(temps map[string]Temperature) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.temps = append(e.temps, temps)
}

func (e *recEvents) OnLogs(lines ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logs = append(e.logs, lines...)
}

func testPrinter(t *testing.T, state ConnectionState) (*Printer, *fakeClient, *recEvents) {
	t.Helper()

	client := newFakeClient()
	events := &recEvents{}
	p := &Printer{
		events:     events,
		client:     client,
		logger:     slog.Default(),
		profile:    DefaultProfile(),
		timeout:    time.Second,
		state:      state,
		cachedJobs: make(map[string]string),
	}
	return p, client, events
}

func TestStartPrint_FullLifecycle(t *testing.T) {
	p, client, events := testPrinter(t, StateOperational)

	require.NoError(t, p.StartPrint("prints/cube.gcode"))
	assert.Equal(t, StateStarting, p.State())
	assert.Contains(t, client.recorded(), "start:prints/cube.gcode")

	// stays pending until the firmware confirms
	p.OnIdleState(moonraker.IdlePrinting)
	assert.Equal(t, StateStarting, p.State())

	p.OnPrinterState(moonraker.PrinterPrinting)
	assert.Equal(t, StatePrinting, p.State())

	p.OnPrinterState(moonraker.PrinterComplete)
	assert.Equal(t, StateFinishing, p.State())

	// still busy draining the queue, must not settle yet
	p.OnPrinterState(moonraker.PrinterStandby)
	assert.Equal(t, StateFinishing, p.State())

	p.OnIdleState(moonraker.IdleReady)
	assert.Equal(t, StateOperational, p.State())

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, []string{"prints/cube.gcode"}, events.started)
	assert.Equal(t, []string{"prints/cube.gcode"}, events.ended)
	assert.Equal(t, []JobOutcome{JobComplete}, events.outcomes)
}

func TestStartPrint_RejectedWhileBusy(t *testing.T) {
	p, _, _ := testPrinter(t, StatePrinting)
	require.Error(t, p.StartPrint("cube.gcode"))
}

func TestStartPrint_RPCFailureEndsJobCancelled(t *testing.T) {
	p, client, events := testPrinter(t, StateOperational)
	client.startErr = assert.AnError

	require.Error(t, p.StartPrint("cube.gcode"))
	assert.Equal(t, StateOperational, p.State())

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, []JobOutcome{JobCancelled}, events.outcomes)
}

func TestReconcile_PausingWithPrintingGoesThroughResuming(t *testing.T) {
	p, _, events := testPrinter(t, StatePausing)

	// a resume overtook the pause: the machine must pass through resuming
	// instead of jumping straight back to printing
	p.OnPrinterState(moonraker.PrinterPrinting)
	assert.Equal(t, StatePrinting, p.State())

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, [][2]ConnectionState{
		{StatePausing, StateResuming},
		{StateResuming, StatePrinting},
	}, events.transitions)
}

func TestReconcile_PausingSettlesWhenIdleAgrees(t *testing.T) {
	p, _, _ := testPrinter(t, StatePausing)

	p.OnIdleState(moonraker.IdlePrinting)
	p.OnPrinterState(moonraker.PrinterPaused)
	assert.Equal(t, StatePausing, p.State())

	p.OnIdleState(moonraker.IdleReady)
	assert.Equal(t, StatePaused, p.State())
}

func TestReconcile_FinishingHoldsWhileIdlePrinting(t *testing.T) {
	p, _, _ := testPrinter(t, StateFinishing)
	p.startJob("cube.gcode")

	p.OnIdleState(moonraker.IdlePrinting)
	p.OnPrinterState(moonraker.PrinterComplete)
	assert.Equal(t, StateFinishing, p.State())

	p.OnIdleState(moonraker.IdleIdle)
	assert.Equal(t, StateOperational, p.State())
}

func TestReconcile_CancellingAcceptsTerminalStates(t *testing.T) {
	for _, terminal := range []moonraker.PrinterState{
		moonraker.PrinterCancelled, moonraker.PrinterError, moonraker.PrinterStandby,
	} {
		t.Run(string(terminal), func(t *testing.T) {
			p, _, events := testPrinter(t, StateCancelling)
			p.startJob("cube.gcode")

			p.OnIdleState(moonraker.IdleReady)
			p.OnPrinterState(terminal)
			assert.Equal(t, StateOperational, p.State())

			events.mu.Lock()
			defer events.mu.Unlock()
			assert.Contains(t, events.outcomes, JobCancelled)
		})
	}
}

func TestReconcile_ExternalPauseAndResume(t *testing.T) {
	p, _, _ := testPrinter(t, StatePrinting)
	p.startJob("cube.gcode")

	p.OnIdleState(moonraker.IdleReady)
	p.OnPrinterState(moonraker.PrinterPaused)
	assert.Equal(t, StatePaused, p.State())

	p.OnPrinterState(moonraker.PrinterPrinting)
	assert.Equal(t, StatePrinting, p.State())
}

func TestReconcile_ExternalPrintDiscovered(t *testing.T) {
	p, client, events := testPrinter(t, StateOperational)
	filename := "external.gcode"
	client.queryStats = moonraker.PrintStats{Filename: &filename}

	p.OnPrinterState(moonraker.PrinterPrinting)
	assert.Equal(t, StatePrinting, p.State())

	require.Eventually(t, func() bool {
		events.mu.Lock()
		defer events.mu.Unlock()
		return len(events.started) == 1
	}, 2*time.Second, 10*time.Millisecond)

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, "external.gcode", events.started[0])
	assert.Contains(t, client.recorded(), "query")
}

func TestReconcile_ExternalPrintQueryFailureFallsBack(t *testing.T) {
	p, client, events := testPrinter(t, StateOperational)
	client.queryErr = assert.AnError

	p.OnPrinterState(moonraker.PrinterPrinting)

	require.Eventually(t, func() bool {
		events.mu.Lock()
		defer events.mu.Unlock()
		return len(events.started) == 1
	}, 2*time.Second, 10*time.Millisecond)

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, unknownJob, events.started[0])
}

func TestPauseResumeCancel_StateChecks(t *testing.T) {
	p, _, _ := testPrinter(t, StateOperational)
	require.Error(t, p.PausePrint())
	require.Error(t, p.ResumePrint())
	require.Error(t, p.CancelPrint())
}

func TestCancelPrint_FromPaused(t *testing.T) {
	p, client, _ := testPrinter(t, StatePaused)

	require.NoError(t, p.CancelPrint())
	assert.Equal(t, StateCancelling, p.State())
	assert.Contains(t, client.recorded(), "cancel")
}

func TestOnDisconnected_ErrorEndsJobAndState(t *testing.T) {
	p, _, events := testPrinter(t, StatePrinting)
	p.startJob("cube.gcode")

	p.OnDisconnected(assert.AnError)

	assert.Equal(t, StateClosedWithError, p.State())
	assert.ErrorIs(t, p.LastError(), assert.AnError)

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, []JobOutcome{JobFailed}, events.outcomes)
}

func TestOnDisconnected_CleanClose(t *testing.T) {
	p, _, _ := testPrinter(t, StateOperational)
	p.OnDisconnected(nil)
	assert.Equal(t, StateClosed, p.State())
	assert.NoError(t, p.LastError())
}

func TestOnPrintProgress_MergesAndEstimates(t *testing.T) {
	p, _, events := testPrinter(t, StatePrinting)
	p.startJob("cube.gcode")

	elapsed, cleaned := 400.0, 300.0
	p.OnPrintProgress(moonraker.ProgressUpdate{ElapsedTime: &elapsed, CleanedTime: &cleaned})

	progress := 0.25
	position := int64(2048)
	p.OnPrintProgress(moonraker.ProgressUpdate{Progress: &progress, FilePosition: &position})

	events.mu.Lock()
	defer events.mu.Unlock()
	require.Len(t, events.progress, 2)
	last := events.progress[1]
	assert.Equal(t, "cube.gcode", last.Job)
	assert.InDelta(t, 0.25, last.Progress, 1e-9)
	assert.Equal(t, int64(2048), last.FilePosition)
	assert.InDelta(t, 400.0, last.Elapsed, 1e-9)
	// 300s cleaned at 25% leaves 900s
	assert.InDelta(t, 900.0, last.Remaining, 1e-9)
}

func TestOnPrintProgress_NoJobIsNoop(t *testing.T) {
	p, _, events := testPrinter(t, StateOperational)

	progress := 0.5
	p.OnPrintProgress(moonraker.ProgressUpdate{Progress: &progress})

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Empty(t, events.progress)
}

func TestOnPositionUpdate_ZChangeOnlyOnChange(t *testing.T) {
	p, _, events := testPrinter(t, StatePrinting)

	p.OnPositionUpdate(moonraker.Coordinate{Z: 0.2})
	p.OnPositionUpdate(moonraker.Coordinate{X: 10, Z: 0.2})
	p.OnPositionUpdate(moonraker.Coordinate{Z: 0.4})

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, []float64{0.2, 0.4}, events.zChanges)
}

func TestOnTemperatures_HostNamesMapped(t *testing.T) {
	p, _, events := testPrinter(t, StateOperational)

	p.OnTemperatures(map[string]moonraker.TemperatureReading{
		"extruder":   {Actual: 210, Target: 215},
		"heater_bed": {Actual: 60, Target: 60},
		"chamber":    {Actual: 40, Target: 45},
		"enclosure":  {Actual: 30, Target: 0},
	})

	events.mu.Lock()
	defer events.mu.Unlock()
	require.Len(t, events.temps, 1)
	temps := events.temps[0]
	assert.Contains(t, temps, "tool0")
	assert.Contains(t, temps, "bed")
	assert.Contains(t, temps, "chamber")
	// unmapped heaters pass through under their firmware name
	assert.Contains(t, temps, "enclosure")
	assert.InDelta(t, 215.0, temps["tool0"].Target, 1e-9)
}

func TestReady(t *testing.T) {
	p, client, _ := testPrinter(t, StateOperational)
	assert.True(t, p.Ready())

	client.klipperState = moonraker.KlipperShutdown
	assert.False(t, p.Ready())
}

func TestConnect_RejectsDoubleConnect(t *testing.T) {
	p, _, _ := testPrinter(t, StateOperational)
	require.Error(t, p.Connect(context.Background()))
}

func TestUploadToCache_DeletesStaleFile(t *testing.T) {
	p, client, _ := testPrinter(t, StateOperational)

	path, err := p.UploadToCache(context.Background(), nil, "cube.gcode")
	require.NoError(t, err)
	assert.Equal(t, cacheFolder+"/cube.gcode", path)

	_, err = p.UploadToCache(context.Background(), nil, "cube.gcode")
	require.NoError(t, err)

	calls := client.recorded()
	assert.Contains(t, calls, "delete:gcodes/"+cacheFolder+"/cube.gcode")
	// the first upload had nothing to delete
	assert.Equal(t, "upload:gcodes/"+cacheFolder+"/cube.gcode", calls[0])
}

func TestStateActive(t *testing.T) {
	assert.True(t, StatePrinting.Active())
	assert.True(t, StateCancelling.Active())
	assert.False(t, StateOperational.Active())
	assert.False(t, StateClosed.Active())
}

package bridge

import (
	"time"

	"github.com/google/uuid"

	"github.com/c360/moonraker/printer"
)

// Event names carried in the envelope and appended to the subject prefix.
const (
	EventState        = "state"
	EventFirmware     = "firmware"
	EventTemperatures = "temperatures"
	EventLog          = "log"
	EventJobStarted   = "job.started"
	EventJobEnded     = "job.ended"
	EventProgress     = "progress"
	EventZChange      = "zchange"
	EventFiles        = "files"
)

// Envelope is the wire format for every published event. Each envelope gets
// a fresh uuid so consumers can deduplicate across redeliveries.
type Envelope struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Event  string `json:"event"`
	Time   string `json:"time"`
	Data   any    `json:"data"`
}

func newEnvelope(source, event string, data any) Envelope {
	return Envelope{
		ID:     uuid.NewString(),
		Source: source,
		Event:  event,
		Time:   time.Now().UTC().Format(time.RFC3339Nano),
		Data:   data,
	}
}

// StateChange reports a connection state transition.
type StateChange struct {
	From printer.ConnectionState `json:"from"`
	To   printer.ConnectionState `json:"to"`
}

// JobStarted reports a new job.
type JobStarted struct {
	Job string `json:"job"`
}

// JobEnded reports a finished job with its outcome.
type JobEnded struct {
	Job     string             `json:"job"`
	Outcome printer.JobOutcome `json:"outcome"`
}

// Progress reports job progress.
type Progress struct {
	Job          string  `json:"job"`
	Progress     float64 `json:"progress"`
	FilePosition int64   `json:"file_position"`
	Elapsed      float64 `json:"elapsed_seconds"`
	Remaining    float64 `json:"remaining_seconds"`
}

// Firmware reports the firmware stack behind the connection.
type Firmware struct {
	Name             string `json:"name"`
	MoonrakerVersion string `json:"moonraker_version"`
	APIVersion       string `json:"api_version"`
}

// Reading is one heater reading.
type Reading struct {
	Actual float64 `json:"actual"`
	Target float64 `json:"target"`
}

// Temperatures reports the latest heater readings keyed by host-side name.
type Temperatures struct {
	Readings map[string]Reading `json:"readings"`
}

// Log carries console log lines.
type Log struct {
	Lines []string `json:"lines"`
}

// ZChange reports a layer change.
type ZChange struct {
	Z float64 `json:"z"`
}

// Files reports file storage availability and refreshes.
type Files struct {
	Available bool   `json:"available"`
	Root      string `json:"root,omitempty"`
}

package moonraker

import (
	"encoding/json"

	"github.com/c360/moonraker/errors"
)

// ServerInfo is the response of server.info. Only the fields the connector
// acts on are modelled; the raw payload is forwarded to the listener so hosts
// can inspect the rest.
type ServerInfo struct {
	KlippyConnected bool     `json:"klippy_connected"`
	KlippyState     string   `json:"klippy_state"`
	Components      []string `json:"components"`
	MoonrakerVersion string  `json:"moonraker_version"`
	APIVersionString string   `json:"api_version_string"`
}

// PrintStats mirrors the print_stats printer object. Status updates carry
// only the fields that changed, so everything is optional.
type PrintStats struct {
	Filename      *string  `json:"filename,omitempty"`
	TotalDuration *float64 `json:"total_duration,omitempty"`
	PrintDuration *float64 `json:"print_duration,omitempty"`
	FilamentUsed  *float64 `json:"filament_used,omitempty"`
	State         *string  `json:"state,omitempty"`
	Message       *string  `json:"message,omitempty"`
}

// SDCardStats mirrors the virtual_sdcard printer object.
type SDCardStats struct {
	FilePath     *string  `json:"file_path,omitempty"`
	Progress     *float64 `json:"progress,omitempty"`
	IsActive     *bool    `json:"is_active,omitempty"`
	FilePosition *int64   `json:"file_position,omitempty"`
	FileSize     *int64   `json:"file_size,omitempty"`
}

// IdleTimeout mirrors the idle_timeout printer object.
type IdleTimeout struct {
	State        *string  `json:"state,omitempty"`
	PrintingTime *float64 `json:"printing_time,omitempty"`
}

// Coordinate is a machine position. Klipper reports positions as a
// 4-element array of x, y, z, e.
type Coordinate struct {
	X float64
	Y float64
	Z float64
	E float64
}

// UnmarshalJSON decodes the wire-format position array. Missing trailing
// axes are left at zero, extra axes are ignored.
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	var axes []float64
	if err := json.Unmarshal(data, &axes); err != nil {
		return errors.WrapInvalid(err, "Coordinate", "UnmarshalJSON", "position array decode")
	}
	targets := []*float64{&c.X, &c.Y, &c.Z, &c.E}
	for i, t := range targets {
		if i < len(axes) {
			*t = axes[i]
		}
	}
	return nil
}

// MarshalJSON encodes the position back to the wire-format array.
func (c Coordinate) MarshalJSON() ([]byte, error) {
	return json.Marshal([]float64{c.X, c.Y, c.Z, c.E})
}

// PositionData mirrors the gcode_move printer object.
type PositionData struct {
	GcodePosition *Coordinate `json:"gcode_position,omitempty"`
	Position      *Coordinate `json:"position,omitempty"`
	SpeedFactor   *float64    `json:"speed_factor,omitempty"`
	Speed         *float64    `json:"speed,omitempty"`
}

// Configfile mirrors the configfile printer object. Settings keys are the
// lowercased section names of the Klipper config.
type Configfile struct {
	Settings map[string]json.RawMessage `json:"settings"`
}

// TemperatureReading is the cached actual/target pair of a heater.
type TemperatureReading struct {
	Actual float64 `json:"actual"`
	Target float64 `json:"target"`
}

// ProgressUpdate carries the subset of print progress values present in a
// status update. Nil fields were not part of the update.
type ProgressUpdate struct {
	Progress     *float64
	FilePosition *int64
	ElapsedTime  *float64
	CleanedTime  *float64
}

// MacroParams maps a macro parameter name to its default value. A nil value
// means the parameter has no default.
type MacroParams map[string]*string

// TreeEntry is one file or directory inside a tree folder. The synthetic "."
// entry carries the folder's own metadata.
type TreeEntry struct {
	Name        string  `json:"name"`
	Size        int64   `json:"size"`
	Modified    float64 `json:"modified"`
	Permissions string  `json:"permissions"`
	IsDir       bool    `json:"is_dir"`
}

// TreeFolder maps entry names within one folder to their metadata.
type TreeFolder map[string]TreeEntry

// Tree maps folder paths relative to a storage root ("" for the root itself)
// to their entries.
type Tree map[string]TreeFolder

// JobHistoryEntry is one finished job from server.history.list.
type JobHistoryEntry struct {
	JobID         string   `json:"job_id"`
	Filename      string   `json:"filename"`
	Status        string   `json:"status"`
	StartTime     float64  `json:"start_time"`
	EndTime       *float64 `json:"end_time"`
	PrintDuration float64  `json:"print_duration"`
	TotalDuration float64  `json:"total_duration"`
	FilamentUsed  float64  `json:"filament_used"`
	Exists        bool     `json:"exists"`
}

// GcodeStoreEntry is one line of the server-side console history.
type GcodeStoreEntry struct {
	Message string  `json:"message"`
	Time    float64 `json:"time"`
	Type    string  `json:"type"`
}

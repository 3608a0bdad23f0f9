package printer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJog_RelativeMove(t *testing.T) {
	p, client, _ := testPrinter(t, StateOperational)

	require.NoError(t, p.Jog(map[string]float64{"x": 10, "y": 5}, true, 0))

	assert.Equal(t, [][]string{
		{"G91", "G0 X10 Y5 F6000", "G90"},
	}, client.sentCommands())
}

func TestJog_AbsoluteMove(t *testing.T) {
	p, client, _ := testPrinter(t, StateOperational)

	require.NoError(t, p.Jog(map[string]float64{"x": 100}, false, 3000))

	assert.Equal(t, [][]string{
		{"G90", "G0 X100 F3000"},
	}, client.sentCommands())
}

func TestJog_SpeedFallsBackToSlowestAxis(t *testing.T) {
	p, client, _ := testPrinter(t, StateOperational)

	// z at 200mm/min drags the combined move speed down
	require.NoError(t, p.Jog(map[string]float64{"x": 10, "z": 1}, true, 0))

	commands := client.sentCommands()
	require.Len(t, commands, 1)
	assert.Equal(t, "G0 X10 Z1 F200", commands[0][1])
}

func TestJog_FractionalAmounts(t *testing.T) {
	p, client, _ := testPrinter(t, StateOperational)

	require.NoError(t, p.Jog(map[string]float64{"z": 0.1}, true, 0))

	commands := client.sentCommands()
	require.Len(t, commands, 1)
	assert.Equal(t, "G0 Z0.1 F200", commands[0][1])
}

func TestJog_NoAxes(t *testing.T) {
	p, _, _ := testPrinter(t, StateOperational)
	require.Error(t, p.Jog(nil, true, 0))
}

func TestHome(t *testing.T) {
	p, client, _ := testPrinter(t, StateOperational)

	require.NoError(t, p.Home("y", "x"))

	assert.Equal(t, [][]string{
		{"G91", "G28 X0 Y0", "G90"},
	}, client.sentCommands())
}

func TestHome_NoAxes(t *testing.T) {
	p, _, _ := testPrinter(t, StateOperational)
	require.Error(t, p.Home())
}

func TestExtrude(t *testing.T) {
	p, client, _ := testPrinter(t, StateOperational)

	require.NoError(t, p.Extrude(5, 0))

	assert.Equal(t, [][]string{
		{"G91", "M83", "G1 E5 F300", "M82", "G90"},
	}, client.sentCommands())
}

func TestExtrude_SpeedCappedAtProfile(t *testing.T) {
	p, client, _ := testPrinter(t, StateOperational)

	require.NoError(t, p.Extrude(-2, 9000))

	commands := client.sentCommands()
	require.Len(t, commands, 1)
	assert.Equal(t, "G1 E-2 F300", commands[0][2])
}

func TestChangeTool(t *testing.T) {
	p, client, _ := testPrinter(t, StateOperational)

	require.NoError(t, p.ChangeTool("tool1"))
	assert.Equal(t, [][]string{{"T1"}}, client.sentCommands())

	require.Error(t, p.ChangeTool("hotend"))
	require.Error(t, p.ChangeTool("toolx"))
}

func TestSetTemperature(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		heater  string
		value   float64
		want    string
	}{
		{
			name:   "active tool",
			heater: "tool",
			value:  210,
			want:   "M104 S210",
		},
		{
			name:   "single extruder ignores tool index",
			heater: "tool0",
			value:  215,
			want:   "M104 S215",
		},
		{
			name: "multi extruder addresses the tool",
			profile: Profile{
				AxisSpeeds:    map[string]float64{"e": 300},
				ExtruderCount: 2,
			},
			heater: "tool1",
			value:  215,
			want:   "M104 T1 S215",
		},
		{
			name: "shared nozzle drops the tool index",
			profile: Profile{
				AxisSpeeds:    map[string]float64{"e": 300},
				ExtruderCount: 2,
				SharedNozzle:  true,
			},
			heater: "tool1",
			value:  215,
			want:   "M104 S215",
		},
		{
			name:   "bed",
			heater: "bed",
			value:  60,
			want:   "M140 S60",
		},
		{
			name:   "chamber",
			heater: "chamber",
			value:  42.5,
			want:   "M141 S42.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, client, _ := testPrinter(t, StateOperational)
			if tt.profile.ExtruderCount > 0 {
				p.profile = tt.profile
			}

			require.NoError(t, p.SetTemperature(tt.heater, tt.value))
			assert.Equal(t, [][]string{{tt.want}}, client.sentCommands())
		})
	}
}

func TestSetTemperature_UnknownHeater(t *testing.T) {
	p, _, _ := testPrinter(t, StateOperational)
	require.Error(t, p.SetTemperature("enclosure", 40))
}

func TestEmergencyStop(t *testing.T) {
	p, client, _ := testPrinter(t, StateOperational)

	require.NoError(t, p.EmergencyStop())
	assert.Equal(t, [][]string{{"M112"}}, client.sentCommands())
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "10", formatAmount(10))
	assert.Equal(t, "0.1", formatAmount(0.1))
	assert.Equal(t, "-2.5", formatAmount(-2.5))
	assert.Equal(t, "6000", formatAmount(6000))
}

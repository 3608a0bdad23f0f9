package printer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/c360/moonraker"
	"github.com/c360/moonraker/errors"
)

// Commands sends raw gcode commands to the printer.
func (p *Printer) Commands(commands ...string) error {
	return p.client.SendGcodeCommands(commands...)
}

// EmergencyStop halts the printer immediately.
func (p *Printer) EmergencyStop() error {
	return p.Commands("M112")
}

// Jog moves the head along the given axes. Amounts are millimeters; with
// relative set the move is wrapped in relative positioning. A zero speed
// falls back to the slowest profile speed among the involved axes.
func (p *Printer) Jog(axes map[string]float64, relative bool, speed float64) error {
	if len(axes) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "Printer", "Jog", "axes check")
	}

	names := make([]string, 0, len(axes))
	for axis := range axes {
		names = append(names, axis)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, axis := range names {
		parts = append(parts, fmt.Sprintf("%s%s", strings.ToUpper(axis), formatAmount(axes[axis])))
	}
	command := "G0 " + strings.Join(parts, " ")

	if speed == 0 {
		for _, axis := range names {
			if axisSpeed, ok := p.profile.AxisSpeeds[strings.ToLower(axis)]; ok {
				if speed == 0 || axisSpeed < speed {
					speed = axisSpeed
				}
			}
		}
	}
	if speed > 0 {
		command += fmt.Sprintf(" F%s", formatAmount(speed))
	}

	if relative {
		return p.Commands("G91", command, "G90")
	}
	return p.Commands("G90", command)
}

// Home homes the given axes.
func (p *Printer) Home(axes ...string) error {
	if len(axes) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "Printer", "Home", "axes check")
	}

	sort.Strings(axes)
	parts := make([]string, 0, len(axes))
	for _, axis := range axes {
		parts = append(parts, strings.ToUpper(axis)+"0")
	}
	return p.Commands("G91", "G28 "+strings.Join(parts, " "), "G90")
}

// Extrude extrudes (or retracts, for negative amounts) filament on the
// current tool. The speed is capped at the profile's extruder speed.
func (p *Printer) Extrude(amount, speed float64) error {
	maxSpeed := p.profile.AxisSpeeds["e"]
	if speed == 0 || (maxSpeed > 0 && speed > maxSpeed) {
		speed = maxSpeed
	}

	return p.Commands(
		"G91",
		"M83",
		fmt.Sprintf("G1 E%s F%s", formatAmount(amount), formatAmount(speed)),
		"M82",
		"G90",
	)
}

// ChangeTool selects a tool by its host-side name (tool0, tool1, ...).
func (p *Printer) ChangeTool(tool string) error {
	if !strings.HasPrefix(tool, "tool") {
		return errors.WrapInvalid(errors.ErrInvalidData, "Printer", "ChangeTool", "tool name check")
	}
	number, err := strconv.Atoi(tool[len("tool"):])
	if err != nil {
		return errors.WrapInvalid(err, "Printer", "ChangeTool", "tool number parse")
	}
	return p.Commands(fmt.Sprintf("T%d", number))
}

// SetTemperature sets a heater target by its host-side name: "tool" for the
// active tool, "toolN" for a specific tool, "bed" or "chamber".
func (p *Printer) SetTemperature(heater string, value float64) error {
	switch {
	case heater == "tool":
		return p.Commands(fmt.Sprintf("M104 S%s", formatAmount(value)))

	case strings.HasPrefix(heater, "tool"):
		if p.profile.ExtruderCount > 1 && !p.profile.SharedNozzle {
			number, err := strconv.Atoi(heater[len("tool"):])
			if err != nil {
				return errors.WrapInvalid(err, "Printer", "SetTemperature", "tool number parse")
			}
			return p.Commands(fmt.Sprintf("M104 T%d S%s", number, formatAmount(value)))
		}
		return p.Commands(fmt.Sprintf("M104 S%s", formatAmount(value)))

	case heater == "bed":
		return p.Commands(fmt.Sprintf("M140 S%s", formatAmount(value)))

	case heater == "chamber":
		return p.Commands(fmt.Sprintf("M141 S%s", formatAmount(value)))

	default:
		return errors.WrapInvalid(errors.ErrInvalidData, "Printer", "SetTemperature", "heater name check")
	}
}

// StartPrint starts a job from the gcodes storage root.
func (p *Printer) StartPrint(path string) error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	if state != StateOperational {
		return errors.WrapInvalid(
			fmt.Errorf("cannot start a print while %s", state),
			"Printer", "StartPrint", "state check")
	}

	p.setState(StateStarting)
	p.startJob(path)

	ctx, cancel := p.commandContext()
	defer cancel()
	if err := p.client.StartPrint(ctx, path); err != nil {
		p.logger.Error("print start failed", "path", path, "error", err)
		p.endJob(JobCancelled)
		p.setState(StateOperational)
		return err
	}
	return nil
}

// PausePrint pauses the active job.
func (p *Printer) PausePrint() error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	if state != StatePrinting {
		return errors.WrapInvalid(
			fmt.Errorf("cannot pause while %s", state),
			"Printer", "PausePrint", "state check")
	}

	p.setState(StatePausing)

	ctx, cancel := p.commandContext()
	defer cancel()
	return p.client.PausePrint(ctx)
}

// ResumePrint resumes a paused job.
func (p *Printer) ResumePrint() error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	if state != StatePaused && state != StatePausing {
		return errors.WrapInvalid(
			fmt.Errorf("cannot resume while %s", state),
			"Printer", "ResumePrint", "state check")
	}

	p.setState(StateResuming)

	ctx, cancel := p.commandContext()
	defer cancel()
	return p.client.ResumePrint(ctx)
}

// CancelPrint cancels the active job.
func (p *Printer) CancelPrint() error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	switch state {
	case StateStarting, StatePrinting, StatePausing, StatePaused, StateResuming:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("cannot cancel while %s", state),
			"Printer", "CancelPrint", "state check")
	}

	p.setState(StateCancelling)

	ctx, cancel := p.commandContext()
	defer cancel()
	return p.client.CancelPrint(ctx)
}

// Macros lists the printable firmware macros with their declared parameters.
func (p *Printer) Macros() map[string]moonraker.MacroParams {
	return p.client.Macros()
}

// formatAmount renders numbers the way gcode expects, without a trailing
// ".0" on integral values.
func formatAmount(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

package moonraker

import (
	"encoding/json"
	"strings"
)

// objectsStatus is the envelope of printer.objects.query responses and the
// first element of notify_status_update params.
type objectsStatus struct {
	Status    map[string]json.RawMessage `json:"status"`
	Eventtime float64                    `json:"eventtime"`
}

// onStatusUpdate runs on the receipt goroutine for notify_status_update.
// Params are a two element array of payload and eventtime.
func (c *Client) onStatusUpdate(_ string, params json.RawMessage) {
	var parts []json.RawMessage
	if err := json.Unmarshal(params, &parts); err != nil || len(parts) == 0 {
		c.logger.Warn("malformed status update params", "error", err)
		return
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(parts[0], &payload); err != nil {
		c.logger.Warn("malformed status update payload", "error", err)
		return
	}

	if c.metrics != nil {
		c.metrics.statusUpdates.Inc()
	}
	c.processUpdate(payload)
}

// processQueryResult handles a one-shot query snapshot. Unlike subscription
// updates it may carry configfile and macro objects.
func (c *Client) processQueryResult(payload map[string]json.RawMessage) {
	c.updateMacros(payload)
	c.processUpdate(payload)
}

func (c *Client) processUpdate(payload map[string]json.RawMessage) {
	c.updateGcodeMove(payload)
	c.updateIdleTimeout(payload)
	c.updatePrintStats(payload)
	c.updateTemperatures(payload)
	c.updateVirtualSDCard(payload)
}

// updateTemperatures merges partial heater readings into the cache. A
// snapshot is delivered immediately when any target changed, otherwise at
// most once per throttle interval.
func (c *Client) updateTemperatures(payload map[string]json.RawMessage) {
	var dirtyActual, dirtyTarget bool

	c.mu.Lock()
	for _, heater := range c.heaters {
		raw, ok := payload[heater]
		if !ok {
			continue
		}

		var update struct {
			Temperature *float64 `json:"temperature"`
			Target      *float64 `json:"target"`
		}
		if err := json.Unmarshal(raw, &update); err != nil {
			c.logger.Warn("malformed heater payload", "heater", heater, "error", err)
			continue
		}

		name := strings.TrimPrefix(heater, genericHeaterPrefix)
		data := c.temperatures[name]
		if update.Temperature != nil {
			data.Actual = *update.Temperature
			dirtyActual = true
		}
		if update.Target != nil {
			data.Target = *update.Target
			dirtyTarget = true
		}
		c.temperatures[name] = data
	}

	var snapshot map[string]TemperatureReading
	if dirtyActual || dirtyTarget {
		snapshot = make(map[string]TemperatureReading, len(c.temperatures))
		for k, v := range c.temperatures {
			snapshot[k] = v
		}
	}
	c.mu.Unlock()

	if snapshot == nil {
		return
	}

	if dirtyTarget {
		// target changes always go out, but still consume the interval
		c.tempLimiter.Allow()
	} else if !c.tempLimiter.Allow() {
		return
	}

	c.listener.OnTemperatures(snapshot)
}

func (c *Client) updatePrintStats(payload map[string]json.RawMessage) {
	raw, ok := payload["print_stats"]
	if !ok {
		return
	}

	var stats PrintStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		c.logger.Warn("malformed print_stats payload", "error", err)
		return
	}

	if stats.State != nil {
		c.listener.OnPrinterState(PrinterStateFrom(*stats.State))
	}

	if stats.TotalDuration != nil || stats.PrintDuration != nil {
		c.listener.OnPrintProgress(ProgressUpdate{
			ElapsedTime: stats.TotalDuration,
			CleanedTime: stats.PrintDuration,
		})
	}
}

// updateVirtualSDCard handles progress updates. A payload carrying file_path
// is the pre-print setup status seen before the job properly starts; it is
// kept out of the progress accounting so long-running warmup macros don't
// skew time estimates, but a changed path is surfaced as a detected print.
func (c *Client) updateVirtualSDCard(payload map[string]json.RawMessage) {
	raw, ok := payload["virtual_sdcard"]
	if !ok {
		return
	}

	var sdcard SDCardStats
	if err := json.Unmarshal(raw, &sdcard); err != nil {
		c.logger.Warn("malformed virtual_sdcard payload", "error", err)
		return
	}

	if sdcard.FilePath != nil {
		path := *sdcard.FilePath
		c.mu.Lock()
		changed := path != "" && path != c.lastFilePath
		c.lastFilePath = path
		c.mu.Unlock()
		if changed {
			c.listener.OnPrintDetected(path)
		}
		return
	}

	if sdcard.Progress != nil || sdcard.FilePosition != nil {
		c.listener.OnPrintProgress(ProgressUpdate{
			Progress:     sdcard.Progress,
			FilePosition: sdcard.FilePosition,
		})
	}
}

func (c *Client) updateIdleTimeout(payload map[string]json.RawMessage) {
	raw, ok := payload["idle_timeout"]
	if !ok {
		return
	}

	var idle IdleTimeout
	if err := json.Unmarshal(raw, &idle); err != nil {
		c.logger.Warn("malformed idle_timeout payload", "error", err)
		return
	}

	if idle.State != nil {
		c.listener.OnIdleState(IdleStateFrom(*idle.State))
	}
}

func (c *Client) updateGcodeMove(payload map[string]json.RawMessage) {
	raw, ok := payload["gcode_move"]
	if !ok {
		return
	}

	var position PositionData
	if err := json.Unmarshal(raw, &position); err != nil {
		c.logger.Warn("malformed gcode_move payload", "error", err)
		return
	}

	if position.GcodePosition != nil {
		c.listener.OnPositionUpdate(*position.GcodePosition)
	}
}

// updateMacros rebuilds the macro catalog from a query snapshot carrying
// configfile settings and gcode_macro objects. Macros prefixed with an
// underscore are internal and excluded.
func (c *Client) updateMacros(payload map[string]json.RawMessage) {
	raw, ok := payload["configfile"]
	if !ok {
		return
	}

	var macroKeys []string
	for key := range payload {
		if strings.HasPrefix(key, macroPrefix) {
			macroKeys = append(macroKeys, key)
		}
	}
	if len(macroKeys) == 0 {
		return
	}

	var configfile Configfile
	if err := json.Unmarshal(raw, &configfile); err != nil {
		c.logger.Warn("malformed configfile payload", "error", err)
		return
	}

	macros := make(map[string]MacroParams)
	for _, key := range macroKeys {
		// settings keys are lowercased section names
		setting, ok := configfile.Settings[strings.ToLower(key)]
		if !ok {
			continue
		}

		name := strings.TrimPrefix(key, macroPrefix)
		if strings.HasPrefix(name, "_") {
			continue
		}

		var section struct {
			Gcode string `json:"gcode"`
		}
		if err := json.Unmarshal(setting, &section); err != nil {
			c.logger.Warn("malformed macro settings section", "macro", name, "error", err)
			continue
		}

		macros[name] = ExtractMacroParameters(section.Gcode)
	}

	c.mu.Lock()
	c.macros = macros
	c.mu.Unlock()

	c.listener.OnMacrosUpdated(macros)
}

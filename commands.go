package moonraker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360/moonraker/jsonrpc"
)

// SendGcodeCommands sends gcode commands to the printer as a single script.
// An M112 anywhere in the batch is translated into a proper emergency stop
// instead of being queued behind other commands.
func (c *Client) SendGcodeCommands(commands ...string) (*jsonrpc.Call, error) {
	for _, command := range commands {
		if command == "M112" {
			return c.TriggerEmergencyStop()
		}
	}
	return c.SendGcodeScript(strings.Join(commands, "\n"))
}

// SendGcodeScript runs a gcode script on the printer. Sent lines are echoed
// to the console log with a ">>>" prefix, the firmware result with "<<<".
// An empty script yields a nil call.
func (c *Client) SendGcodeScript(script string) (*jsonrpc.Call, error) {
	if script == "" {
		return nil, nil
	}

	c.listener.OnGcodeLog(multilineLog(">>>", strings.Split(script, "\n")...)...)

	call, err := c.rpc.Call("printer.gcode.script", map[string]any{"script": script})
	if err != nil {
		return nil, err
	}

	go func() {
		ctx, cancel := c.callContext()
		defer cancel()

		result, err := call.Wait(ctx)
		if err != nil {
			c.logger.Error("error while sending gcode to printer", "error", err)
			return
		}
		var text string
		if err := json.Unmarshal(result, &text); err != nil {
			text = string(result)
		}
		c.listener.OnGcodeLog("<<< " + text)
	}()

	return call, nil
}

// TriggerEmergencyStop halts the printer immediately.
func (c *Client) TriggerEmergencyStop() (*jsonrpc.Call, error) {
	c.listener.OnGcodeLog("--- Triggering an Emergency Stop!")
	return c.rpc.Call("printer.emergency_stop", nil)
}

// TriggerHostRestart restarts the Klipper host process.
func (c *Client) TriggerHostRestart() (*jsonrpc.Call, error) {
	c.listener.OnGcodeLog(">>> RESTART")
	return c.rpc.Call("printer.restart", nil)
}

// TriggerFirmwareRestart restarts the Klipper firmware, also recovering from
// a shutdown state.
func (c *Client) TriggerFirmwareRestart() (*jsonrpc.Call, error) {
	c.listener.OnGcodeLog(">>> FIRMWARE_RESTART")
	return c.rpc.Call("printer.firmware_restart", nil)
}

// StartPrint starts printing a file from the gcodes root.
func (c *Client) StartPrint(path string) (*jsonrpc.Call, error) {
	return c.rpc.Call("printer.print.start", map[string]any{"filename": path})
}

// PausePrint pauses the active print.
func (c *Client) PausePrint() (*jsonrpc.Call, error) {
	return c.rpc.Call("printer.print.pause", nil)
}

// ResumePrint resumes a paused print.
func (c *Client) ResumePrint() (*jsonrpc.Call, error) {
	return c.rpc.Call("printer.print.resume", nil)
}

// CancelPrint cancels the active print.
func (c *Client) CancelPrint() (*jsonrpc.Call, error) {
	return c.rpc.Call("printer.print.cancel", nil)
}

// DeleteFile removes a file from a storage root.
func (c *Client) DeleteFile(path, root string) (*jsonrpc.Call, error) {
	return c.rpc.Call("server.files.delete_file", map[string]any{
		"path": root + "/" + path,
	})
}

// CreateFolder creates a folder in a storage root.
func (c *Client) CreateFolder(path, root string) (*jsonrpc.Call, error) {
	return c.rpc.Call("server.files.post_directory", map[string]any{
		"path": root + "/" + path,
	})
}

// DeleteFolder removes a folder from a storage root. With force set,
// non-empty folders are removed recursively.
func (c *Client) DeleteFolder(path, root string, force bool) (*jsonrpc.Call, error) {
	return c.rpc.Call("server.files.delete_directory", map[string]any{
		"path":  root + "/" + path,
		"force": force,
	})
}

// MovePath moves a file or folder, possibly across storage roots.
func (c *Client) MovePath(srcPath, dstPath, srcRoot, dstRoot string) (*jsonrpc.Call, error) {
	return c.rpc.Call("server.files.move", map[string]any{
		"source": srcRoot + "/" + srcPath,
		"dest":   dstRoot + "/" + dstPath,
	})
}

// CopyPath copies a file or folder, possibly across storage roots.
func (c *Client) CopyPath(srcPath, dstPath, srcRoot, dstRoot string) (*jsonrpc.Call, error) {
	return c.rpc.Call("server.files.copy", map[string]any{
		"source": srcRoot + "/" + srcPath,
		"dest":   dstRoot + "/" + dstPath,
	})
}

// FetchConsoleHistory replays the server-side gcode console history into the
// console log, framed by banner lines. Fetched once per session unless
// forced.
func (c *Client) FetchConsoleHistory(ctx context.Context, count int, force bool) {
	c.mu.Lock()
	received := c.historyReceived
	c.mu.Unlock()
	if received && !force {
		return
	}

	var result struct {
		GcodeStore []GcodeStoreEntry `json:"gcode_store"`
	}
	if err := c.rpc.Invoke(ctx, "server.gcode_store", map[string]any{"count": count}, &result); err != nil {
		c.logger.Error("error while fetching console history", "error", err)
		return
	}

	var lines []string
	for _, entry := range result.GcodeStore {
		switch entry.Type {
		case "command":
			lines = append(lines, multilineLog(">>>", strings.Split(entry.Message, "\n")...)...)
		case "response":
			lines = append(lines, multilineLog("<<<", strings.Split(entry.Message, "\n")...)...)
		}
	}

	if len(lines) > 0 {
		framed := make([]string, 0, len(lines)+2)
		framed = append(framed, "--- 8< --- Begin of console history --- 8< ---")
		framed = append(framed, lines...)
		framed = append(framed, "--- 8< --- End of console history --- 8< ---")
		c.listener.OnGcodeLog(framed...)
	}

	c.mu.Lock()
	c.historyReceived = true
	c.mu.Unlock()
}

// fetchJobHistory loads the finished job list. Failures are logged only, a
// missing history component must not abort the handshake.
func (c *Client) fetchJobHistory(ctx context.Context) {
	var result struct {
		Count int               `json:"count"`
		Jobs  []JobHistoryEntry `json:"jobs"`
	}
	params := map[string]any{"limit": 50, "order": "desc"}
	if err := c.rpc.Invoke(ctx, "server.history.list", params, &result); err != nil {
		c.logger.Warn("error while fetching job history", "error", err)
		return
	}

	c.mu.Lock()
	c.jobHistory = result.Jobs
	c.mu.Unlock()

	c.listener.OnJobHistory(result.Jobs)
}

// onGcodeResponse runs on the receipt goroutine for notify_gcode_response.
// Lines are echoed to the console log; firmware action commands are parsed
// and surfaced separately.
func (c *Client) onGcodeResponse(_ string, params json.RawMessage) {
	var lines []string
	if err := json.Unmarshal(params, &lines); err != nil {
		c.logger.Warn("malformed gcode response params", "error", err)
		return
	}

	c.listener.OnGcodeLog(multilineLog("<<<", lines...)...)

	for _, line := range lines {
		if !strings.HasPrefix(line, actionPrefix) {
			continue
		}
		command := strings.TrimSpace(line[len(actionPrefix):])
		name, actionParams := command, ""
		if idx := strings.Index(command, " "); idx >= 0 {
			name = strings.TrimSpace(command[:idx])
			actionParams = command[idx+1:]
		}
		c.listener.OnActionCommand(line, name, actionParams)
	}
}

// multilineLog prefixes the first line and marks continuation lines so
// multi-line messages stay recognizable in the console log.
func multilineLog(prefix string, lines ...string) []string {
	if len(lines) == 0 {
		return nil
	}
	result := make([]string, 0, len(lines))
	result = append(result, fmt.Sprintf("%s %s", prefix, lines[0]))
	for _, line := range lines[1:] {
		result = append(result, fmt.Sprintf("... %s", line))
	}
	return result
}

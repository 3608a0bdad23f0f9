package jsonrpc

import "encoding/json"

// Version is the supported JSON-RPC protocol version.
const Version = "2.0"

// notifyPrefix marks server-pushed notification methods. Anything else
// arriving with a method field is an inbound call we do not serve.
const notifyPrefix = "notify_"

// Request represents an outbound JSON-RPC request.
type Request struct {
	Version string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      *int64 `json:"id,omitempty"`
}

// Response represents a JSON-RPC response. It is also used for the error
// replies this client sends when a peer calls an unsupported method.
type Response struct {
	Version string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      *int64          `json:"id,omitempty"`
}

// anyMessage is the raw decoded form of a single inbound frame object:
// a response (result or error set), a notification (method, no id), or a
// peer-initiated request (method plus id).
type anyMessage struct {
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      *int64          `json:"id,omitempty"`
}

// isResponse reports whether the message resolves a pending call. The result
// key may legitimately carry JSON null, so presence is what matters.
func (m *anyMessage) isResponse() bool {
	return len(m.Result) > 0 || m.Error != nil
}

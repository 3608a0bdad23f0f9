package jsonrpc

import (
	"errors"
	"fmt"
)

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

// Well-known JSON-RPC 2.0 error codes.
const (
	// CodeParseError indicates invalid JSON was received.
	CodeParseError ErrorCode = -32700
	// CodeInvalidRequest indicates the payload is not a valid request object.
	CodeInvalidRequest ErrorCode = -32600
	// CodeMethodNotFound indicates the method does not exist or is unavailable.
	CodeMethodNotFound ErrorCode = -32601
	// CodeInvalidParams indicates invalid method parameters.
	CodeInvalidParams ErrorCode = -32602
	// CodeInternalError indicates an internal JSON-RPC error.
	CodeInternalError ErrorCode = -32603

	// CodeServerErrorMin and CodeServerErrorMax bound the implementation
	// defined server error range.
	CodeServerErrorMin ErrorCode = -32099
	CodeServerErrorMax ErrorCode = -32000
)

// Sentinel errors for the well-known code classes. Peer-reported errors
// unwrap to one of these, so callers can match with errors.Is regardless of
// the exact code the server used.
var (
	ErrParse          = errors.New("jsonrpc: parse error")
	ErrInvalidRequest = errors.New("jsonrpc: invalid request")
	ErrMethodNotFound = errors.New("jsonrpc: method not found")
	ErrInvalidParams  = errors.New("jsonrpc: invalid params")
	ErrInternal       = errors.New("jsonrpc: internal error")
	ErrServer         = errors.New("jsonrpc: server error")
)

// Error is a JSON-RPC 2.0 error object. It implements the error interface so
// peer-reported errors flow through normal Go error handling.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc: %s (code %d)", e.Message, e.Code)
}

// Unwrap maps the error code onto the matching sentinel error. Unrecognized
// codes unwrap to nil and remain matchable only as *Error.
func (e *Error) Unwrap() error {
	switch {
	case e.Code == CodeParseError:
		return ErrParse
	case e.Code == CodeInvalidRequest:
		return ErrInvalidRequest
	case e.Code == CodeMethodNotFound:
		return ErrMethodNotFound
	case e.Code == CodeInvalidParams:
		return ErrInvalidParams
	case e.Code == CodeInternalError:
		return ErrInternal
	case e.Code >= CodeServerErrorMin && e.Code <= CodeServerErrorMax:
		return ErrServer
	default:
		return nil
	}
}

// NewMethodNotFoundError builds the error object sent back to a peer that
// called a method this client does not serve.
func NewMethodNotFoundError(data any) *Error {
	return &Error{
		Code:    CodeMethodNotFound,
		Message: "Method not found",
		Data:    data,
	}
}

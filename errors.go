package wirepeer

import (
	"errors"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes, plus the application-range codes
// the handshake uses. Grounded on spec.md §6; named the way the
// teacher repo names its sentinel error codes (engine/acp/errors.go
// and LSP-flavored examples in the pack use a similar const block).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeEncryptionUnavailable is returned by RSA.EXCH when the
	// responding peer has no Crypto capability.
	CodeEncryptionUnavailable = 92
	// CodeCannotActivate is returned by RSA.CONF when the responder's
	// secure-channel state forbids activation (keys missing, or
	// already active).
	CodeCannotActivate = 1
)

// Sentinel errors for peer-level operations.
var (
	// ErrClosed indicates the peer is no longer usable: all public
	// operations besides Request are silent no-ops against it.
	ErrClosed = errors.New("wirepeer: peer closed")

	// ErrConnectionReset is the failure a pending Request is completed
	// with when the peer closes before a response arrives.
	ErrConnectionReset = errors.New("wirepeer: connection reset")

	// ErrTimeout names a request timeout. Nothing in this package
	// returns it: RequestWait returns the caller's default value on
	// timeout, and Call.Wait returns the context's own error.
	ErrTimeout = errors.New("wirepeer: request timed out")

	// ErrUnknownMethod indicates a request or notification method has
	// no registered handler in either table.
	ErrUnknownMethod = errors.New("wirepeer: unknown method")
)

// RPCError is a local representation of a JSON-RPC 2.0 error object,
// returned by handlers to produce an error response.
type RPCError struct {
	Code    int
	Message string
	Data    any
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wirepeer: rpc error %d: %s", e.Code, e.Message)
}

// NewRPCError builds an RPCError with no Data payload.
func NewRPCError(code int, message string) *RPCError {
	return &RPCError{Code: code, Message: message}
}

// MethodNotFound builds the standard −32601 error for an unregistered method.
func MethodNotFound(method string) *RPCError {
	return &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", method)}
}

// RemoteError is the error a pending call is completed with when the
// remote peer's response carries a JSON-RPC error object (spec.md §4.4,
// §7). It is distinct from RPCError (which a local handler constructs
// to produce an error response) even though the wire shape is the same.
type RemoteError struct {
	Code    int
	Message string
	Data    any
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("wirepeer: remote error %d: %s", e.Code, e.Message)
}

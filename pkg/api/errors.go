package api

import (
	"errors"
	"fmt"
)

// Sentinel errors for transport and session failures. Callers match these
// with errors.Is; most of them arrive wrapped with additional context.
var (
	// ErrCannotConnect indicates the initial dial to the server failed
	// (network, TLS or handshake error).
	ErrCannotConnect = errors.New("cannot connect to server")

	// ErrInvalidURL indicates the supplied server URL could not be parsed
	// into a WebSocket endpoint.
	ErrInvalidURL = errors.New("invalid server url")

	// ErrConnectionFailed indicates the established connection failed with
	// a transport-level error.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrConnectionClosed indicates the connection was closed. Outstanding
	// commands at disconnect time are resolved with this error.
	ErrConnectionClosed = errors.New("connection was closed")

	// ErrInvalidMessage indicates an inbound frame could not be parsed as
	// any known message shape.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrNotConnected indicates an operation that needs a live connection
	// was attempted without one.
	ErrNotConnected = errors.New("not connected")

	// ErrInvalidState indicates an operation is not valid in the session's
	// current lifecycle state, e.g. connecting twice.
	ErrInvalidState = errors.New("invalid state")

	// ErrAuthenticationRequired indicates the server's schema version
	// mandates authentication but no token was supplied.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrAuthenticationFailed indicates the server rejected the supplied
	// token.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrLoginFailed indicates a username/password login was rejected.
	ErrLoginFailed = errors.New("login failed")

	// ErrUnsupportedSchema indicates a command requires a newer server
	// schema version than the connected server advertises.
	ErrUnsupportedSchema = errors.New("unsupported schema version")
)

// CommandError is returned when the server answers a specific command with
// an error payload. It carries the originating command for attribution.
type CommandError struct {
	Command string
	Code    string
	Details string
}

func (e *CommandError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("command %q failed: %s (%s)", e.Command, e.Code, e.Details)
	}
	return fmt.Sprintf("command %q failed: %s", e.Command, e.Code)
}

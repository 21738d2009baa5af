package gossip

import "fmt"

// ProtocolViolation reports a malformed or disallowed message on a session:
// an unknown opcode, a non-confirmation opcode on an unconfirmed session, a
// bad address tag, or an oversized peer-list count. It always terminates the
// session that produced it.
type ProtocolViolation struct {
	Reason string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Reason)
}

// HandshakeError reports a failure before a session reached the Confirmed or
// AwaitingConfirmation state: a failed dial, a magic mismatch, or an I/O
// error during the handshake exchange.
type HandshakeError struct {
	Addr   string
	Reason string
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake failed with %s: %s", e.Addr, e.Reason)
}

// ConfigError reports invalid or missing command-line configuration.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return e.Reason
}

// BindError reports a failure to bind the listening socket. It is not fatal
// to the process — callers print a warning and exit cleanly.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

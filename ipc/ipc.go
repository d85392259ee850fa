// Package ipc specifies the narrow contract the local IPC transport must
// satisfy for the API façade (§4.6, §6): a way to identify which process
// issued a request. Connection is the only part of the transport the
// request processor and façade depend on; codec.go's gob-based Envelope/
// Reply framing is this module's reference wire protocol for
// cmd/secretsd and cmd/secretsctl, not a requirement — an alternative
// transport only needs to produce a Connection.
package ipc

// Connection identifies the peer on the other end of a client connection.
// A façade implementation calls CallerPID once per incoming request; if it
// cannot determine the PID, the request must fail immediately with
// secrets.ErrDaemonError (§4.6) rather than being enqueued.
type Connection interface {
	CallerPID() (pid int, ok bool)
}

// StaticConnection is a Connection with a fixed PID, useful for tests and
// for crypto-helper-originated requests that never cross the wire (§4.5)
// but still need to satisfy the same interface as a real client.
type StaticConnection int

func (c StaticConnection) CallerPID() (int, bool) { return int(c), true }

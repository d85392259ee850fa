//go:build linux || darwin || freebsd || openbsd || netbsd || dragonfly

package ipc

import (
	"net"

	"golang.org/x/sys/unix"
)

// UnixSocketConnection is a reference Connection implementation backed by
// a Unix domain socket, used by cmd/secretsd's local listener and by the
// integration tests in this module. It resolves the peer PID via
// SO_PEERCRED, matching how the original daemon resolves the DBus caller's
// PID (requestqueue.cpp's dbus_connection_get_unix_process_id) but over a
// plain net.UnixConn instead of DBus.
type UnixSocketConnection struct {
	conn *net.UnixConn
}

// NewUnixSocketConnection wraps an accepted Unix domain socket connection.
func NewUnixSocketConnection(conn *net.UnixConn) *UnixSocketConnection {
	return &UnixSocketConnection{conn: conn}
}

// CallerPID resolves the connecting process's PID via SO_PEERCRED. It
// returns ok=false if the credential could not be read, which the façade
// must treat as a DaemonError (§4.6, §6).
func (c *UnixSocketConnection) CallerPID() (int, bool) {
	raw, err := c.conn.SyscallConn()
	if err != nil {
		return 0, false
	}

	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil || credErr != nil || cred == nil {
		return 0, false
	}
	return int(cred.Pid), true
}

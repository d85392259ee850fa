//go:build linux || darwin || freebsd || openbsd || netbsd || dragonfly

package ipc_test

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksey-mikhaylov/sailfish-secrets/ipc"
)

func TestUnixSocketConnectionResolvesCallerPID(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "secretsd.sock")
	addr, err := net.ResolveUnixAddr("unix", sockPath)
	require.NoError(t, err)

	listener, err := net.ListenUnix("unix", addr)
	require.NoError(t, err)
	defer listener.Close()

	acceptedC := make(chan *net.UnixConn, 1)
	go func() {
		conn, err := listener.AcceptUnix()
		require.NoError(t, err)
		acceptedC <- conn
	}()

	client, err := net.DialUnix("unix", nil, addr)
	require.NoError(t, err)
	defer client.Close()

	server := <-acceptedC
	defer server.Close()

	sc := ipc.NewUnixSocketConnection(server)
	pid, ok := sc.CallerPID()
	require.True(t, ok)
	assert.Equal(t, os.Getpid(), pid)
}

package ipc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aleksey-mikhaylov/sailfish-secrets/ipc"
)

func TestStaticConnectionReturnsItsOwnValueAsPID(t *testing.T) {
	pid, ok := ipc.StaticConnection(42).CallerPID()
	assert.True(t, ok)
	assert.Equal(t, 42, pid)
}

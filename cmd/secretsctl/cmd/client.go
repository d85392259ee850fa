package cmd

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/viper"

	"github.com/aleksey-mikhaylov/sailfish-secrets/ipc"
)

const dialTimeout = 5 * time.Second

// call dials the configured socket, sends a single Envelope wrapping
// req, and returns the decoded reply. The reply's Params holds a freshly
// decoded value of req's concrete *Request type, with any output fields
// (Data, Info, ...) populated; callers type-assert it themselves.
func call(verb string, req interface{}) (ipc.Reply, error) {
	conn, err := net.DialTimeout("unix", viper.GetString("socket"), dialTimeout)
	if err != nil {
		return ipc.Reply{}, fmt.Errorf("dial secretsd: %w", err)
	}
	defer conn.Close()

	codec := ipc.NewCodec(conn)
	if err := codec.WriteEnvelope(ipc.Envelope{Verb: verb, Params: req}); err != nil {
		return ipc.Reply{}, fmt.Errorf("send request: %w", err)
	}

	reply, err := codec.ReadReply()
	if err != nil {
		return ipc.Reply{}, fmt.Errorf("read reply: %w", err)
	}
	return reply, nil
}

// checkResult surfaces a Failed result as a Go error, for commands that
// have nothing but success/failure to report.
func checkResult(reply ipc.Reply, err error) error {
	if err != nil {
		return err
	}
	if !reply.Result.Ok() {
		return reply.Result.Err()
	}
	return nil
}

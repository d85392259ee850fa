package ipc

import (
	"encoding/gob"
	"net"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
)

func init() {
	gob.Register(&secrets.GetPluginInfoRequest{})
	gob.Register(&secrets.CreateDeviceLockCollectionRequest{})
	gob.Register(&secrets.CreateCustomLockCollectionRequest{})
	gob.Register(&secrets.DeleteCollectionRequest{})
	gob.Register(&secrets.SetCollectionSecretRequest{})
	gob.Register(&secrets.GetCollectionSecretRequest{})
	gob.Register(&secrets.DeleteCollectionSecretRequest{})
	gob.Register(&secrets.SetStandaloneDeviceLockSecretRequest{})
	gob.Register(&secrets.SetStandaloneCustomLockSecretRequest{})
	gob.Register(&secrets.GetStandaloneSecretRequest{})
	gob.Register(&secrets.DeleteStandaloneSecretRequest{})
}

// Envelope is one client call, sent once per connection: a verb name
// (matching the queue.Enqueue verb table, §6) paired with the concrete
// *Request value for that verb. secretsctl and secretsd share this type
// so a request struct's shape never has to be duplicated into a
// separate wire format.
type Envelope struct {
	Verb   string
	Params interface{}
}

// Reply carries the verb's outcome and the same Params value handed
// back with any output fields (GetCollectionSecretRequest.Data,
// GetPluginInfoRequest.Info, ...) populated, mirroring how api.Facade
// reads them back from the queue reply in-process.
type Reply struct {
	Result secrets.Result
	Params interface{}
}

// Codec frames one Envelope/Reply exchange over conn using gob, the
// same encoding the standard library's own net/rpc uses for this shape
// of call. secretsd's listener accepts one Envelope and writes one
// Reply per connection (§4.6 treats each verb invocation as a single
// request/response, not a persistent session).
type Codec struct {
	conn net.Conn
	enc  *gob.Encoder
	dec  *gob.Decoder
}

func NewCodec(conn net.Conn) *Codec {
	return &Codec{conn: conn, enc: gob.NewEncoder(conn), dec: gob.NewDecoder(conn)}
}

func (c *Codec) WriteEnvelope(e Envelope) error { return c.enc.Encode(e) }

func (c *Codec) ReadEnvelope() (Envelope, error) {
	var e Envelope
	err := c.dec.Decode(&e)
	return e, err
}

func (c *Codec) WriteReply(r Reply) error { return c.enc.Encode(r) }

func (c *Codec) ReadReply() (Reply, error) {
	var r Reply
	err := c.dec.Decode(&r)
	return r, err
}

func (c *Codec) Close() error { return c.conn.Close() }

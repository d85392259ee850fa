package ipc_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
	"github.com/aleksey-mikhaylov/sailfish-secrets/ipc"
)

func TestCodecRoundTripsEnvelope(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clientCodec := ipc.NewCodec(client)
	serverCodec := ipc.NewCodec(server)

	sent := ipc.Envelope{Verb: "DeleteCollection", Params: &secrets.DeleteCollectionRequest{Name: "coll"}}

	errc := make(chan error, 1)
	go func() { errc <- clientCodec.WriteEnvelope(sent) }()

	got, err := serverCodec.ReadEnvelope()
	require.NoError(t, err)
	require.NoError(t, <-errc)

	assert.Equal(t, "DeleteCollection", got.Verb)
	req, ok := got.Params.(*secrets.DeleteCollectionRequest)
	require.True(t, ok)
	assert.Equal(t, "coll", req.Name)
}

func TestCodecRoundTripsReplyWithOutputField(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clientCodec := ipc.NewCodec(client)
	serverCodec := ipc.NewCodec(server)

	sent := ipc.Reply{
		Result: secrets.Ok(),
		Params: &secrets.GetCollectionSecretRequest{CollectionName: "coll", SecretName: "s", Data: []byte("hunter2")},
	}

	errc := make(chan error, 1)
	go func() { errc <- serverCodec.WriteReply(sent) }()

	got, err := clientCodec.ReadReply()
	require.NoError(t, err)
	require.NoError(t, <-errc)

	require.True(t, got.Result.Ok())
	req, ok := got.Params.(*secrets.GetCollectionSecretRequest)
	require.True(t, ok)
	assert.Equal(t, []byte("hunter2"), req.Data)
}

func TestCodecRoundTripsFailedResult(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clientCodec := ipc.NewCodec(client)
	serverCodec := ipc.NewCodec(server)

	sent := ipc.Reply{
		Result: secrets.FromError(secrets.NewError(secrets.ErrInvalidCollection, "no such collection")),
		Params: &secrets.DeleteCollectionRequest{Name: "missing"},
	}

	errc := make(chan error, 1)
	go func() { errc <- serverCodec.WriteReply(sent) }()

	got, err := clientCodec.ReadReply()
	require.NoError(t, err)
	require.NoError(t, <-errc)

	assert.False(t, got.Result.Ok())
	assert.Equal(t, secrets.ErrInvalidCollection, got.Result.ErrorCode)
}

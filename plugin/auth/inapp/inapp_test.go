package inapp_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin/auth/inapp"
)

type fakeUI struct {
	passphrase []byte
	err        error
}

func (f *fakeUI) RequestPassphrase(ctx context.Context, address string, req inapp.PassphraseRequest) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.passphrase, nil
}

type fakeSink struct {
	mu         sync.Mutex
	completion *plugin.AuthenticationCompletion
	done       chan struct{}
}

func newFakeSink() *fakeSink { return &fakeSink{done: make(chan struct{})} }

func (f *fakeSink) AuthenticationCompleted(c plugin.AuthenticationCompletion) {
	f.mu.Lock()
	f.completion = &c
	f.mu.Unlock()
	close(f.done)
}

func (f *fakeSink) wait(t *testing.T) plugin.AuthenticationCompletion {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for AuthenticationCompleted")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.completion
}

func TestAuthenticationType(t *testing.T) {
	p := inapp.New("inapp", true, &fakeUI{})
	assert.Equal(t, plugin.ApplicationSpecific, p.AuthenticationType())
}

func TestBeginAuthenticationRequiresUIServiceAddress(t *testing.T) {
	p := inapp.New("inapp", true, &fakeUI{})
	result := p.BeginAuthentication(plugin.AuthRequest{RequestID: 1})
	assert.Equal(t, secrets.Failed, result.Code)
	assert.Equal(t, secrets.ErrOperationRequiresInProcessUserInteraction, result.ErrorCode)
}

func TestBeginAuthenticationCompletesWithDerivedKey(t *testing.T) {
	p := inapp.New("inapp", true, &fakeUI{passphrase: []byte("hunter2")})
	sink := newFakeSink()
	p.RegisterCompletionSink(sink)

	result := p.BeginAuthentication(plugin.AuthRequest{
		RequestID:        7,
		ApplicationID:    "app1",
		CollectionName:   "coll",
		UIServiceAddress: "unix:///tmp/ui.sock",
	})
	require.Equal(t, secrets.Pending, result.Code)

	completion := sink.wait(t)
	assert.Equal(t, uint64(7), completion.RequestID)
	require.True(t, completion.Result.Ok())
	assert.Len(t, completion.Key, 32)
}

func TestBeginAuthenticationReportsUIFailure(t *testing.T) {
	p := inapp.New("inapp", true, &fakeUI{err: errors.New("ui unreachable")})
	sink := newFakeSink()
	p.RegisterCompletionSink(sink)

	result := p.BeginAuthentication(plugin.AuthRequest{RequestID: 9, UIServiceAddress: "unix:///tmp/ui.sock"})
	require.Equal(t, secrets.Pending, result.Code)

	completion := sink.wait(t)
	assert.Equal(t, uint64(9), completion.RequestID)
	assert.False(t, completion.Result.Ok())
	assert.Equal(t, secrets.Failed, completion.Result.Code)
}

func TestDeriveKeyDependsOnScope(t *testing.T) {
	p1 := inapp.New("inapp", true, &fakeUI{passphrase: []byte("hunter2")})
	sink1 := newFakeSink()
	p1.RegisterCompletionSink(sink1)
	p1.BeginAuthentication(plugin.AuthRequest{RequestID: 1, ApplicationID: "app1", CollectionName: "a", UIServiceAddress: "x"})
	c1 := sink1.wait(t)

	p2 := inapp.New("inapp", true, &fakeUI{passphrase: []byte("hunter2")})
	sink2 := newFakeSink()
	p2.RegisterCompletionSink(sink2)
	p2.BeginAuthentication(plugin.AuthRequest{RequestID: 1, ApplicationID: "app1", CollectionName: "b", UIServiceAddress: "x"})
	c2 := sink2.wait(t)

	assert.NotEqual(t, c1.Key, c2.Key)
}

package devicelock_test

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
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin/auth/devicelock"
)

type fakeLockState struct {
	unlocked bool
	err      error
}

func (f *fakeLockState) IsDeviceUnlocked(ctx context.Context) (bool, error) {
	return f.unlocked, f.err
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
	p := devicelock.New("devicelock", true, &fakeLockState{}, func() []byte { return nil })
	assert.Equal(t, plugin.SystemMediated, p.AuthenticationType())
}

func TestBeginAuthenticationResolvesKeyWhenUnlocked(t *testing.T) {
	key := []byte("device-lock-key")
	p := devicelock.New("devicelock", true, &fakeLockState{unlocked: true}, func() []byte { return key })
	sink := newFakeSink()
	p.RegisterCompletionSink(sink)

	result := p.BeginAuthentication(plugin.AuthRequest{RequestID: 1})
	require.Equal(t, secrets.Pending, result.Code)

	completion := sink.wait(t)
	require.True(t, completion.Result.Ok())
	assert.Equal(t, key, completion.Key)
}

func TestBeginAuthenticationFailsWhenLocked(t *testing.T) {
	p := devicelock.New("devicelock", true, &fakeLockState{unlocked: false}, func() []byte { return nil })
	sink := newFakeSink()
	p.RegisterCompletionSink(sink)

	p.BeginAuthentication(plugin.AuthRequest{RequestID: 2})
	completion := sink.wait(t)
	assert.False(t, completion.Result.Ok())
	assert.Equal(t, secrets.ErrOperationRequiresUserInteraction, completion.Result.ErrorCode)
}

func TestBeginAuthenticationPropagatesLockStateError(t *testing.T) {
	p := devicelock.New("devicelock", true, &fakeLockState{err: errors.New("keyguard unreachable")}, func() []byte { return nil })
	sink := newFakeSink()
	p.RegisterCompletionSink(sink)

	p.BeginAuthentication(plugin.AuthRequest{RequestID: 3})
	completion := sink.wait(t)
	assert.False(t, completion.Result.Ok())
	assert.Equal(t, secrets.ErrUnknown, completion.Result.ErrorCode)
}

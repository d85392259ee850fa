// Package devicelock is a SystemMediated AuthenticationPlugin (§4.1,
// §4.5): it defers to the platform's own lock-screen state rather than
// an application-hosted UI, resolving to the daemon-wide DeviceLockKey
// once the system confirms the device is unlocked. This is distinct
// from the request processor's UsesDeviceLockKey shortcut
// (internal/processor/keyresolution.go), which never launches an
// authentication flow at all; a collection or secret that names this
// plugin explicitly still goes through BeginAuthentication/
// CompletionSink on every access, for deployments that want that
// confirmation step even though the resulting key is shared.
package devicelock

import (
	"context"
	"time"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin"
)

const requestTimeout = 30 * time.Second

// LockStateSource reports whether the device is currently unlocked. The
// concrete system integration (screen lock, keyguard, whatever the host
// platform calls it) is outside this module's scope; cmd/secretsd wires
// alwaysUnlockedState, which reports the device as always unlocked.
type LockStateSource interface {
	IsDeviceUnlocked(ctx context.Context) (bool, error)
}

type Plugin struct {
	name   string
	isTest bool
	lock   LockStateSource
	key    func() []byte
	sink   plugin.CompletionSink
}

// New constructs a Plugin that consults lock for device state and
// resolves to deviceLockKey() once unlocked.
func New(name string, isTest bool, lock LockStateSource, deviceLockKey func() []byte) *Plugin {
	return &Plugin{name: name, isTest: isTest, lock: lock, key: deviceLockKey}
}

func (p *Plugin) Name() string                       { return p.name }
func (p *Plugin) IsTest() bool                        { return p.isTest }
func (p *Plugin) AuthenticationType() plugin.AuthType { return plugin.SystemMediated }

func (p *Plugin) RegisterCompletionSink(sink plugin.CompletionSink) {
	p.sink = sink
}

func (p *Plugin) BeginAuthentication(req plugin.AuthRequest) secrets.Result {
	go p.run(req)
	return secrets.PendingResult()
}

func (p *Plugin) run(req plugin.AuthRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	unlocked, err := p.lock.IsDeviceUnlocked(ctx)
	if err != nil {
		p.sink.AuthenticationCompleted(plugin.AuthenticationCompletion{
			RequestID: req.RequestID,
			Result:    secrets.FromError(err),
		})
		return
	}
	if !unlocked {
		p.sink.AuthenticationCompleted(plugin.AuthenticationCompletion{
			RequestID: req.RequestID,
			Result:    secrets.FromError(secrets.NewError(secrets.ErrOperationRequiresUserInteraction, "device must be unlocked")),
		})
		return
	}

	p.sink.AuthenticationCompleted(plugin.AuthenticationCompletion{
		RequestID: req.RequestID,
		Result:    secrets.Ok(),
		Key:       p.key(),
	})
}

var _ plugin.AuthenticationPlugin = (*Plugin)(nil)

// Package api is the local IPC surface (§4.6, C6): one method per verb
// in §6's table. Each method packs its arguments into the matching
// *Request type from the root package, resolves the caller's PID from
// an ipc.Connection, and enqueues onto the request queue. Replies are
// always deferred — the façade blocks the calling goroutine on the
// queue's reply channel rather than the caller polling for completion,
// which is an implementation choice the distilled spec leaves to the
// transport; the dispatcher itself never blocks on a façade call.
package api

import (
	"context"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/queue"
	"github.com/aleksey-mikhaylov/sailfish-secrets/ipc"
)

// Facade is the daemon's single entry point for every verb. It holds no
// state of its own beyond the queue it was constructed with.
type Facade struct {
	q *queue.Queue
}

// New wraps q. q must already have been constructed with a
// processor.Processor's Handle as its handler.
func New(q *queue.Queue) *Facade {
	return &Facade{q: q}
}

// call resolves the caller's PID, enqueues params under verb, and waits
// for the reply or ctx cancellation. If the PID cannot be determined the
// request never reaches the queue at all (§4.6: "if the PID cannot be
// determined the request fails immediately with a transport-level
// error").
func (f *Facade) call(ctx context.Context, conn ipc.Connection, verb string, params interface{}) (secrets.Result, error) {
	pid, ok := conn.CallerPID()
	if !ok {
		return secrets.Result{}, secrets.NewError(secrets.ErrDaemonError, "caller pid could not be determined")
	}

	replyC, err := f.q.Enqueue(pid, verb, params)
	if err != nil {
		return secrets.Result{}, err
	}

	select {
	case result := <-replyC:
		return result, nil
	case <-ctx.Done():
		return secrets.Result{}, ctx.Err()
	}
}

// GetPluginInfo returns the four ordered plugin descriptor sequences
// (§6).
func (f *Facade) GetPluginInfo(ctx context.Context, conn ipc.Connection) (secrets.PluginInfoSnapshot, error) {
	req := &secrets.GetPluginInfoRequest{}
	result, err := f.call(ctx, conn, "GetPluginInfo", req)
	if err != nil {
		return secrets.PluginInfoSnapshot{}, err
	}
	if !result.Ok() {
		return secrets.PluginInfoSnapshot{}, result.Err()
	}
	return req.Info, nil
}

// CreateDeviceLockCollection is CreateCollection (device-lock) (§6).
func (f *Facade) CreateDeviceLockCollection(ctx context.Context, conn ipc.Connection, req *secrets.CreateDeviceLockCollectionRequest) error {
	result, err := f.call(ctx, conn, "CreateCollection", req)
	if err != nil {
		return err
	}
	return result.Err()
}

// CreateCustomLockCollection is CreateCollection (custom-lock) (§6). The
// reply may be delayed behind an authentication flow; the caller still
// observes it as a single blocking call.
func (f *Facade) CreateCustomLockCollection(ctx context.Context, conn ipc.Connection, req *secrets.CreateCustomLockCollectionRequest) error {
	result, err := f.call(ctx, conn, "CreateCollection", req)
	if err != nil {
		return err
	}
	return result.Err()
}

// DeleteCollection is DeleteCollection (§6).
func (f *Facade) DeleteCollection(ctx context.Context, conn ipc.Connection, req *secrets.DeleteCollectionRequest) error {
	result, err := f.call(ctx, conn, "DeleteCollection", req)
	if err != nil {
		return err
	}
	return result.Err()
}

// SetCollectionSecret is SetSecret (collection) (§6).
func (f *Facade) SetCollectionSecret(ctx context.Context, conn ipc.Connection, req *secrets.SetCollectionSecretRequest) error {
	result, err := f.call(ctx, conn, "SetSecret", req)
	if err != nil {
		return err
	}
	return result.Err()
}

// GetCollectionSecret is GetSecret (collection) (§6). req.Data carries
// the plaintext on success.
func (f *Facade) GetCollectionSecret(ctx context.Context, conn ipc.Connection, req *secrets.GetCollectionSecretRequest) error {
	result, err := f.call(ctx, conn, "GetSecret", req)
	if err != nil {
		return err
	}
	return result.Err()
}

// DeleteCollectionSecret is DeleteSecret (collection) (§6).
func (f *Facade) DeleteCollectionSecret(ctx context.Context, conn ipc.Connection, req *secrets.DeleteCollectionSecretRequest) error {
	result, err := f.call(ctx, conn, "DeleteSecret", req)
	if err != nil {
		return err
	}
	return result.Err()
}

// SetStandaloneDeviceLockSecret is SetSecret (standalone device-lock) (§6).
func (f *Facade) SetStandaloneDeviceLockSecret(ctx context.Context, conn ipc.Connection, req *secrets.SetStandaloneDeviceLockSecretRequest) error {
	result, err := f.call(ctx, conn, "SetSecret", req)
	if err != nil {
		return err
	}
	return result.Err()
}

// SetStandaloneCustomLockSecret is SetSecret (standalone custom-lock) (§6).
func (f *Facade) SetStandaloneCustomLockSecret(ctx context.Context, conn ipc.Connection, req *secrets.SetStandaloneCustomLockSecretRequest) error {
	result, err := f.call(ctx, conn, "SetSecret", req)
	if err != nil {
		return err
	}
	return result.Err()
}

// GetStandaloneSecret is GetSecret (standalone) (§6). req.Data carries
// the plaintext on success.
func (f *Facade) GetStandaloneSecret(ctx context.Context, conn ipc.Connection, req *secrets.GetStandaloneSecretRequest) error {
	result, err := f.call(ctx, conn, "GetSecret", req)
	if err != nil {
		return err
	}
	return result.Err()
}

// DeleteStandaloneSecret is DeleteSecret (standalone) (§6).
func (f *Facade) DeleteStandaloneSecret(ctx context.Context, conn ipc.Connection, req *secrets.DeleteStandaloneSecretRequest) error {
	result, err := f.call(ctx, conn, "DeleteSecret", req)
	if err != nil {
		return err
	}
	return result.Err()
}

// Package inapp is an AuthenticationPlugin that derives a secret's key
// from a passphrase collected by the calling application's own UI,
// rather than the system shell (§4.1, §4.5). It is grounded on
// original_source/plugins/inappauthplugin/plugin.h: an
// ApplicationSpecific plugin that requires the caller to supply a UI
// service address and forwards the prompt there, later resuming the
// suspended request through the registered CompletionSink once the
// caller's answer arrives.
package inapp

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/argon2"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin"
)

const requestTimeout = 2 * time.Minute

const (
	argonTime  = 2
	argonMemKB = 64 * 1024
	argonLanes = 2
	keySize    = 32
)

// PassphraseRequest is what the plugin asks the UI service to collect.
type PassphraseRequest struct {
	CallerPID      int
	RequestID      uint64
	ApplicationID  string
	CollectionName string
	SecretName     string
}

// UIService dials a uiServiceAddress and returns the passphrase the user
// entered. The wire protocol between the daemon and an application's UI
// surface is outside this module's scope (ipc.go makes the same call for
// the client transport); production wiring supplies a concrete
// implementation in cmd/secretsd.
type UIService interface {
	RequestPassphrase(ctx context.Context, address string, req PassphraseRequest) ([]byte, error)
}

type Plugin struct {
	name   string
	isTest bool
	ui     UIService
	sink   plugin.CompletionSink
}

func New(name string, isTest bool, ui UIService) *Plugin {
	return &Plugin{name: name, isTest: isTest, ui: ui}
}

func (p *Plugin) Name() string                       { return p.name }
func (p *Plugin) IsTest() bool                        { return p.isTest }
func (p *Plugin) AuthenticationType() plugin.AuthType { return plugin.ApplicationSpecific }

func (p *Plugin) RegisterCompletionSink(sink plugin.CompletionSink) {
	p.sink = sink
}

// BeginAuthentication launches the UI round-trip in the background and
// returns Pending immediately; checkInteractionAllowed (the request
// processor) has already confirmed the caller runs in InProcessUI mode
// before this is called.
func (p *Plugin) BeginAuthentication(req plugin.AuthRequest) secrets.Result {
	if req.UIServiceAddress == "" {
		return secrets.FromError(secrets.NewError(secrets.ErrOperationRequiresInProcessUserInteraction, "in-app authentication requires a UI service address"))
	}
	go p.run(req)
	return secrets.PendingResult()
}

func (p *Plugin) run(req plugin.AuthRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	passphrase, err := p.ui.RequestPassphrase(ctx, req.UIServiceAddress, PassphraseRequest{
		CallerPID:      req.CallerPID,
		RequestID:      req.RequestID,
		ApplicationID:  req.ApplicationID,
		CollectionName: req.CollectionName,
		SecretName:     req.SecretName,
	})
	if err != nil {
		p.sink.AuthenticationCompleted(plugin.AuthenticationCompletion{
			RequestID: req.RequestID,
			Result:    secrets.FromError(fmt.Errorf("inapp: collect passphrase: %w", err)),
		})
		return
	}

	p.sink.AuthenticationCompleted(plugin.AuthenticationCompletion{
		RequestID: req.RequestID,
		Result:    secrets.Ok(),
		Key:       deriveKey(passphrase, req),
	})
}

// deriveKey turns the collected passphrase into key material scoped to
// the owning application and secret/collection name, so the same
// passphrase typed for two different secrets never yields the same key.
// There is no persisted per-secret salt to draw on here (unlike
// keyderive's bootstrap key, which has one); the scoping string plays
// the salt's role instead, which is adequate since the passphrase itself
// supplies the entropy.
func deriveKey(passphrase []byte, req plugin.AuthRequest) []byte {
	scope := []byte(req.ApplicationID + "\x00" + req.CollectionName + "\x00" + req.SecretName)
	return argon2.IDKey(passphrase, scope, argonTime, argonMemKB, argonLanes, keySize)
}

var _ plugin.AuthenticationPlugin = (*Plugin)(nil)

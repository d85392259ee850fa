package processor

import (
	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin"
)

// pendingKind names which verb a suspended PendingRequest is resuming,
// so AuthenticationCompleted knows which *params field to read and which
// continuation worker to call.
type pendingKind int

const (
	pendingCreateCustomLockCollection pendingKind = iota
	pendingSetCollectionSecret
	pendingGetCollectionSecret
	pendingDeleteCollectionSecret
	pendingSetStandaloneCustomLockSecret
	pendingGetStandaloneSecret
)

// PendingRequest is what handleCreateCustomLockCollection and its sibling
// handlers register when a verb has launched an AuthenticationPlugin flow
// and must suspend until AuthenticationCompleted resumes it. Exactly one
// of the request fields is populated, matching Kind.
type PendingRequest struct {
	Kind pendingKind

	CreateCollection       *secrets.CreateCustomLockCollectionRequest
	SetCollectionSecret    *secrets.SetCollectionSecretRequest
	GetCollectionSecret    *secrets.GetCollectionSecretRequest
	DeleteCollectionSecret *secrets.DeleteCollectionSecretRequest
	SetStandaloneSecret    *secrets.SetStandaloneCustomLockSecretRequest
	GetStandaloneSecret    *secrets.GetStandaloneSecretRequest
}

func (p *Processor) registerPending(id uint64, pr *PendingRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[id] = pr
}

func (p *Processor) takePending(id uint64) (*PendingRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	return pr, ok
}

// AuthenticationCompleted implements plugin.CompletionSink. cmd/secretsd
// registers the Processor with every AuthenticationPlugin right after
// constructing it, so that whichever plugin instance begun the flow can
// report its outcome back here, keyed by the RequestID it was handed in
// AuthRequest.
func (p *Processor) AuthenticationCompleted(completion plugin.AuthenticationCompletion) {
	pr, ok := p.takePending(completion.RequestID)
	if !ok {
		return
	}

	var result secrets.Result
	if completion.Result.Code == secrets.Failed {
		result = completion.Result
	} else {
		result = secrets.FromError(p.resumePending(pr, completion.Key))
	}

	p.logAudit(pr.verb(), 0, pr.params(), result)

	if p.q != nil {
		p.q.Finish(completion.RequestID, result)
	}
}

// verb names the outer api.Facade verb this pending request is resuming,
// matching the verb string api.Facade.call enqueued it under.
func (pr *PendingRequest) verb() string {
	switch pr.Kind {
	case pendingCreateCustomLockCollection:
		return "CreateCollection"
	case pendingSetCollectionSecret, pendingSetStandaloneCustomLockSecret:
		return "SetSecret"
	case pendingGetCollectionSecret, pendingGetStandaloneSecret:
		return "GetSecret"
	case pendingDeleteCollectionSecret:
		return "DeleteSecret"
	default:
		return "Unknown"
	}
}

// params returns the single populated request field matching pr.Kind, so
// it can be fed through the same auditMetadata extraction Handle uses.
func (pr *PendingRequest) params() interface{} {
	switch pr.Kind {
	case pendingCreateCustomLockCollection:
		return pr.CreateCollection
	case pendingSetCollectionSecret:
		return pr.SetCollectionSecret
	case pendingGetCollectionSecret:
		return pr.GetCollectionSecret
	case pendingDeleteCollectionSecret:
		return pr.DeleteCollectionSecret
	case pendingSetStandaloneCustomLockSecret:
		return pr.SetStandaloneSecret
	case pendingGetStandaloneSecret:
		return pr.GetStandaloneSecret
	default:
		return nil
	}
}

// resumePending dispatches to the continuation worker matching pr.Kind.
// Every worker re-validates that its target collection or secret still
// exists before applying its mutation (§9 open question 2): the
// authentication flow this resumes may have taken an arbitrary amount of
// wall-clock time, during which another client could have deleted the
// collection or secret out from under it.
func (p *Processor) resumePending(pr *PendingRequest, key []byte) error {
	switch pr.Kind {
	case pendingCreateCustomLockCollection:
		return p.createCollectionWithAuthenticationKey(pr.CreateCollection, key)
	case pendingSetCollectionSecret:
		return p.setCollectionSecretWithAuthenticationKey(pr.SetCollectionSecret, key)
	case pendingGetCollectionSecret:
		return p.getCollectionSecretWithAuthenticationKey(pr.GetCollectionSecret, key)
	case pendingDeleteCollectionSecret:
		return p.deleteCollectionSecretWithAuthenticationKey(pr.DeleteCollectionSecret, key)
	case pendingSetStandaloneCustomLockSecret:
		return p.setStandaloneCustomLockSecretWithAuthenticationKey(pr.SetStandaloneSecret, key)
	case pendingGetStandaloneSecret:
		return p.getStandaloneSecretWithAuthenticationKey(pr.GetStandaloneSecret, key)
	default:
		return secrets.NewError(secrets.ErrDaemonError, "unrecognised pending request kind")
	}
}

func (p *Processor) createCollectionWithAuthenticationKey(params *secrets.CreateCustomLockCollectionRequest, key []byte) error {
	if _, found, err := p.cat.FindCollection(params.Name); err != nil {
		return err
	} else if found {
		return secrets.NewErrorf(secrets.ErrCollectionAlreadyExists, "collection %q already exists", params.Name)
	}
	return p.createCollectionWithKey(params.Name, params.OwnerApplicationID, params.StoragePlugin, params.EncryptionPlugin,
		params.UnlockSemantic, params.AccessControlMode, false, key, params.CustomLockTimeoutMs)
}

func (p *Processor) setCollectionSecretWithAuthenticationKey(params *secrets.SetCollectionSecretRequest, key []byte) error {
	col, err := p.accessibleCollection(params.CollectionName, params.OwnerApplicationID)
	if err != nil {
		return err
	}
	if err := p.applyKeyedSetCollectionSecret(col, params.SecretName, params.Data, key); err != nil {
		return err
	}
	p.cache.PutCollectionKey(col.Name, key, col.UnlockSemantic, col.CustomLockTimeoutMs)
	return nil
}

func (p *Processor) getCollectionSecretWithAuthenticationKey(params *secrets.GetCollectionSecretRequest, key []byte) error {
	col, err := p.accessibleCollection(params.CollectionName, params.OwnerApplicationID)
	if err != nil {
		return err
	}
	data, err := p.applyKeyedGetCollectionSecret(col, params.SecretName, key)
	if err != nil {
		return err
	}
	params.Data = data
	p.cache.PutCollectionKey(col.Name, key, col.UnlockSemantic, col.CustomLockTimeoutMs)
	return nil
}

func (p *Processor) deleteCollectionSecretWithAuthenticationKey(params *secrets.DeleteCollectionSecretRequest, key []byte) error {
	col, err := p.accessibleCollection(params.CollectionName, params.OwnerApplicationID)
	if err != nil {
		return err
	}
	if err := p.applyKeyedDeleteCollectionSecret(col, params.SecretName, key); err != nil {
		return err
	}
	p.cache.PutCollectionKey(col.Name, key, col.UnlockSemantic, col.CustomLockTimeoutMs)
	return nil
}

func (p *Processor) setStandaloneCustomLockSecretWithAuthenticationKey(params *secrets.SetStandaloneCustomLockSecretRequest, key []byte) error {
	if err := p.applyStandaloneSet(*params, key); err != nil {
		return err
	}
	p.cache.PutStandaloneKey(params.SecretName, key, params.UnlockSemantic, params.CustomLockTimeoutMs)
	return nil
}

func (p *Processor) getStandaloneSecretWithAuthenticationKey(params *secrets.GetStandaloneSecretRequest, key []byte) error {
	existing, found, err := p.cat.FindSecret(secrets.StandaloneCollectionName, params.SecretName)
	if err != nil {
		return err
	}
	if !found {
		return secrets.NewErrorf(secrets.ErrInvalidSecret, "standalone secret %q not found", params.SecretName)
	}
	hashed := secrets.HashedSecretName(secrets.StandaloneCollectionName, params.SecretName)
	data, err := p.readSecretBytes(secrets.StandaloneCollectionName, existing.StoragePluginName, existing.EncryptionPluginName, hashed, key, existing.StoragePluginName == existing.EncryptionPluginName)
	if err != nil {
		return err
	}
	params.Data = data
	p.cache.PutStandaloneKey(params.SecretName, key, existing.UnlockSemantic, existing.CustomLockTimeoutMs)
	return nil
}

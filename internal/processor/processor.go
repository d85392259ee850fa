// Package processor is the request-processing state machine (§4.5, C5):
// the core of the daemon. It implements every verb over the catalogue,
// key cache and plugin registry, including the two-phase
// catalogue-then-plugin mutation discipline and the asynchronous
// continuation machinery that resumes a verb once a custom-lock
// authentication flow completes.
package processor

import (
	"sync"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
	"github.com/aleksey-mikhaylov/sailfish-secrets/audit"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/catalogue"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/keycache"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/queue"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin"
)

// KeySource supplies the fixed DeviceLockKey and SystemEncryptionKey
// placeholder material (§9 design note: "an implementation MUST source
// these from a platform-appropriate secure keystore at first boot").
// cmd/secretsd's keySource, built on internal/keyderive, is the reference
// KeySource.
type KeySource interface {
	DeviceLockKey() []byte
	SystemEncryptionKey() []byte
}

// Processor wires the catalogue, key cache and plugin registry together
// and exposes Handle as a queue.Handler. A Processor must be registered
// with its Queue via SetQueue before any custom-lock verb runs, since
// continuation completion finishes suspended requests on it.
type Processor struct {
	cat     *catalogue.Catalogue
	cache   *keycache.Cache
	plugins *plugin.Manager
	keys    KeySource

	q *queue.Queue

	mu      sync.Mutex
	pending map[uint64]*PendingRequest

	ledger *ReconciliationLedger

	auditLog audit.Logger
}

// New constructs a Processor. Call SetQueue once the owning Queue exists
// (it is constructed with this Processor's Handle as its handler, so the
// two must be wired together after both exist).
func New(cat *catalogue.Catalogue, cache *keycache.Cache, plugins *plugin.Manager, keys KeySource) *Processor {
	return &Processor{
		cat:     cat,
		cache:   cache,
		plugins: plugins,
		keys:    keys,
		pending: make(map[uint64]*PendingRequest),
		ledger:  newReconciliationLedger(),
		auditLog: &audit.NoOpLogger{},
	}
}

// SetQueue gives the Processor a handle back to its own Queue, needed so
// that authentication completions can call Finish.
func (p *Processor) SetQueue(q *queue.Queue) {
	p.q = q
}

// SetAuditLogger installs the logger every verb completion is reported
// through. Uninstalled, a Processor logs to audit.NoOpLogger.
func (p *Processor) SetAuditLogger(l audit.Logger) {
	if l == nil {
		l = &audit.NoOpLogger{}
	}
	p.auditLog = l
}

// Ledger exposes the reconciliation ledger for a status/diagnostics verb
// to report on (§4.5: "flagged ... for later retry").
func (p *Processor) Ledger() *ReconciliationLedger {
	return p.ledger
}

// Handle is the queue.Handler entry point: one case per verb's request
// type (§6). Every verb that completes synchronously here is reported to
// the audit log immediately; verbs that suspend behind an authentication
// flow are logged from AuthenticationCompleted instead, once their real
// outcome is known.
func (p *Processor) Handle(req *queue.RequestData) (secrets.Result, bool) {
	result, completed := p.dispatch(req)
	if _, internal := req.Params.(*cryptoHelperRequest); completed && !internal {
		p.logAudit(req.Verb, req.CallerPID, req.Params, result)
	}
	return result, completed
}

func (p *Processor) dispatch(req *queue.RequestData) (secrets.Result, bool) {
	switch params := req.Params.(type) {
	case *secrets.GetPluginInfoRequest:
		p.handleGetPluginInfo(params)
		return secrets.Ok(), true

	case *secrets.CreateDeviceLockCollectionRequest:
		return secrets.FromError(p.createDeviceLockCollection(*params)), true

	case *secrets.CreateCustomLockCollectionRequest:
		return p.handleCreateCustomLockCollection(req, params)

	case *secrets.DeleteCollectionRequest:
		return secrets.FromError(p.deleteCollection(params.Name)), true

	case *secrets.SetCollectionSecretRequest:
		return p.handleSetCollectionSecret(req, params)

	case *secrets.GetCollectionSecretRequest:
		return p.handleGetCollectionSecret(req, params)

	case *secrets.DeleteCollectionSecretRequest:
		return p.handleDeleteCollectionSecret(req, params)

	case *secrets.SetStandaloneDeviceLockSecretRequest:
		return secrets.FromError(p.setStandaloneDeviceLockSecret(*params)), true

	case *secrets.SetStandaloneCustomLockSecretRequest:
		return p.handleSetStandaloneCustomLockSecret(req, params)

	case *secrets.GetStandaloneSecretRequest:
		return p.handleGetStandaloneSecret(req, params)

	case *secrets.DeleteStandaloneSecretRequest:
		return secrets.FromError(p.deleteStandaloneSecret(*params)), true

	case *cryptoHelperRequest:
		return p.handleCryptoHelperRequest(req, params)

	default:
		return secrets.FromError(secrets.NewError(secrets.ErrDaemonError, "unrecognised request type")), true
	}
}

func (p *Processor) handleGetPluginInfo(out *secrets.GetPluginInfoRequest) {
	snap := p.plugins.Snapshot()
	out.Info = secrets.PluginInfoSnapshot{
		StoragePlugins:          convertDescriptors(snap.StoragePlugins),
		EncryptionPlugins:       convertDescriptors(snap.EncryptionPlugins),
		EncryptedStoragePlugins: convertDescriptors(snap.EncryptedStoragePlugins),
		AuthenticationPlugins:   convertDescriptors(snap.AuthenticationPlugins),
	}
}

func convertDescriptors(in []plugin.Descriptor) []secrets.PluginDescriptor {
	out := make([]secrets.PluginDescriptor, len(in))
	for i, d := range in {
		out[i] = secrets.PluginDescriptor{Name: d.Name, IsTest: d.IsTest}
	}
	return out
}

// logAudit reports one verb completion. Metadata never includes secret
// payloads, only the identifiers needed to correlate an event with the
// collection or secret it touched.
func (p *Processor) logAudit(verb string, callerPID int, params interface{}, result secrets.Result) {
	meta := auditMetadata(params)
	if callerPID != 0 {
		meta["caller_pid"] = callerPID
	}
	if !result.Ok() {
		meta["error_code"] = result.ErrorCode
	}
	_ = p.auditLog.Log(verb, result.Ok(), meta)
}

func auditMetadata(params interface{}) map[string]interface{} {
	meta := make(map[string]interface{}, 3)
	switch req := params.(type) {
	case *secrets.CreateDeviceLockCollectionRequest:
		meta["collection"] = req.Name
		meta["owner"] = req.OwnerApplicationID
	case *secrets.CreateCustomLockCollectionRequest:
		meta["collection"] = req.Name
		meta["owner"] = req.OwnerApplicationID
	case *secrets.DeleteCollectionRequest:
		meta["collection"] = req.Name
	case *secrets.SetCollectionSecretRequest:
		meta["collection"] = req.CollectionName
		meta["secret"] = req.SecretName
		meta["owner"] = req.OwnerApplicationID
	case *secrets.GetCollectionSecretRequest:
		meta["collection"] = req.CollectionName
		meta["secret"] = req.SecretName
	case *secrets.DeleteCollectionSecretRequest:
		meta["collection"] = req.CollectionName
		meta["secret"] = req.SecretName
	case *secrets.SetStandaloneDeviceLockSecretRequest:
		meta["secret"] = req.SecretName
		meta["owner"] = req.OwnerApplicationID
	case *secrets.SetStandaloneCustomLockSecretRequest:
		meta["secret"] = req.SecretName
		meta["owner"] = req.OwnerApplicationID
	case *secrets.GetStandaloneSecretRequest:
		meta["secret"] = req.SecretName
	case *secrets.DeleteStandaloneSecretRequest:
		meta["secret"] = req.SecretName
	}
	return meta
}

// validateCollectionPlugins checks that storagePlugin/encryptionPlugin
// name either a single encrypted-storage plugin (storagePlugin ==
// encryptionPlugin) or a valid separate storage+encryption pair (§3
// invariant).
func (p *Processor) validateCollectionPlugins(storageName, encryptionName string) error {
	if storageName == encryptionName {
		if !p.plugins.IsEncryptedStorage(storageName) {
			return secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no encrypted-storage plugin named %q", storageName)
		}
		return nil
	}
	if _, ok := p.plugins.Storage(storageName); !ok {
		return secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no storage plugin named %q", storageName)
	}
	if _, ok := p.plugins.Encryption(encryptionName); !ok {
		return secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no encryption plugin named %q", encryptionName)
	}
	return nil
}

package processor_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
	"github.com/aleksey-mikhaylov/sailfish-secrets/audit"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/catalogue"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/catalogue/sqlitecatalogue"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/keycache"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/processor"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/queue"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin"
)

type recordingAuditLogger struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	action   string
	success  bool
	metadata map[string]interface{}
}

func (r *recordingAuditLogger) Log(action string, success bool, metadata map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{action: action, success: success, metadata: metadata})
	return nil
}

func (r *recordingAuditLogger) Query(options audit.QueryOptions) (audit.QueryResult, error) {
	return audit.QueryResult{}, nil
}

func (r *recordingAuditLogger) Close() error { return nil }

func (r *recordingAuditLogger) snapshot() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

type fakeStorage struct {
	name string
	data map[string][]byte
}

func newFakeStorage(name string) *fakeStorage { return &fakeStorage{name: name, data: map[string][]byte{}} }
func (f *fakeStorage) Name() string           { return f.name }
func (f *fakeStorage) IsTest() bool           { return true }
func (f *fakeStorage) CreateCollection(name string) error { return nil }
func (f *fakeStorage) RemoveCollection(name string) error { return nil }
func (f *fakeStorage) SetSecret(collection, hashedName string, data []byte) error {
	f.data[collection+"/"+hashedName] = append([]byte(nil), data...)
	return nil
}
func (f *fakeStorage) GetSecret(collection, hashedName string) ([]byte, error) {
	v, ok := f.data[collection+"/"+hashedName]
	if !ok {
		return nil, secrets.NewError(secrets.ErrInvalidSecret, "not found")
	}
	return v, nil
}
func (f *fakeStorage) RemoveSecret(collection, hashedName string) error {
	delete(f.data, collection+"/"+hashedName)
	return nil
}
func (f *fakeStorage) ReencryptSecrets(target plugin.ReencryptTarget, oldKey, newKey []byte, enc plugin.EncryptionPlugin) error {
	return nil
}

type fakeEncryption struct{ name string }

func (f *fakeEncryption) Name() string   { return f.name }
func (f *fakeEncryption) IsTest() bool   { return true }
func (f *fakeEncryption) Encrypt(plaintext, key []byte) ([]byte, error) {
	return append([]byte("enc:"), plaintext...), nil
}
func (f *fakeEncryption) Decrypt(ciphertext, key []byte) ([]byte, error) {
	return ciphertext[len("enc:"):], nil
}

type fakeAuth struct {
	name string
	kind plugin.AuthType
	sink plugin.CompletionSink
}

func (f *fakeAuth) Name() string                     { return f.name }
func (f *fakeAuth) IsTest() bool                      { return true }
func (f *fakeAuth) AuthenticationType() plugin.AuthType { return f.kind }
func (f *fakeAuth) RegisterCompletionSink(sink plugin.CompletionSink) { f.sink = sink }
func (f *fakeAuth) BeginAuthentication(req plugin.AuthRequest) secrets.Result {
	return secrets.PendingResult()
}
func (f *fakeAuth) complete(requestID uint64, key []byte) {
	f.sink.AuthenticationCompleted(plugin.AuthenticationCompletion{RequestID: requestID, Result: secrets.Ok(), Key: key})
}

type fakeKeys struct{ deviceLockKey []byte }

func (k fakeKeys) DeviceLockKey() []byte      { return k.deviceLockKey }
func (k fakeKeys) SystemEncryptionKey() []byte { return k.deviceLockKey }

func newTestProcessor(t *testing.T) (*processor.Processor, *queue.Queue, *fakeAuth) {
	t.Helper()
	backend, err := sqlitecatalogue.Open(":memory:")
	require.NoError(t, err)
	cat, err := catalogue.New(backend)
	require.NoError(t, err)
	cache, err := keycache.New()
	require.NoError(t, err)

	mgr := plugin.NewManager(true)
	auth := &fakeAuth{name: "test-auth", kind: plugin.SystemMediated}
	mgr.Discover([]plugin.Factory{
		{Storage: newFakeStorage("test-storage"), Encryption: &fakeEncryption{name: "test-enc"}, Auth: auth},
	})

	p := processor.New(cat, cache, mgr, fakeKeys{deviceLockKey: []byte("device-lock-key-000000000000000")})
	q := queue.New(p.Handle)
	p.SetQueue(q)
	auth.RegisterCompletionSink(p)
	return p, q, auth
}

func TestCreateDeviceLockCollectionAndRoundTripSecret(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	result, completed := p.Handle(&queue.RequestData{ID: 1, CallerPID: 1, Params: &secrets.CreateDeviceLockCollectionRequest{
		Name: "coll", OwnerApplicationID: "app", StoragePlugin: "test-storage", EncryptionPlugin: "test-enc",
	}})
	assert.True(t, completed)
	assert.True(t, result.Ok())

	getReq := &secrets.GetCollectionSecretRequest{CollectionName: "coll", SecretName: "s1", OwnerApplicationID: "app"}
	setReq := &secrets.SetCollectionSecretRequest{CollectionName: "coll", SecretName: "s1", Data: []byte("hello"), OwnerApplicationID: "app"}
	result, completed = p.Handle(&queue.RequestData{ID: 2, Params: setReq})
	require.True(t, completed)
	require.True(t, result.Ok(), "%+v", result)

	result, completed = p.Handle(&queue.RequestData{ID: 3, Params: getReq})
	require.True(t, completed)
	require.True(t, result.Ok(), "%+v", result)
	assert.Equal(t, []byte("hello"), getReq.Data)
}

func TestDeleteCollectionSecretIsIdempotent(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	result, completed := p.Handle(&queue.RequestData{ID: 1, Params: &secrets.CreateDeviceLockCollectionRequest{
		Name: "coll", OwnerApplicationID: "app", StoragePlugin: "test-storage", EncryptionPlugin: "test-enc",
	}})
	require.True(t, completed)
	require.True(t, result.Ok())

	delReq := &secrets.DeleteCollectionSecretRequest{CollectionName: "coll", SecretName: "missing", OwnerApplicationID: "app"}
	result, completed = p.Handle(&queue.RequestData{ID: 2, Params: delReq})
	require.True(t, completed)
	assert.True(t, result.Ok())

	result, completed = p.Handle(&queue.RequestData{ID: 3, Params: delReq})
	require.True(t, completed)
	assert.True(t, result.Ok())
}

func TestGetCollectionSecretMissingIsInvalidSecret(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	result, completed := p.Handle(&queue.RequestData{ID: 1, Params: &secrets.CreateDeviceLockCollectionRequest{
		Name: "coll", OwnerApplicationID: "app", StoragePlugin: "test-storage", EncryptionPlugin: "test-enc",
	}})
	require.True(t, completed)
	require.True(t, result.Ok())

	getReq := &secrets.GetCollectionSecretRequest{CollectionName: "coll", SecretName: "nope", OwnerApplicationID: "app"}
	result, completed = p.Handle(&queue.RequestData{ID: 2, Params: getReq})
	require.True(t, completed)
	assert.False(t, result.Ok())
	assert.Equal(t, secrets.ErrInvalidSecret, result.ErrorCode)
}

func TestCreateCustomLockCollectionSuspendsAndResumes(t *testing.T) {
	p, _, auth := newTestProcessor(t)

	req := &queue.RequestData{ID: 42, CallerPID: 7, Params: &secrets.CreateCustomLockCollectionRequest{
		Name: "locked", OwnerApplicationID: "app", StoragePlugin: "test-storage", EncryptionPlugin: "test-enc",
		AuthPlugin: "test-auth", UIMode: secrets.SystemMediatedUI,
	}}
	result, completed := p.Handle(req)
	assert.False(t, completed)
	assert.Equal(t, secrets.Pending, result.Code)

	auth.complete(42, []byte("custom-lock-key-00000000000000"))

	getReq := &secrets.GetCollectionSecretRequest{CollectionName: "locked", SecretName: "does-not-exist", OwnerApplicationID: "app"}
	result, completed = p.Handle(&queue.RequestData{ID: 43, Params: getReq})
	require.True(t, completed)
	assert.False(t, result.Ok())
	assert.Equal(t, secrets.ErrInvalidSecret, result.ErrorCode)
}

func TestDeleteCollectionIsIdempotent(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	result, completed := p.Handle(&queue.RequestData{ID: 1, Params: &secrets.DeleteCollectionRequest{Name: "never-existed"}})
	require.True(t, completed)
	assert.True(t, result.Ok())
}

func TestCreateDeviceLockCollectionRejectsReservedName(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	result, completed := p.Handle(&queue.RequestData{ID: 1, Params: &secrets.CreateDeviceLockCollectionRequest{
		Name: "standalone", OwnerApplicationID: "app", StoragePlugin: "test-storage", EncryptionPlugin: "test-enc",
	}})
	require.True(t, completed)
	assert.False(t, result.Ok())
	assert.Equal(t, secrets.ErrInvalidCollection, result.ErrorCode)
}

func TestCreateCustomLockCollectionRejectsReservedNameBeforeSuspending(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	result, completed := p.Handle(&queue.RequestData{ID: 1, Params: &secrets.CreateCustomLockCollectionRequest{
		Name: "STANDALONE", OwnerApplicationID: "app", StoragePlugin: "test-storage", EncryptionPlugin: "test-enc",
		AuthPlugin: "test-auth", UIMode: secrets.SystemMediatedUI,
	}})
	require.True(t, completed, "reserved-name rejection must fail fast, not suspend pending authentication")
	assert.False(t, result.Ok())
	assert.Equal(t, secrets.ErrInvalidCollection, result.ErrorCode)
}

func TestDeleteCollectionRejectsReservedName(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	result, completed := p.Handle(&queue.RequestData{ID: 1, Params: &secrets.DeleteCollectionRequest{Name: "standalone"}})
	require.True(t, completed)
	assert.False(t, result.Ok())
	assert.Equal(t, secrets.ErrInvalidCollection, result.ErrorCode)
}

func TestGetCollectionSecretRejectsNonOwningApplication(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	result, completed := p.Handle(&queue.RequestData{ID: 1, Params: &secrets.CreateDeviceLockCollectionRequest{
		Name: "coll", OwnerApplicationID: "app-a", StoragePlugin: "test-storage", EncryptionPlugin: "test-enc",
	}})
	require.True(t, completed)
	require.True(t, result.Ok())

	setReq := &secrets.SetCollectionSecretRequest{CollectionName: "coll", SecretName: "s1", Data: []byte("hello"), OwnerApplicationID: "app-a"}
	result, completed = p.Handle(&queue.RequestData{ID: 2, Params: setReq})
	require.True(t, completed)
	require.True(t, result.Ok(), "%+v", result)

	getReq := &secrets.GetCollectionSecretRequest{CollectionName: "coll", SecretName: "s1", OwnerApplicationID: "app-b"}
	result, completed = p.Handle(&queue.RequestData{ID: 3, Params: getReq})
	require.True(t, completed)
	assert.False(t, result.Ok())
	assert.Equal(t, secrets.ErrPermissions, result.ErrorCode)
}

func TestHandleLogsSynchronousVerbCompletion(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	logger := &recordingAuditLogger{}
	p.SetAuditLogger(logger)

	result, completed := p.Handle(&queue.RequestData{
		ID: 1, CallerPID: 99, Verb: "CreateCollection",
		Params: &secrets.CreateDeviceLockCollectionRequest{
			Name: "coll", OwnerApplicationID: "app", StoragePlugin: "test-storage", EncryptionPlugin: "test-enc",
		},
	})
	require.True(t, completed)
	require.True(t, result.Ok())

	events := logger.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "CreateCollection", events[0].action)
	assert.True(t, events[0].success)
	assert.Equal(t, "coll", events[0].metadata["collection"])
	assert.Equal(t, 99, events[0].metadata["caller_pid"])
}

func TestAuthenticationCompletedLogsResumedVerb(t *testing.T) {
	p, _, auth := newTestProcessor(t)
	logger := &recordingAuditLogger{}
	p.SetAuditLogger(logger)

	req := &queue.RequestData{ID: 42, Verb: "CreateCollection", Params: &secrets.CreateCustomLockCollectionRequest{
		Name: "locked", OwnerApplicationID: "app", StoragePlugin: "test-storage", EncryptionPlugin: "test-enc",
		AuthPlugin: "test-auth", UIMode: secrets.SystemMediatedUI,
	}}
	_, completed := p.Handle(req)
	require.False(t, completed)
	assert.Empty(t, logger.snapshot(), "suspended verb must not be logged until it resumes")

	auth.complete(42, []byte("custom-lock-key-00000000000000"))

	events := logger.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "CreateCollection", events[0].action)
	assert.True(t, events[0].success)
	assert.Equal(t, "locked", events[0].metadata["collection"])
}

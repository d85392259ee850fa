package cmd

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
	"github.com/aleksey-mikhaylov/sailfish-secrets/api"
	"github.com/aleksey-mikhaylov/sailfish-secrets/audit"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/catalogue"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/catalogue/sqlitecatalogue"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/keycache"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/processor"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/queue"
	"github.com/aleksey-mikhaylov/sailfish-secrets/ipc"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin/auth/devicelock"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin/auth/inapp"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin/crypto"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin/storage/encrypted"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin/storage/fsplugin"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin/storage/s3plugin"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the secrets daemon and listen on its local IPC socket",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	dataDir := viper.GetString("data_dir")
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	passphrase := viper.GetString("passphrase")
	if passphrase == "" {
		return fmt.Errorf("a bootstrap passphrase is required (--passphrase or SECRETSD_PASSPHRASE)")
	}
	testMode := viper.GetBool("test_mode")

	keys, err := loadKeySource(dataDir, passphrase)
	if err != nil {
		return fmt.Errorf("load key source: %w", err)
	}

	backend, err := sqlitecatalogue.Open(filepath.Join(dataDir, "catalogue.db"))
	if err != nil {
		return fmt.Errorf("open catalogue: %w", err)
	}
	defer backend.Close()

	cat, err := catalogue.New(backend)
	if err != nil {
		return fmt.Errorf("init catalogue: %w", err)
	}

	cache, err := keycache.New()
	if err != nil {
		return fmt.Errorf("init key cache: %w", err)
	}

	auditLogger, err := buildAuditLogger(dataDir)
	if err != nil {
		return fmt.Errorf("init audit logger: %w", err)
	}
	defer auditLogger.Close()

	manager, auth, err := buildPluginManager(dataDir, testMode, keys)
	if err != nil {
		return fmt.Errorf("init plugins: %w", err)
	}

	proc := processor.New(cat, cache, manager, keys)
	proc.SetAuditLogger(auditLogger)
	for _, a := range auth {
		a.RegisterCompletionSink(proc)
	}

	q := queue.New(proc.Handle)
	proc.SetQueue(q)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	facade := api.New(q)

	socketPath := viper.GetString("socket")
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	_ = os.Remove(socketPath)

	addr, err := net.ResolveUnixAddr("unix", socketPath)
	if err != nil {
		return fmt.Errorf("resolve socket address: %w", err)
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()

	log.Printf("secretsd: listening on %s (test-mode=%v)", socketPath, testMode)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Printf("secretsd: shutting down")
		cancel()
		listener.Close()
	}()

	return acceptLoop(ctx, listener, facade)
}

// buildAuditLogger constructs the audit.Logger every verb completion is
// reported through. Disabled by default; --audit-enabled turns it on.
func buildAuditLogger(dataDir string) (audit.Logger, error) {
	cfg := &audit.Config{
		Enabled:  viper.GetBool("audit.enabled"),
		Type:     audit.ConfigType(viper.GetString("audit.type")),
		LogLevel: viper.GetString("audit.log_level"),
	}

	if cfg.Type == audit.FileAuditType {
		path := viper.GetString("audit.file_path")
		if path == "" {
			path = filepath.Join(dataDir, "audit.jsonl")
		}
		cfg.Options = map[string]interface{}{"file_path": path}
	}

	return audit.NewLogger(cfg)
}

// buildPluginManager discovers every reference backend this launcher
// knows how to construct. An S3 storage plugin is only registered when
// a bucket is configured; every other plugin always participates.
func buildPluginManager(dataDir string, testMode bool, keys keySource) (*plugin.Manager, []plugin.AuthenticationPlugin, error) {
	fs, err := fsplugin.New("fs", testMode, filepath.Join(dataDir, "secrets"))
	if err != nil {
		return nil, nil, fmt.Errorf("init fsplugin: %w", err)
	}

	aescbc := crypto.New("aescbc", testMode)
	aead := crypto.NewAEAD("aead", testMode)

	encStore, err := encrypted.New("encrypted", testMode, filepath.Join(dataDir, "encrypted"), aead)
	if err != nil {
		return nil, nil, fmt.Errorf("init encrypted storage: %w", err)
	}

	deviceLockAuth := devicelock.New("devicelock", testMode, alwaysUnlockedState{}, keys.DeviceLockKey)
	inappAuth := inapp.New("inapp", testMode, unixSocketUIService{})

	factories := []plugin.Factory{
		{Storage: fs},
		{Encryption: aescbc},
		{Encryption: aead},
		{EncryptedStore: encStore},
		{Auth: deviceLockAuth},
		{Auth: inappAuth},
	}

	if bucket := viper.GetString("s3.bucket"); bucket != "" {
		s3, err := s3plugin.New("s3", testMode, s3plugin.Config{
			Endpoint:        viper.GetString("s3.endpoint"),
			AccessKeyID:     viper.GetString("s3.access_key_id"),
			SecretAccessKey: viper.GetString("s3.secret_access_key"),
			UseSSL:          viper.GetBool("s3.use_ssl"),
			Region:          viper.GetString("s3.region"),
			Bucket:          bucket,
			KeyPrefix:       viper.GetString("s3.prefix"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init s3plugin: %w", err)
		}
		factories = append(factories, plugin.Factory{Storage: s3})
	}

	manager := plugin.NewManager(testMode)
	manager.Discover(factories)

	return manager, []plugin.AuthenticationPlugin{deviceLockAuth, inappAuth}, nil
}

func acceptLoop(ctx context.Context, listener *net.UnixListener, facade *api.Facade) error {
	for {
		conn, err := listener.AcceptUnix()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		go serveConn(ctx, conn, facade)
	}
}

func serveConn(ctx context.Context, conn *net.UnixConn, facade *api.Facade) {
	defer conn.Close()

	codec := ipc.NewCodec(conn)
	ipcConn := ipc.NewUnixSocketConnection(conn)

	envelope, err := codec.ReadEnvelope()
	if err != nil {
		return
	}

	reply := dispatch(ctx, facade, ipcConn, envelope)
	_ = codec.WriteReply(reply)
}

// dispatch type-switches on the concrete *Request value carried by
// envelope.Params and calls the matching api.Facade method, mirroring
// the same verb table api.Facade.call enqueues under — Envelope.Verb is
// carried for diagnostics only, since the Params type alone already
// identifies the call.
func dispatch(ctx context.Context, facade *api.Facade, conn ipc.Connection, envelope ipc.Envelope) ipc.Reply {
	switch req := envelope.Params.(type) {
	case *secrets.GetPluginInfoRequest:
		info, err := facade.GetPluginInfo(ctx, conn)
		if err != nil {
			return errorReply(req, err)
		}
		req.Info = info
		return ipc.Reply{Result: secrets.Ok(), Params: req}

	case *secrets.CreateDeviceLockCollectionRequest:
		err := facade.CreateDeviceLockCollection(ctx, conn, req)
		return simpleReply(req, err)

	case *secrets.CreateCustomLockCollectionRequest:
		err := facade.CreateCustomLockCollection(ctx, conn, req)
		return simpleReply(req, err)

	case *secrets.DeleteCollectionRequest:
		err := facade.DeleteCollection(ctx, conn, req)
		return simpleReply(req, err)

	case *secrets.SetCollectionSecretRequest:
		err := facade.SetCollectionSecret(ctx, conn, req)
		return simpleReply(req, err)

	case *secrets.GetCollectionSecretRequest:
		err := facade.GetCollectionSecret(ctx, conn, req)
		return simpleReply(req, err)

	case *secrets.DeleteCollectionSecretRequest:
		err := facade.DeleteCollectionSecret(ctx, conn, req)
		return simpleReply(req, err)

	case *secrets.SetStandaloneDeviceLockSecretRequest:
		err := facade.SetStandaloneDeviceLockSecret(ctx, conn, req)
		return simpleReply(req, err)

	case *secrets.SetStandaloneCustomLockSecretRequest:
		err := facade.SetStandaloneCustomLockSecret(ctx, conn, req)
		return simpleReply(req, err)

	case *secrets.GetStandaloneSecretRequest:
		err := facade.GetStandaloneSecret(ctx, conn, req)
		return simpleReply(req, err)

	case *secrets.DeleteStandaloneSecretRequest:
		err := facade.DeleteStandaloneSecret(ctx, conn, req)
		return simpleReply(req, err)

	default:
		return ipc.Reply{Result: secrets.FromError(secrets.NewError(secrets.ErrDaemonError, "unrecognised request type"))}
	}
}

func simpleReply(params interface{}, err error) ipc.Reply {
	if err != nil {
		return errorReply(params, err)
	}
	return ipc.Reply{Result: secrets.Ok(), Params: params}
}

func errorReply(params interface{}, err error) ipc.Reply {
	return ipc.Reply{Result: secrets.FromError(err), Params: params}
}

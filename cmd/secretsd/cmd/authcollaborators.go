package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin/auth/inapp"
)

// alwaysUnlockedState is the reference plugin/auth/devicelock.LockStateSource
// for this launcher: it has no access to a real platform keyguard (§1
// scopes the secure peripheral as a stubbed Non-goal), so it reports the
// device as always unlocked. A platform-specific build would replace
// this with a real lock-screen query.
type alwaysUnlockedState struct{}

func (alwaysUnlockedState) IsDeviceUnlocked(ctx context.Context) (bool, error) {
	return true, nil
}

// unixSocketUIService is the reference plugin/auth/inapp.UIService for
// this launcher: it dials the caller-supplied uiServiceAddress as a Unix
// domain socket and exchanges a single newline-delimited JSON
// request/response pair. The protocol the calling application's UI
// surface actually speaks is outside this daemon's scope; this is
// enough to exercise the inapp plugin's suspend/resume path end to end.
type unixSocketUIService struct{}

type uiPassphraseRequest struct {
	ApplicationID  string
	CollectionName string
	SecretName     string
}

type uiPassphraseResponse struct {
	Passphrase string
}

func (unixSocketUIService) RequestPassphrase(ctx context.Context, address string, req inapp.PassphraseRequest) ([]byte, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", address)
	if err != nil {
		return nil, fmt.Errorf("dial UI service at %s: %w", address, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(uiPassphraseRequest{
		ApplicationID:  req.ApplicationID,
		CollectionName: req.CollectionName,
		SecretName:     req.SecretName,
	}); err != nil {
		return nil, fmt.Errorf("send passphrase prompt: %w", err)
	}

	var resp uiPassphraseResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read passphrase response: %w", err)
	}
	return []byte(resp.Passphrase), nil
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/dmarkelov/notesync/internal/common"
)

func (a *App) status(ctx context.Context) error {
	trusted, err := a.engine.TrustedDevices(ctx)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("device:     %s (%s)", a.identity.DeviceName, a.identity.DeviceID))
	printlnFn(fmt.Sprintf("relay:      %s (%s)", a.config.RelayAddr, a.conn.State()))
	printlnFn(fmt.Sprintf("directory:  %s", a.config.VaultDir))
	printlnFn(fmt.Sprintf("files:      %d", a.engine.FileCount()))
	printlnFn(fmt.Sprintf("trusted:    %d", len(trusted)))
	printlnFn(fmt.Sprintf("pending:    %d", len(a.engine.PendingSyncRequests())))
	return nil
}

func (a *App) devices(ctx context.Context) error {
	trusted, err := a.engine.TrustedDevices(ctx)
	if err != nil {
		return err
	}
	online := make(map[string]bool)
	for _, dev := range a.engine.OnlineDevices() {
		online[dev.ID] = dev.Online
	}

	if len(trusted) == 0 {
		printlnFn("no trusted devices; use 'invite' or 'join <key>' to pair")
		return nil
	}
	for _, peer := range trusted {
		state := "offline"
		if online[peer.ID] {
			state = "online"
		}
		scope := "permanent"
		if !peer.Persistent {
			scope = "this session"
		}
		printlnFn(fmt.Sprintf("  %s  %s  %s (%s)", peer.ID, peer.Name, state, scope))
	}
	return nil
}

func (a *App) pending(ctx context.Context) error {
	reqs := a.engine.PendingSyncRequests()
	if len(reqs) == 0 {
		printlnFn("no pending sync requests")
		return nil
	}
	for _, req := range reqs {
		printlnFn(fmt.Sprintf("  %s  from %q (%s), received %s",
			req.RequestID, req.DeviceName, req.DeviceID, req.IssuedAt.Format(time.RFC3339)))
	}
	return nil
}

func (a *App) invite(ctx context.Context) error {
	key, err := a.engine.GenerateInvitationKey(ctx)
	if err != nil {
		printlnFn("could not create an invitation key:", err)
		return err
	}
	printlnFn(fmt.Sprintf("invitation key: %s (valid for %s, single use)", key, common.InvitationKeyTTL))
	printlnFn("enter it on the other device with 'join " + key + "'")
	return nil
}

func (a *App) join(ctx context.Context, key string) error {
	if err := a.engine.UseInvitationKey(ctx, key); err != nil {
		printlnFn("could not redeem the key:", err)
		return err
	}
	printlnFn("sync request sent; waiting for the other device to accept")
	return nil
}

func (a *App) accept(ctx context.Context, requestID string, session bool) error {
	if err := a.engine.RespondToSyncRequest(ctx, requestID, true, !session); err != nil {
		printlnFn("could not accept the request:", err)
		return err
	}
	if session {
		printlnFn("accepted for this session only")
	} else {
		printlnFn("accepted; devices are now paired")
	}
	return nil
}

func (a *App) decline(ctx context.Context, requestID string) error {
	if err := a.engine.RespondToSyncRequest(ctx, requestID, false, false); err != nil {
		printlnFn("could not decline the request:", err)
		return err
	}
	printlnFn("declined")
	return nil
}

func (a *App) revoke(ctx context.Context, deviceID string) error {
	if err := a.engine.RevokeTrust(ctx, deviceID); err != nil {
		printlnFn("could not revoke trust:", err)
		return err
	}
	printlnFn("trust revoked; messages from this device will be ignored")
	return nil
}

func (a *App) ignore(ctx context.Context, pattern string) error {
	if _, err := path.Match(pattern, "probe"); err != nil {
		printlnFn("invalid pattern:", err)
		return fmt.Errorf("%w: bad glob pattern %q", common.ErrValidation, pattern)
	}
	for _, p := range a.ignorePatterns {
		if p == pattern {
			printlnFn("pattern is already ignored")
			return nil
		}
	}

	a.ignorePatterns = append(a.ignorePatterns, pattern)
	a.store.AddIgnore(pattern)

	raw, err := json.Marshal(a.ignorePatterns)
	if err != nil {
		return err
	}
	if err := a.repos.Settings().Set(ctx, ignorePatternsKey, string(raw)); err != nil {
		printlnFn("could not save the pattern:", err)
		return err
	}
	printlnFn(fmt.Sprintf("ignoring %q from now on; already-synced copies are kept", pattern))
	return nil
}

func (a *App) sync(ctx context.Context) error {
	a.engine.ForceFullSync()
	printlnFn("full sync requested")
	return nil
}

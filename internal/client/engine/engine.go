// Package engine drives synchronization: it watches the local
// directory, announces changes to trusted peers, resolves conflicting
// versions by last-writer-wins, and pulls content it is missing. All
// mutation of the file index happens on a single event loop goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmarkelov/notesync/internal/client/models"
	"github.com/dmarkelov/notesync/internal/client/relayconn"
	"github.com/dmarkelov/notesync/internal/client/repositories/files"
	"github.com/dmarkelov/notesync/internal/client/store"
	"github.com/dmarkelov/notesync/internal/client/trust"
	"github.com/dmarkelov/notesync/internal/common"
	"github.com/dmarkelov/notesync/internal/cryptox"
	"github.com/dmarkelov/notesync/internal/hashx"
	"github.com/dmarkelov/notesync/internal/logging"
	"github.com/dmarkelov/notesync/internal/protocol"
)

const (
	defaultSweepInterval = time.Minute
	responseTimeout      = 5 * time.Second
)

// Relay is the outbound half of the relay connection the engine needs.
// Satisfied by *relayconn.Connection.
type Relay interface {
	Send(msgType, to string, payload any) bool
	IsConnected() bool
}

// Notifier surfaces events the operator should see. Implemented by the
// CLI; methods may be called from the engine loop and must not block.
type Notifier interface {
	Notice(format string, args ...any)
	SyncRequestReceived(req models.PendingSyncRequest)
}

type nopNotifier struct{}

func (nopNotifier) Notice(format string, args ...any)                 {}
func (nopNotifier) SyncRequestReceived(req models.PendingSyncRequest) {}

// Options configure an Engine.
type Options struct {
	DeviceID   string
	DeviceName string

	// FullSyncInterval is the period of unprompted full syncs; zero
	// disables them. Full syncs still run on every (re)connect.
	FullSyncInterval time.Duration

	// PendingSweepInterval is how often expired pending trust requests
	// are dropped.
	PendingSweepInterval time.Duration
}

type pendingPull struct {
	meta protocol.FileMeta
	from string
}

type Engine struct {
	opts   Options
	logger logging.Logger
	box    *cryptox.Box
	trust  *trust.Store
	store  store.Store
	files  files.Repository

	notifierMu sync.Mutex
	notifier   Notifier

	relayMu sync.Mutex
	relay   Relay

	indexMu sync.RWMutex
	index   map[string]models.FileRecord

	presenceMu sync.RWMutex
	online     map[string]protocol.DeviceInfo

	outboundMu sync.Mutex
	outbound   map[string]struct{}

	waiterMu         sync.Mutex
	inviteCreateWait chan protocol.InviteCreateResponse
	inviteRedeemWait chan protocol.InviteRedeemResponse

	// Loop-owned, no locking.
	pendingPulls   map[string]pendingPull
	pendingDeletes map[string]int64

	syncing atomic.Bool

	msgs        chan *protocol.Envelope
	syncReqs    chan *protocol.Envelope
	deviceLists chan protocol.DeviceList
	connected   chan bool
	fullSyncCh  chan struct{}

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(opts Options, box *cryptox.Box, trustStore *trust.Store, fileStore store.Store,
	filesRepo files.Repository, logger logging.Logger) *Engine {
	if opts.PendingSweepInterval <= 0 {
		opts.PendingSweepInterval = defaultSweepInterval
	}
	return &Engine{
		opts:           opts,
		logger:         logger.With("component", "engine"),
		box:            box,
		trust:          trustStore,
		store:          fileStore,
		files:          filesRepo,
		notifier:       nopNotifier{},
		index:          make(map[string]models.FileRecord),
		online:         make(map[string]protocol.DeviceInfo),
		outbound:       make(map[string]struct{}),
		pendingPulls:   make(map[string]pendingPull),
		pendingDeletes: make(map[string]int64),
		msgs:           make(chan *protocol.Envelope, 256),
		syncReqs:       make(chan *protocol.Envelope, 16),
		deviceLists:    make(chan protocol.DeviceList, 16),
		connected:      make(chan bool, 4),
		fullSyncCh:     make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
}

// AttachRelay wires the relay connection. Must be called before Start.
func (e *Engine) AttachRelay(relay Relay) {
	e.relayMu.Lock()
	e.relay = relay
	e.relayMu.Unlock()
}

// SetNotifier replaces the no-op notifier.
func (e *Engine) SetNotifier(n Notifier) {
	if n != nil {
		e.notifierMu.Lock()
		e.notifier = n
		e.notifierMu.Unlock()
	}
}

func (e *Engine) notify() Notifier {
	e.notifierMu.Lock()
	defer e.notifierMu.Unlock()
	return e.notifier
}

// Callbacks returns the handlers to register on the relay connection.
// They hand messages to the engine loop without blocking the reader for
// long.
func (e *Engine) Callbacks() relayconn.Callbacks {
	return relayconn.Callbacks{
		OnMessage:     func(env *protocol.Envelope) { e.deliver(e.msgs, env) },
		OnSyncRequest: func(env *protocol.Envelope) { e.deliver(e.syncReqs, env) },
		OnDeviceList: func(list protocol.DeviceList) {
			select {
			case e.deviceLists <- list:
			case <-e.done:
			}
		},
		OnConnectionChange: func(connected bool) {
			select {
			case e.connected <- connected:
			case <-e.done:
			}
		},
	}
}

func (e *Engine) deliver(ch chan *protocol.Envelope, env *protocol.Envelope) {
	select {
	case ch <- env:
	case <-e.done:
	}
}

// Start loads the persisted index, reconciles it against the directory
// contents, and launches the event loop.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.loadIndex(ctx); err != nil {
		return err
	}
	e.wg.Add(1)
	go e.run(ctx)
	return nil
}

// Stop shuts the loop down and waits for it to finish.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.done) })
	e.wg.Wait()
}

// loadIndex reconciles the persisted index with what is actually on
// disk, so edits and deletions made while the client was stopped are
// picked up.
func (e *Engine) loadIndex(ctx context.Context) error {
	persisted, err := e.files.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("error loading file index: %w", err)
	}
	previous := make(map[string]models.FileRecord, len(persisted))
	for _, rec := range persisted {
		previous[rec.Path] = *rec
	}

	entries, err := e.store.List()
	if err != nil {
		return fmt.Errorf("error scanning directory: %w", err)
	}

	now := time.Now().UnixMilli()
	index := make(map[string]models.FileRecord, len(entries))
	for _, entry := range entries {
		mtime := entry.Mtime.UnixMilli()
		if prev, ok := previous[entry.Path]; ok && prev.Mtime == mtime && prev.Size == entry.Size {
			index[entry.Path] = prev
			delete(previous, entry.Path)
			continue
		}
		content, err := e.store.Read(entry.Path)
		if err != nil {
			e.logger.Warn(ctx, "skipping unreadable file", "path", entry.Path, "error", err)
			delete(previous, entry.Path)
			continue
		}
		rec := models.FileRecord{
			Path:  entry.Path,
			Hash:  hashx.Sum(content).String(),
			Mtime: mtime,
			Size:  entry.Size,
		}
		index[entry.Path] = rec
		if err := e.files.Upsert(ctx, &rec); err != nil {
			return fmt.Errorf("error saving file record: %w", err)
		}
		delete(previous, entry.Path)
	}

	// Whatever is left in previous was deleted while we were stopped.
	for path := range previous {
		e.pendingDeletes[path] = now
		if err := e.files.Delete(ctx, path); err != nil {
			return fmt.Errorf("error deleting file record: %w", err)
		}
	}

	e.indexMu.Lock()
	e.index = index
	e.indexMu.Unlock()

	e.logger.Info(ctx, "file index loaded",
		"files", len(index), "offline_deletions", len(e.pendingDeletes))
	return nil
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	var fullSyncTick <-chan time.Time
	if e.opts.FullSyncInterval > 0 {
		ticker := time.NewTicker(e.opts.FullSyncInterval)
		defer ticker.Stop()
		fullSyncTick = ticker.C
	}
	sweep := time.NewTicker(e.opts.PendingSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case ev := <-e.store.Events():
			e.handleStoreEvent(ctx, ev)
		case env := <-e.msgs:
			e.handlePeerMessage(ctx, env)
		case env := <-e.syncReqs:
			e.handleSyncRequest(ctx, env)
		case list := <-e.deviceLists:
			e.handleDeviceList(ctx, list)
		case up := <-e.connected:
			if up {
				e.fullSync(ctx)
			}
		case <-e.fullSyncCh:
			e.fullSync(ctx)
		case <-fullSyncTick:
			e.fullSync(ctx)
		case <-sweep.C:
			e.trust.SweepPending(time.Now())
		case <-e.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) handleStoreEvent(ctx context.Context, ev store.Event) {
	switch ev.Op {
	case store.OpWrite:
		content, err := e.store.Read(ev.Path)
		if err != nil {
			// Gone already; the remove event will follow.
			return
		}
		entry, err := e.store.Stat(ev.Path)
		if err != nil {
			return
		}
		digest := hashx.Sum(content).String()

		e.indexMu.Lock()
		prev, known := e.index[ev.Path]
		if known && prev.Hash == digest {
			// Content unchanged: typically our own remote apply echoed
			// back by the watcher. Keep the recorded mtime.
			e.indexMu.Unlock()
			return
		}
		rec := models.FileRecord{Path: ev.Path, Hash: digest, Mtime: entry.Mtime.UnixMilli(), Size: entry.Size}
		e.index[ev.Path] = rec
		e.indexMu.Unlock()

		if err := e.files.Upsert(ctx, &rec); err != nil {
			e.logger.Error(ctx, "error saving file record", "path", ev.Path, "error", err)
		}
		e.announce(ctx, protocol.TypeFileMeta, protocol.FileMeta{
			Path: rec.Path, Hash: rec.Hash, Mtime: rec.Mtime, Size: rec.Size,
		})

	case store.OpRemove:
		e.indexMu.Lock()
		_, known := e.index[ev.Path]
		delete(e.index, ev.Path)
		e.indexMu.Unlock()
		if !known {
			return
		}
		if err := e.files.Delete(ctx, ev.Path); err != nil {
			e.logger.Error(ctx, "error deleting file record", "path", ev.Path, "error", err)
		}
		e.announce(ctx, protocol.TypeFileDelete, protocol.FileDelete{
			Path: ev.Path, DeletedAt: time.Now().UnixMilli(),
		})
	}
}

// announce sends a message to every trusted peer that is currently
// online. Best effort: offline peers catch up on their next full sync.
func (e *Engine) announce(ctx context.Context, msgType string, payload any) {
	for _, id := range e.trustedOnline(ctx) {
		e.send(msgType, id, payload)
	}
}

func (e *Engine) trustedOnline(ctx context.Context) []string {
	peers, err := e.trust.TrustedPeers(ctx)
	if err != nil {
		e.logger.Error(ctx, "error listing trusted peers", "error", err)
		return nil
	}
	e.presenceMu.RLock()
	defer e.presenceMu.RUnlock()
	var ids []string
	for _, peer := range peers {
		if info, ok := e.online[peer.ID]; ok && info.Online {
			ids = append(ids, peer.ID)
		}
	}
	return ids
}

func (e *Engine) send(msgType, to string, payload any) bool {
	e.relayMu.Lock()
	relay := e.relay
	e.relayMu.Unlock()
	if relay == nil {
		return false
	}
	return relay.Send(msgType, to, payload)
}

func (e *Engine) isConnected() bool {
	e.relayMu.Lock()
	relay := e.relay
	e.relayMu.Unlock()
	return relay != nil && relay.IsConnected()
}

func (e *Engine) handlePeerMessage(ctx context.Context, env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeInviteCreateResponse:
		var resp protocol.InviteCreateResponse
		if err := env.DecodePayload(&resp); err != nil {
			e.logger.Warn(ctx, "dropping invalid message", "type", env.Type, "error", err)
			return
		}
		e.waiterMu.Lock()
		if e.inviteCreateWait != nil {
			e.inviteCreateWait <- resp
			e.inviteCreateWait = nil
		}
		e.waiterMu.Unlock()
		return

	case protocol.TypeInviteRedeemResponse:
		var resp protocol.InviteRedeemResponse
		if err := env.DecodePayload(&resp); err != nil {
			e.logger.Warn(ctx, "dropping invalid message", "type", env.Type, "error", err)
			return
		}
		e.waiterMu.Lock()
		if e.inviteRedeemWait != nil {
			e.inviteRedeemWait <- resp
			e.inviteRedeemWait = nil
		}
		e.waiterMu.Unlock()
		return

	case protocol.TypeSyncAccept:
		e.handleSyncAccept(ctx, env)
		return

	case protocol.TypeSyncDecline:
		e.handleSyncDecline(ctx, env)
		return
	}

	// Everything below carries file data and requires trust.
	if !e.trust.IsTrusted(ctx, env.From) {
		e.logger.Warn(ctx, "dropping message from untrusted device",
			"type", env.Type, "device_id", env.From)
		return
	}

	switch env.Type {
	case protocol.TypeFileMeta:
		var meta protocol.FileMeta
		if err := env.DecodePayload(&meta); err != nil {
			e.logger.Warn(ctx, "dropping invalid message", "type", env.Type, "error", err)
			return
		}
		e.resolveMeta(ctx, env.From, meta)

	case protocol.TypeFileListing:
		var listing protocol.FileListing
		if err := env.DecodePayload(&listing); err != nil {
			e.logger.Warn(ctx, "dropping invalid message", "type", env.Type, "error", err)
			return
		}
		for _, meta := range listing.Files {
			e.resolveMeta(ctx, env.From, meta)
		}

	case protocol.TypeFileListingRequest:
		e.sendListing(ctx, env.From)

	case protocol.TypeFileRequest:
		var req protocol.FileRequest
		if err := env.DecodePayload(&req); err != nil {
			e.logger.Warn(ctx, "dropping invalid message", "type", env.Type, "error", err)
			return
		}
		e.serveFile(ctx, env.From, req.Path)

	case protocol.TypeFileResponse:
		var resp protocol.FileResponse
		if err := env.DecodePayload(&resp); err != nil {
			e.logger.Warn(ctx, "dropping invalid message", "type", env.Type, "error", err)
			return
		}
		e.applyFileResponse(ctx, env.From, resp)

	case protocol.TypeFileDelete:
		var del protocol.FileDelete
		if err := env.DecodePayload(&del); err != nil {
			e.logger.Warn(ctx, "dropping invalid message", "type", env.Type, "error", err)
			return
		}
		e.applyRemoteDelete(ctx, env.From, del)

	default:
		e.logger.Warn(ctx, "dropping unexpected message", "type", env.Type, "device_id", env.From)
	}
}

// resolveMeta is the conflict resolution point: given a peer's version
// of a file, decide whether to pull it. Both sides evaluate the same
// rule, so exactly one of them pulls.
func (e *Engine) resolveMeta(ctx context.Context, from string, meta protocol.FileMeta) {
	if err := store.ValidatePath(meta.Path); err != nil {
		e.logger.Warn(ctx, "dropping announcement with invalid path",
			"device_id", from, "error", err)
		return
	}

	e.indexMu.RLock()
	local, known := e.index[meta.Path]
	e.indexMu.RUnlock()

	if !known {
		e.requestFile(ctx, from, meta)
		return
	}
	if local.Hash == meta.Hash {
		if meta.Mtime > local.Mtime {
			// Same content, newer remote timestamp: adopt it so both
			// sides stop seeing a difference.
			e.indexMu.Lock()
			local.Mtime = meta.Mtime
			e.index[meta.Path] = local
			e.indexMu.Unlock()
			if err := e.files.Upsert(ctx, &local); err != nil {
				e.logger.Error(ctx, "error saving file record", "path", meta.Path, "error", err)
			}
		}
		return
	}
	if meta.Mtime > local.Mtime {
		e.requestFile(ctx, from, meta)
		return
	}
	if meta.Mtime < local.Mtime {
		// Ours is newer; the peer pulls when it sees our announcement.
		return
	}

	// Identical mtimes, different content. Break the tie on the digest
	// order so both devices pick the same winner.
	remote, err := hashx.Parse(meta.Hash)
	if err != nil {
		e.logger.Warn(ctx, "dropping announcement with invalid digest",
			"device_id", from, "error", err)
		return
	}
	mine, err := hashx.Parse(local.Hash)
	if err != nil {
		e.logger.Error(ctx, "local record has invalid digest", "path", meta.Path, "error", err)
		return
	}
	if hashx.Compare(remote, mine) > 0 {
		e.requestFile(ctx, from, meta)
	}
}

func (e *Engine) requestFile(ctx context.Context, from string, meta protocol.FileMeta) {
	e.pendingPulls[meta.Path] = pendingPull{meta: meta, from: from}
	if !e.send(protocol.TypeFileRequest, from, protocol.FileRequest{Path: meta.Path}) {
		e.logger.Debug(ctx, "file request not sent", "path", meta.Path, "device_id", from)
	}
}

func (e *Engine) serveFile(ctx context.Context, from, path string) {
	if err := store.ValidatePath(path); err != nil {
		e.logger.Warn(ctx, "dropping request with invalid path", "device_id", from, "error", err)
		return
	}
	content, err := e.store.Read(path)
	if err != nil {
		e.logger.Warn(ctx, "requested file unavailable", "path", path, "device_id", from, "error", err)
		return
	}
	bundle, err := e.box.Encrypt(content)
	if err != nil {
		e.logger.Error(ctx, "encryption failed", "path", path, "error", err)
		return
	}
	e.send(protocol.TypeFileResponse, from, protocol.FileResponse{
		Path:    path,
		Content: bundle,
		Hash:    hashx.Sum(content).String(),
	})
}

func (e *Engine) applyFileResponse(ctx context.Context, from string, resp protocol.FileResponse) {
	if err := store.ValidatePath(resp.Path); err != nil {
		e.logger.Warn(ctx, "dropping response with invalid path", "device_id", from, "error", err)
		return
	}

	pull, ok := e.pendingPulls[resp.Path]
	if !ok || pull.from != from {
		// Content we never asked for. A peer cannot push files at us.
		e.logger.Warn(ctx, "dropping unsolicited file content",
			"path", resp.Path, "device_id", from)
		return
	}
	delete(e.pendingPulls, resp.Path)

	if resp.Hash != pull.meta.Hash {
		// File changed on the peer between announcement and response;
		// a fresh announcement for the new version is on its way.
		e.logger.Debug(ctx, "stale file response", "path", resp.Path, "device_id", from)
		return
	}

	plaintext, err := e.box.Decrypt(resp.Content)
	if err != nil {
		e.logger.Error(ctx, "decryption failed, passphrases may differ",
			"path", resp.Path, "device_id", from, "error", err)
		e.notify().Notice("could not decrypt %s from %s: check that both devices use the same passphrase", resp.Path, from)
		return
	}
	if hashx.Sum(plaintext).String() != resp.Hash {
		e.logger.Error(ctx, "content digest mismatch after decryption",
			"path", resp.Path, "device_id", from)
		return
	}

	mtime := time.UnixMilli(pull.meta.Mtime)
	if err := e.store.Write(resp.Path, plaintext, mtime); err != nil {
		e.logger.Error(ctx, "error writing synced file", "path", resp.Path, "error", err)
		return
	}

	rec := models.FileRecord{
		Path:  resp.Path,
		Hash:  resp.Hash,
		Mtime: pull.meta.Mtime,
		Size:  int64(len(plaintext)),
	}
	e.indexMu.Lock()
	e.index[resp.Path] = rec
	e.indexMu.Unlock()
	if err := e.files.Upsert(ctx, &rec); err != nil {
		e.logger.Error(ctx, "error saving file record", "path", resp.Path, "error", err)
	}
	e.logger.Info(ctx, "file synced", "path", resp.Path, "device_id", from)
}

func (e *Engine) applyRemoteDelete(ctx context.Context, from string, del protocol.FileDelete) {
	if err := store.ValidatePath(del.Path); err != nil {
		e.logger.Warn(ctx, "dropping delete with invalid path", "device_id", from, "error", err)
		return
	}

	e.indexMu.RLock()
	local, known := e.index[del.Path]
	e.indexMu.RUnlock()
	if !known {
		return
	}
	if del.DeletedAt <= local.Mtime {
		// Our version is newer than the deletion; keep the file. The
		// peer pulls it back when it sees our announcement.
		return
	}

	e.indexMu.Lock()
	delete(e.index, del.Path)
	e.indexMu.Unlock()
	if err := e.files.Delete(ctx, del.Path); err != nil {
		e.logger.Error(ctx, "error deleting file record", "path", del.Path, "error", err)
	}
	if err := e.store.Remove(del.Path); err != nil {
		e.logger.Error(ctx, "error removing file", "path", del.Path, "error", err)
		return
	}
	e.logger.Info(ctx, "file deleted by peer", "path", del.Path, "device_id", from)
}

func (e *Engine) handleSyncRequest(ctx context.Context, env *protocol.Envelope) {
	var req protocol.SyncRequest
	if err := env.DecodePayload(&req); err != nil {
		e.logger.Warn(ctx, "dropping invalid message", "type", env.Type, "error", err)
		return
	}

	// The relay stamps From; the payload's device id is untrusted.
	pending := models.PendingSyncRequest{
		RequestID:  req.RequestID,
		DeviceID:   env.From,
		DeviceName: req.DeviceName,
		IssuedAt:   time.Now(),
	}
	if e.trust.QueuePending(ctx, pending) {
		e.logger.Info(ctx, "sync request received",
			"device_id", pending.DeviceID, "device", pending.DeviceName)
		e.notify().SyncRequestReceived(pending)
	}
}

func (e *Engine) handleSyncAccept(ctx context.Context, env *protocol.Envelope) {
	var acc protocol.SyncAccept
	if err := env.DecodePayload(&acc); err != nil {
		e.logger.Warn(ctx, "dropping invalid message", "type", env.Type, "error", err)
		return
	}

	e.outboundMu.Lock()
	_, ours := e.outbound[acc.RequestID]
	delete(e.outbound, acc.RequestID)
	e.outboundMu.Unlock()
	if !ours {
		e.logger.Warn(ctx, "dropping acceptance for unknown request",
			"request_id", acc.RequestID, "device_id", env.From)
		return
	}

	if err := e.trust.Add(ctx, env.From, acc.DeviceName, true); err != nil {
		e.logger.Error(ctx, "error recording trust", "device_id", env.From, "error", err)
		return
	}
	e.logger.Info(ctx, "trust established", "device_id", env.From, "device", acc.DeviceName)
	e.notify().Notice("device %s accepted the sync request", acc.DeviceName)
	e.ForceFullSync()
}

func (e *Engine) handleSyncDecline(ctx context.Context, env *protocol.Envelope) {
	var dec protocol.SyncDecline
	if err := env.DecodePayload(&dec); err != nil {
		e.logger.Warn(ctx, "dropping invalid message", "type", env.Type, "error", err)
		return
	}

	e.outboundMu.Lock()
	_, ours := e.outbound[dec.RequestID]
	delete(e.outbound, dec.RequestID)
	e.outboundMu.Unlock()
	if ours {
		e.notify().Notice("sync request was declined")
	}
}

func (e *Engine) handleDeviceList(ctx context.Context, list protocol.DeviceList) {
	cameOnline := make([]string, 0, 1)

	e.presenceMu.Lock()
	previous := e.online
	online := make(map[string]protocol.DeviceInfo, len(list.Devices))
	for _, dev := range list.Devices {
		if dev.ID == e.opts.DeviceID {
			continue
		}
		online[dev.ID] = dev
		if prev, ok := previous[dev.ID]; dev.Online && (!ok || !prev.Online) {
			cameOnline = append(cameOnline, dev.ID)
		}
	}
	e.online = online
	e.presenceMu.Unlock()

	// A trusted peer appearing means it may hold changes made while it
	// was away; run a full sync to exchange state.
	for _, id := range cameOnline {
		if e.trust.IsTrusted(ctx, id) {
			e.ForceFullSync()
			break
		}
	}
}

// fullSync exchanges complete file listings with every trusted online
// peer. A second trigger while one is being prepared is a no-op.
func (e *Engine) fullSync(ctx context.Context) {
	if !e.isConnected() {
		return
	}
	if !e.syncing.CompareAndSwap(false, true) {
		return
	}
	defer e.syncing.Store(false)

	targets := e.trustedOnline(ctx)
	if len(targets) == 0 {
		return
	}

	// Deletions that happened while we were stopped go out first, so a
	// peer does not re-announce a file we are about to tell it to drop.
	for path, deletedAt := range e.pendingDeletes {
		for _, id := range targets {
			e.send(protocol.TypeFileDelete, id, protocol.FileDelete{Path: path, DeletedAt: deletedAt})
		}
		delete(e.pendingDeletes, path)
	}

	e.indexMu.RLock()
	listing := make([]protocol.FileMeta, 0, len(e.index))
	for _, rec := range e.index {
		listing = append(listing, protocol.FileMeta{
			Path: rec.Path, Hash: rec.Hash, Mtime: rec.Mtime, Size: rec.Size,
		})
	}
	e.indexMu.RUnlock()

	for _, id := range targets {
		e.send(protocol.TypeFileListing, id, protocol.FileListing{Files: listing})
		e.send(protocol.TypeFileListingRequest, id, protocol.FileListingRequest{})
	}
	e.logger.Info(ctx, "full sync started", "peers", len(targets), "files", len(listing))
}

func (e *Engine) sendListing(ctx context.Context, to string) {
	e.indexMu.RLock()
	listing := make([]protocol.FileMeta, 0, len(e.index))
	for _, rec := range e.index {
		listing = append(listing, protocol.FileMeta{
			Path: rec.Path, Hash: rec.Hash, Mtime: rec.Mtime, Size: rec.Size,
		})
	}
	e.indexMu.RUnlock()
	e.send(protocol.TypeFileListing, to, protocol.FileListing{Files: listing})
}

// ForceFullSync schedules a full sync on the engine loop. Returns
// immediately; a sync already queued or running absorbs the call.
func (e *Engine) ForceFullSync() {
	select {
	case e.fullSyncCh <- struct{}{}:
	default:
	}
}

// GenerateInvitationKey creates a key, registers it with the relay and
// returns it for out-of-band delivery to the joining device.
func (e *Engine) GenerateInvitationKey(ctx context.Context) (string, error) {
	if !e.isConnected() {
		return "", common.ErrNotConnected
	}
	key, err := common.MakeInvitationKey()
	if err != nil {
		return "", err
	}

	wait := make(chan protocol.InviteCreateResponse, 1)
	e.waiterMu.Lock()
	e.inviteCreateWait = wait
	e.waiterMu.Unlock()

	if !e.send(protocol.TypeInviteCreate, "", protocol.InviteCreate{
		Key:        key,
		TTLSeconds: int64(common.InvitationKeyTTL.Seconds()),
	}) {
		return "", common.ErrNotConnected
	}

	select {
	case resp := <-wait:
		if !resp.Success {
			return "", fmt.Errorf("relay rejected invitation key: %s", resp.Message)
		}
		return key, nil
	case <-time.After(responseTimeout):
		return "", errors.New("relay did not confirm invitation key")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// UseInvitationKey redeems a key obtained from another device, which
// asks the relay to deliver a sync request to the key's issuer. Trust
// is recorded only when the issuer accepts.
func (e *Engine) UseInvitationKey(ctx context.Context, key string) error {
	key = strings.ToUpper(strings.TrimSpace(key))
	if len(key) < common.InvitationKeyMinLength {
		return common.ErrInvalidInvitationKey
	}
	if !e.isConnected() {
		return common.ErrNotConnected
	}

	requestID := uuid.NewString()
	e.outboundMu.Lock()
	e.outbound[requestID] = struct{}{}
	e.outboundMu.Unlock()

	wait := make(chan protocol.InviteRedeemResponse, 1)
	e.waiterMu.Lock()
	e.inviteRedeemWait = wait
	e.waiterMu.Unlock()

	if !e.send(protocol.TypeInviteRedeem, "", protocol.InviteRedeem{
		Key:        key,
		RequestID:  requestID,
		DeviceName: e.opts.DeviceName,
	}) {
		return common.ErrNotConnected
	}

	select {
	case resp := <-wait:
		if !resp.Success {
			return fmt.Errorf("%w: %s", common.ErrInvalidInvitationKey, resp.Message)
		}
		return nil
	case <-time.After(responseTimeout):
		return errors.New("relay did not answer the redemption")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RespondToSyncRequest resolves a queued trust request. On acceptance
// the device is recorded as trusted (session-scoped unless persistent)
// and told so; a full sync follows. Declines notify the requester and
// record nothing.
func (e *Engine) RespondToSyncRequest(ctx context.Context, requestID string, accept, persistent bool) error {
	if !e.isConnected() {
		return common.ErrNotConnected
	}
	req, ok := e.trust.TakePending(requestID)
	if !ok {
		return common.ErrNotFound
	}

	if !accept {
		e.send(protocol.TypeSyncDecline, req.DeviceID, protocol.SyncDecline{RequestID: requestID})
		e.logger.Info(ctx, "sync request declined", "device_id", req.DeviceID)
		return nil
	}

	if err := e.trust.Add(ctx, req.DeviceID, req.DeviceName, persistent); err != nil {
		return err
	}
	e.send(protocol.TypeSyncAccept, req.DeviceID, protocol.SyncAccept{
		RequestID:  requestID,
		DeviceID:   e.opts.DeviceID,
		DeviceName: e.opts.DeviceName,
	})
	e.logger.Info(ctx, "sync request accepted",
		"device_id", req.DeviceID, "persistent", persistent)
	e.ForceFullSync()
	return nil
}

// RevokeTrust removes a device from the trusted set. Applies to new
// messages immediately; the device is not notified.
func (e *Engine) RevokeTrust(ctx context.Context, deviceID string) error {
	return e.trust.Revoke(ctx, deviceID)
}

// TrustedDevices lists the current trust grants.
func (e *Engine) TrustedDevices(ctx context.Context) ([]*models.Peer, error) {
	return e.trust.TrustedPeers(ctx)
}

// PendingSyncRequests lists trust requests awaiting a decision.
func (e *Engine) PendingSyncRequests() []models.PendingSyncRequest {
	return e.trust.PendingRequests()
}

// OnlineDevices returns the relay's latest presence snapshot, excluding
// this device.
func (e *Engine) OnlineDevices() []protocol.DeviceInfo {
	e.presenceMu.RLock()
	defer e.presenceMu.RUnlock()
	devices := make([]protocol.DeviceInfo, 0, len(e.online))
	for _, dev := range e.online {
		devices = append(devices, dev)
	}
	return devices
}

// FileCount reports the number of files in the index.
func (e *Engine) FileCount() int {
	e.indexMu.RLock()
	defer e.indexMu.RUnlock()
	return len(e.index)
}

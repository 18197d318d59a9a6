package engine

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dmarkelov/notesync/internal/client/models"
	"github.com/dmarkelov/notesync/internal/client/relayconn"
	"github.com/dmarkelov/notesync/internal/client/repositories/files"
	"github.com/dmarkelov/notesync/internal/client/repositories/peers"
	"github.com/dmarkelov/notesync/internal/client/store"
	"github.com/dmarkelov/notesync/internal/client/trust"
	"github.com/dmarkelov/notesync/internal/cryptox"
	"github.com/dmarkelov/notesync/internal/hashx"
	"github.com/dmarkelov/notesync/internal/logging"
	relaycfg "github.com/dmarkelov/notesync/internal/relay/config"
	relaydb "github.com/dmarkelov/notesync/internal/relay/db"
	"github.com/dmarkelov/notesync/internal/relay/server"
	"github.com/dmarkelov/notesync/internal/transport"
)

// The tests below run two complete client stacks against the real relay
// server over the in-memory transport: pairing through an invitation
// key, then file propagation in both directions, edits, deletions and
// concurrent-edit convergence.

func startRelayServer(t *testing.T) *transport.MemoryNetwork {
	t.Helper()

	network := transport.NewMemoryNetwork()
	listener, err := network.Listen("relay")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	cfg := &relaycfg.Config{}
	cfg.LoadDefaults()
	cfg.SweepInterval = time.Hour

	srv := server.NewServer(listener, logging.NewNopLogger(), relaydb.NewInMemoryRepositoryManager(), cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return network
}

// promptRecorder implements Notifier and hands incoming trust prompts
// to the test over a channel.
type promptRecorder struct {
	requests chan string
}

func (p *promptRecorder) Notice(format string, args ...any) {}

func (p *promptRecorder) SyncRequestReceived(req models.PendingSyncRequest) {
	select {
	case p.requests <- req.RequestID:
	default:
	}
}

type syncDevice struct {
	id    string
	store *store.MemStore
	eng   *Engine
	conn  *relayconn.Connection
	notes *promptRecorder
}

func startDevice(t *testing.T, network *transport.MemoryNetwork, id, name, passphrase string) *syncDevice {
	t.Helper()

	box, err := cryptox.NewBox([]byte(passphrase))
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}
	logger := logging.NewNopLogger()
	trustStore := trust.NewStore(peers.NewInMemoryRepository(), logger)
	memStore := store.NewMemStore(nil)

	eng := New(Options{DeviceID: id, DeviceName: name}, box, trustStore,
		memStore, files.NewInMemoryRepository(), logger)

	conn := relayconn.New(relayconn.Options{
		Address:    "relay",
		DeviceID:   id,
		DeviceName: name,
		Dialer:     network.Dialer(),
		Logger:     logger,
		BackoffMin: 20 * time.Millisecond,
		BackoffMax: 100 * time.Millisecond,
	}, eng.Callbacks())

	notes := &promptRecorder{requests: make(chan string, 4)}
	eng.AttachRelay(conn)
	eng.SetNotifier(notes)

	ctx, cancel := context.WithCancel(context.Background())
	if err := eng.Start(ctx); err != nil {
		cancel()
		t.Fatalf("engine start: %v", err)
	}
	conn.Start(ctx)
	t.Cleanup(func() {
		conn.Close()
		eng.Stop()
		cancel()
		memStore.Close()
	})

	dev := &syncDevice{id: id, store: memStore, eng: eng, conn: conn, notes: notes}
	eventually(t, "connect "+id, func() bool { return conn.IsConnected() })
	return dev
}

// pair runs the invitation flow: issuer generates a key, joiner redeems
// it, the issuer accepts the resulting trust request.
func pair(t *testing.T, issuer, joiner *syncDevice) {
	t.Helper()
	ctx := context.Background()

	key, err := issuer.eng.GenerateInvitationKey(ctx)
	if err != nil {
		t.Fatalf("GenerateInvitationKey: %v", err)
	}
	if err := joiner.eng.UseInvitationKey(ctx, key); err != nil {
		t.Fatalf("UseInvitationKey: %v", err)
	}

	var requestID string
	select {
	case requestID = <-issuer.notes.requests:
	case <-time.After(5 * time.Second):
		t.Fatal("issuer never received the trust request")
	}
	if err := issuer.eng.RespondToSyncRequest(ctx, requestID, true, true); err != nil {
		t.Fatalf("RespondToSyncRequest: %v", err)
	}

	eventually(t, "mutual trust", func() bool {
		a, _ := issuer.eng.TrustedDevices(ctx)
		b, _ := joiner.eng.TrustedDevices(ctx)
		return len(a) == 1 && len(b) == 1
	})
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func hasContent(dev *syncDevice, path string, want []byte) func() bool {
	return func() bool {
		got, err := dev.store.Read(path)
		return err == nil && bytes.Equal(got, want)
	}
}

func isGone(dev *syncDevice, path string) func() bool {
	return func() bool {
		_, err := dev.store.Read(path)
		return err != nil
	}
}

func TestTwoDeviceSync(t *testing.T) {
	network := startRelayServer(t)

	devA := startDevice(t, network, "dev-a", "laptop", "orchard tango")

	// Files that exist before the devices are ever paired must flow
	// across during the first full sync.
	preexisting := []byte("# kept from before pairing\n")
	if err := devA.store.Write("notes/old.md", preexisting, time.UnixMilli(1000)); err != nil {
		t.Fatalf("seed write: %v", err)
	}

	devB := startDevice(t, network, "dev-b", "phone", "orchard tango")

	onB := []byte("phone-side note\n")
	if err := devB.store.Write("inbox.md", onB, time.UnixMilli(2000)); err != nil {
		t.Fatalf("seed write: %v", err)
	}

	pair(t, devA, devB)

	eventually(t, "initial sync to phone", hasContent(devB, "notes/old.md", preexisting))
	eventually(t, "initial sync to laptop", hasContent(devA, "inbox.md", onB))

	// An ongoing edit propagates without a full sync.
	edited := []byte("# kept from before pairing\n\nwith an addendum\n")
	if err := devA.store.Write("notes/old.md", edited, time.UnixMilli(5000)); err != nil {
		t.Fatalf("edit write: %v", err)
	}
	eventually(t, "edit to reach phone", hasContent(devB, "notes/old.md", edited))

	// So does a deletion.
	if err := devA.store.Remove("inbox.md"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	eventually(t, "deletion to reach phone", isGone(devB, "inbox.md"))
}

type fileState struct {
	content string
	mtime   int64
}

func snapshotFiles(t *testing.T, dev *syncDevice) map[string]fileState {
	t.Helper()
	entries, err := dev.store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	snap := make(map[string]fileState, len(entries))
	for _, entry := range entries {
		content, err := dev.store.Read(entry.Path)
		if err != nil {
			t.Fatalf("Read %s: %v", entry.Path, err)
		}
		snap[entry.Path] = fileState{content: string(content), mtime: entry.Mtime.UnixMilli()}
	}
	return snap
}

func assertSnapshot(t *testing.T, id string, got, want map[string]fileState) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s holds %d files, want %d", id, len(got), len(want))
	}
	for path, state := range want {
		cur, ok := got[path]
		if !ok {
			t.Fatalf("%s lost %s", id, path)
		}
		if cur.content != state.content {
			t.Fatalf("%s: content of %s changed", id, path)
		}
		if cur.mtime != state.mtime {
			t.Fatalf("%s: mtime of %s changed from %d to %d", id, path, state.mtime, cur.mtime)
		}
	}
}

// Once two devices agree, further full syncs must be pure no-ops: no
// file content rewritten, no mtime touched. New files still spread.
func TestRepeatedFullSyncIsIdempotent(t *testing.T) {
	network := startRelayServer(t)

	devA := startDevice(t, network, "dev-a", "laptop", "orchard tango")
	devB := startDevice(t, network, "dev-b", "phone", "orchard tango")

	first := []byte("first note\n")
	second := []byte("second note\n")
	if err := devA.store.Write("test1.md", first, time.UnixMilli(1000)); err != nil {
		t.Fatalf("seed write: %v", err)
	}
	if err := devB.store.Write("notes/test2.md", second, time.UnixMilli(2000)); err != nil {
		t.Fatalf("seed write: %v", err)
	}

	pair(t, devA, devB)
	eventually(t, "laptop file to reach phone", hasContent(devB, "test1.md", first))
	eventually(t, "phone file to reach laptop", hasContent(devA, "notes/test2.md", second))

	snapA := snapshotFiles(t, devA)
	snapB := snapshotFiles(t, devB)

	for i := 0; i < 2; i++ {
		devA.eng.ForceFullSync()
		devB.eng.ForceFullSync()
		time.Sleep(300 * time.Millisecond)
	}

	assertSnapshot(t, devA.id, snapshotFiles(t, devA), snapA)
	assertSnapshot(t, devB.id, snapshotFiles(t, devB), snapB)

	// A file created after the no-op rounds still propagates, while the
	// settled files stay untouched.
	third := []byte("third note\n")
	if err := devA.store.Write("test3.md", third, time.UnixMilli(9000)); err != nil {
		t.Fatalf("write: %v", err)
	}
	eventually(t, "new file to reach phone", hasContent(devB, "test3.md", third))

	final := snapshotFiles(t, devB)
	delete(final, "test3.md")
	assertSnapshot(t, devB.id, final, snapB)
}

func TestTwoDeviceConflictConvergence(t *testing.T) {
	network := startRelayServer(t)

	devA := startDevice(t, network, "dev-a", "laptop", "orchard tango")
	devB := startDevice(t, network, "dev-b", "phone", "orchard tango")
	pair(t, devA, devB)

	// Same path, same timestamp, different content on both sides. The
	// larger content digest must win on both devices.
	versionA := []byte("version written on the laptop\n")
	versionB := []byte("version written on the phone\n")
	winner := versionA
	if hashx.Compare(hashx.Sum(versionB), hashx.Sum(versionA)) > 0 {
		winner = versionB
	}

	mtime := time.UnixMilli(9000)
	if err := devA.store.Write("draft.md", versionA, mtime); err != nil {
		t.Fatalf("write A: %v", err)
	}
	if err := devB.store.Write("draft.md", versionB, mtime); err != nil {
		t.Fatalf("write B: %v", err)
	}

	eventually(t, "laptop to converge", hasContent(devA, "draft.md", winner))
	eventually(t, "phone to converge", hasContent(devB, "draft.md", winner))
}

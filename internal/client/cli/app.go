// Package cli wires the client components together and exposes them
// through an interactive command loop.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dmarkelov/notesync/internal/client/config"
	"github.com/dmarkelov/notesync/internal/client/db"
	"github.com/dmarkelov/notesync/internal/client/engine"
	"github.com/dmarkelov/notesync/internal/client/identity"
	"github.com/dmarkelov/notesync/internal/client/models"
	"github.com/dmarkelov/notesync/internal/client/relayconn"
	"github.com/dmarkelov/notesync/internal/client/repositories/settings"
	"github.com/dmarkelov/notesync/internal/client/store"
	"github.com/dmarkelov/notesync/internal/client/trust"
	"github.com/dmarkelov/notesync/internal/common"
	"github.com/dmarkelov/notesync/internal/cryptox"
	"github.com/dmarkelov/notesync/internal/logging"
	"github.com/dmarkelov/notesync/internal/transport"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	repos    db.RepositoryManager
	store    *store.DirStore
	engine   *engine.Engine
	conn     *relayconn.Connection
	identity *identity.Identity
	reader   *bufio.Reader

	ignorePatterns []string
}

// ignorePatternsKey is the settings row holding patterns added with the
// 'ignore' command, as a JSON array. Patterns from the config file are
// merged in at startup but never written back.
const ignorePatternsKey = "ignore_patterns"

func loadIgnorePatterns(ctx context.Context, repo settings.Repository) ([]string, error) {
	raw, err := repo.Get(ctx, ignorePatternsKey)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var patterns []string
	if err := json.Unmarshal([]byte(raw), &patterns); err != nil {
		return nil, fmt.Errorf("error reading stored ignore patterns: %w", err)
	}
	return patterns, nil
}

func mergePatterns(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	merged := make([]string, 0, len(base)+len(extra))
	for _, p := range append(append([]string{}, base...), extra...) {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		merged = append(merged, p)
	}
	return merged
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewTextLogger(os.Stderr, slog.LevelWarn)

	var repos db.RepositoryManager
	if cfg.DatabasePath == "" {
		repos = db.NewInMemoryRepositoryManager()
	} else {
		var err error
		repos, err = db.NewSqliteRepositoryManager(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("error initializing database: %w", err)
		}
	}

	ident, err := identity.Load(ctx, repos.Settings(), cfg.DeviceName)
	if err != nil {
		repos.Close()
		return nil, err
	}

	passphrase, err := GetPassphrase(os.Stdout)
	if err != nil {
		repos.Close()
		return nil, err
	}
	box, err := cryptox.NewBox(passphrase)
	for i := range passphrase {
		passphrase[i] = 0
	}
	if err != nil {
		repos.Close()
		return nil, fmt.Errorf("error preparing encryption: %w", err)
	}

	trustStore := trust.NewStore(repos.Peers(), logger)
	if err := trustStore.PurgeSessionGrants(ctx); err != nil {
		repos.Close()
		return nil, err
	}

	stored, err := loadIgnorePatterns(ctx, repos.Settings())
	if err != nil {
		repos.Close()
		return nil, err
	}
	patterns := mergePatterns(cfg.IgnorePatterns, stored)

	dirStore, err := store.NewDirStore(cfg.VaultDir, patterns, logger)
	if err != nil {
		repos.Close()
		return nil, err
	}

	eng := engine.New(engine.Options{
		DeviceID:         ident.DeviceID,
		DeviceName:       ident.DeviceName,
		FullSyncInterval: cfg.FullSyncInterval,
	}, box, trustStore, dirStore, repos.Files(), logger)

	conn := relayconn.New(relayconn.Options{
		Address:      cfg.RelayAddr,
		DeviceID:     ident.DeviceID,
		DeviceName:   ident.DeviceName,
		SessionToken: identity.SessionToken(ctx, repos.Settings()),
		OnSessionToken: func(token string) {
			if err := identity.SaveSessionToken(context.Background(), repos.Settings(), token); err != nil {
				logger.Error(context.Background(), "error saving session token", "error", err)
			}
		},
		Dialer:       &transport.TCPDialer{},
		Logger:       logger,
		PingInterval: cfg.PingInterval,
		BackoffMin:   cfg.ReconnectMin,
		BackoffMax:   cfg.ReconnectMax,
	}, eng.Callbacks())

	eng.AttachRelay(conn)

	app := &App{
		config:         cfg,
		logger:         logger,
		repos:          repos,
		store:          dirStore,
		engine:         eng,
		conn:           conn,
		identity:       ident,
		reader:         bufio.NewReader(os.Stdin),
		ignorePatterns: patterns,
	}
	eng.SetNotifier(app)
	return app, nil
}

// Run starts the engine and the relay connection, then drops into the
// command loop until the user exits.
func (a *App) Run(ctx context.Context) error {
	if err := a.engine.Start(ctx); err != nil {
		return err
	}
	a.conn.Start(ctx)

	fmt.Printf("notesync: device %q syncing %s via %s (type 'help' for commands)\n",
		a.identity.DeviceName, a.config.VaultDir, a.config.RelayAddr)

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)

	a.conn.Close()
	a.engine.Stop()
	a.store.Close()
	return a.repos.Close()
}

func (a *App) getStatus() string {
	return fmt.Sprintf("(%s %s)", a.identity.DeviceName, a.conn.State())
}

// Notice implements engine.Notifier.
func (a *App) Notice(format string, args ...any) {
	printlnFn(fmt.Sprintf(format, args...))
}

// SyncRequestReceived implements engine.Notifier.
func (a *App) SyncRequestReceived(req models.PendingSyncRequest) {
	printlnFn(fmt.Sprintf("device %q (%s) asks to sync with you", req.DeviceName, req.DeviceID))
	printlnFn(fmt.Sprintf("run 'accept %s' or 'decline %s' to answer", req.RequestID, req.RequestID))
}

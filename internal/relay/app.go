// Package relay initializes and runs the relay application: storage
// backend selection, signal handling and the server loop.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmarkelov/notesync/internal/logging"
	"github.com/dmarkelov/notesync/internal/relay/config"
	"github.com/dmarkelov/notesync/internal/relay/db"
	"github.com/dmarkelov/notesync/internal/relay/server"
	"github.com/dmarkelov/notesync/internal/transport"
)

type App struct {
	config *config.Config
	logger logging.Logger
	repos  db.RepositoryManager
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)

	var repos db.RepositoryManager
	var err error
	if c.DatabaseDSN == "" {
		logger.Info(ctx, "no database DSN configured, using in-memory storage")
		repos = db.NewInMemoryRepositoryManager()
	} else {
		repos, err = db.NewPostgresRepositoryManager(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
	}

	return &App{config: c, logger: logger, repos: repos}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startServer(ctx context.Context, cancelFunc context.CancelFunc) {
	listener, err := transport.NewTCPListener(app.config.EndpointAddr)
	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return
	}

	s := server.NewServer(listener, app.logger, app.repos, app.config)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting relay...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startServer(ctx, cancelFunc)
	}()
	wg.Wait()

	if err := app.repos.Close(context.Background()); err != nil {
		app.logger.Error(ctx, "closing storage", "error", err)
	}
}

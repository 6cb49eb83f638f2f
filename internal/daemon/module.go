package daemon

import (
	"context"

	"github.com/otaviofr/convo/internal/backend"
	"github.com/otaviofr/convo/internal/bus"
	"github.com/otaviofr/convo/internal/directory"
	"github.com/otaviofr/convo/internal/friends"
	"github.com/otaviofr/convo/internal/index"
	"github.com/otaviofr/convo/internal/ingest"
	"github.com/otaviofr/convo/internal/lock"
	"github.com/otaviofr/convo/internal/logging"
	"github.com/otaviofr/convo/internal/provision"
	"github.com/otaviofr/convo/internal/session"
	"github.com/otaviofr/convo/internal/status"
	"github.com/otaviofr/convo/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	UserID      string
	BackendURL  string
	StreamURL   string
	DebugAddr   string // optional; empty = debug server disabled
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideSession,
			provideBackendClient,
			provideStream,
			provideIndex,
			provideIngestor,
			provideDirectory,
			provideCoordinator,
			provideProvisioner,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideSession(p Params) (*session.Session, error) {
	return session.New(p.SessionName, p.UserID)
}

func provideBackendClient(p Params) backend.Client {
	return backend.NewHTTPClient(p.BackendURL)
}

func provideStream(p Params, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *backend.Stream {
	return backend.NewStream(p.StreamURL, b, machine, logger)
}

func provideIndex(p Params, b *bus.Bus) *index.Index {
	return index.New(p.UserID, b)
}

func provideIngestor(p Params, idx *index.Index, client backend.Client, db *store.DB, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *ingest.Ingestor {
	return ingest.New(idx, client, db, b, machine, logger, p.UserID)
}

func provideDirectory(client backend.Client, db *store.DB, logger *zap.Logger) *directory.Directory {
	return directory.New(client, db, logger)
}

func provideCoordinator(p Params, db *store.DB, client backend.Client, b *bus.Bus, logger *zap.Logger) *friends.Coordinator {
	return friends.New(db, client, b, logger, p.UserID)
}

func provideProvisioner(p Params, client backend.Client, idx *index.Index, db *store.DB, logger *zap.Logger) *provision.Provisioner {
	return provision.New(client, idx, db, logger, p.UserID)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, sess *session.Session, stream *backend.Stream, ingestor *ingest.Ingestor, machine *status.Machine, logger *zap.Logger, db *store.DB) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The ingestor must be listening before the stream can
			// deliver its first event.
			ingestor.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("debug server error", zap.Error(err))
				}
			}()

			if sess.LoggedIn() {
				go func() {
					if err := ingestor.ColdStart(context.Background()); err != nil {
						logger.Warn("cold start resync failed, serving cached state", zap.Error(err))
					}
				}()
				stream.Start(context.Background())
			} else {
				logger.Info("no user id configured, auth required")
				_ = machine.Transition(status.AuthRequired)
			}

			return nil
		},
		OnStop: func(ctx context.Context) error {
			stream.Stop()
			ingestor.Stop()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

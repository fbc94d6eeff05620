package daemon

import (
	"context"

	"github.com/matheus3301/wpphook/internal/archive"
	"github.com/matheus3301/wpphook/internal/bus"
	"github.com/matheus3301/wpphook/internal/httpapi"
	"github.com/matheus3301/wpphook/internal/lock"
	"github.com/matheus3301/wpphook/internal/logging"
	"github.com/matheus3301/wpphook/internal/manager"
	"github.com/matheus3301/wpphook/internal/notify"
	"github.com/matheus3301/wpphook/internal/session"
	"github.com/matheus3301/wpphook/internal/status"
	"github.com/matheus3301/wpphook/internal/store"
	"github.com/matheus3301/wpphook/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved daemon configuration passed to the fx module.
type Params struct {
	SessionName string
	ListenAddr  string
	WebhookURL  string
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
			provideArchive,
			provideNotifier,
			provideDialer,
			provideManager,
			provideAPIServer,
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
	l, err := lock.Acquire(session.LockPath(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
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

func provideArchive() *archive.Archive {
	return archive.New()
}

func provideNotifier(p Params, b *bus.Bus, logger *zap.Logger) *notify.Notifier {
	if p.WebhookURL == "" {
		logger.Info("no webhook URL configured, webhook delivery disabled")
	} else {
		logger.Info("webhook delivery enabled", zap.String("url", p.WebhookURL))
	}
	return notify.New(b, p.WebhookURL, logger)
}

func provideDialer(p Params, logger *zap.Logger) *wa.Dialer {
	return wa.NewDialer(session.SessionDBPath(p.SessionName), logger)
}

func provideManager(d *wa.Dialer, db *store.DB, a *archive.Archive, n *notify.Notifier, m *status.Machine, logger *zap.Logger) *manager.Manager {
	return manager.New(d, db, a, n, m, logger)
}

func provideAPIServer(mgr *manager.Manager, b *bus.Bus, logger *zap.Logger) *httpapi.Server {
	return httpapi.NewServer(mgr, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, mgr *manager.Manager, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			mgr.Start()

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("HTTP server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			mgr.Stop()
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

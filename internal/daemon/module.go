package daemon

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/config"
	"github.com/matheus3301/wppbridge/internal/ledger"
	"github.com/matheus3301/wppbridge/internal/lock"
	"github.com/matheus3301/wppbridge/internal/logging"
	"github.com/matheus3301/wppbridge/internal/registry"
	"github.com/matheus3301/wppbridge/internal/session"
	"github.com/matheus3301/wppbridge/internal/wa"
	"github.com/matheus3301/wppbridge/internal/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the command-line overrides passed to the fx module.
type Params struct {
	ConfigPath string // empty = <data dir>/config.toml
	DataDir    string // empty = config value or ~/.wppbridge
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			providePaths,
			provideLogger,
			provideBus,
			provideLock,
			provideLedger,
			provideNotifier,
			provideRegistry,
			provideAPI,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		root := p.DataDir
		if root == "" {
			root = config.DefaultDataDir()
		}
		path = session.Paths{Root: root}.ConfigFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if p.DataDir != "" {
		cfg.DataDir = p.DataDir
	}
	return cfg, nil
}

func providePaths(cfg *config.Config) session.Paths {
	return session.Paths{Root: cfg.DataDir}
}

func provideLogger(cfg *config.Config, paths session.Paths) (*zap.Logger, error) {
	return logging.New(paths.LogPath(), cfg.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring data dir lock", zap.String("dir", cfg.DataDir))
	l, err := lock.Acquire(cfg.DataDir, cfg.Listen)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

// provideLedger runs only once the data dir lock is held.
func provideLedger(paths session.Paths, _ *lock.Lock, logger *zap.Logger) (*ledger.DB, error) {
	dbPath := paths.LedgerPath()
	db, err := ledger.Open(dbPath)
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
	logger.Info("ledger initialized", zap.String("path", dbPath))
	return db, nil
}

func provideNotifier(cfg *config.Config, logger *zap.Logger) *webhook.Notifier {
	return webhook.NewNotifier(cfg.WebhookTimeout, logger.Named("webhook"))
}

func provideRegistry(cfg *config.Config, paths session.Paths, b *bus.Bus, db *ledger.DB, n *webhook.Notifier, logger *zap.Logger) *registry.Registry {
	waLogger := logger.Named("wa")
	return registry.New(session.Deps{
		Paths:    paths,
		Bus:      b,
		Engines:  adapterFactory(waLogger),
		Notifier: n,
		Ledger:   db,
		Logger:   logger,
		Options: session.Options{
			Footer:           cfg.MessageFooter,
			DeviceName:       cfg.DeviceName,
			ReconnectDelay:   cfg.ReconnectDelay,
			ProfileNameDelay: cfg.ProfileNameDelay,
			Retention:        cfg.MessageRetention,
			SendRate:         cfg.SendRate,
			SendBurst:        cfg.SendBurst,
		},
	})
}

// adapterFactory opens a whatsmeow-backed engine per session.
func adapterFactory(logger *zap.Logger) session.EngineFactory {
	return func(ctx context.Context, credentialsPath, deviceName string) (wa.Engine, error) {
		a, err := wa.NewAdapter(ctx, credentialsPath, deviceName, logger)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

func provideAPI(cfg *config.Config, reg *registry.Registry, b *bus.Bus, db *ledger.DB, logger *zap.Logger) *api.Server {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	return api.New(api.Config{
		APIKey:      authKey(cfg),
		CORSOrigins: cfg.CORSOrigins,
		MediaDir:    cfg.Web.PublicMediaDir,
	}, reg, b, db, logger.Named("http"))
}

// authKey is the key the router enforces; empty when auth is disabled.
func authKey(cfg *config.Config) string {
	if !cfg.Auth.Enabled {
		return ""
	}
	return cfg.Auth.APIKey
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, srv *Server, reg *registry.Registry, db *ledger.DB, n *webhook.Notifier, lk *lock.Lock, logger *zap.Logger) {
	stop := make(chan struct{})
	done := make(chan struct{})
	restoreCtx, cancelRestore := context.WithCancel(context.Background())
	restored := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if !cfg.Auth.Enabled {
				logger.Warn("API key authentication is disabled; the HTTP API is unauthenticated",
					zap.String("listen", srv.Addr()))
			}

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			// Sessions reconnect in the background, each on its own schedule.
			go func() {
				defer close(restored)
				count, err := reg.Restore(restoreCtx)
				if err != nil {
					logger.Error("restore sessions", zap.Error(err))
					return
				}
				logger.Info("sessions restored", zap.Int("count", count))
			}()

			go snapshotLoop(reg, cfg.SnapshotInterval, stop, done)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(stop)
			cancelRestore()
			<-done
			<-restored
			srv.Stop(ctx)
			reg.CloseAll()
			n.Wait()
			if err := db.Close(); err != nil {
				logger.Warn("error closing ledger", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}

// snapshotLoop runs per-session maintenance every interval until stop closes.
func snapshotLoop(reg *registry.Registry, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if interval <= 0 {
		<-stop
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			reg.TickAll()
		}
	}
}

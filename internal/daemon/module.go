package daemon

import (
	"context"

	"github.com/homedhq/hmsg/internal/api"
	"github.com/homedhq/hmsg/internal/bus"
	"github.com/homedhq/hmsg/internal/cache"
	"github.com/homedhq/hmsg/internal/config"
	"github.com/homedhq/hmsg/internal/lock"
	"github.com/homedhq/hmsg/internal/logging"
	"github.com/homedhq/hmsg/internal/outbox"
	"github.com/homedhq/hmsg/internal/platform"
	"github.com/homedhq/hmsg/internal/session"
	"github.com/homedhq/hmsg/internal/status"
	"github.com/homedhq/hmsg/internal/store"
	intsync "github.com/homedhq/hmsg/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	ConfigPath  string // optional override; empty = use default
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideSnapshot,
			provideClient,
			provideStream,
			provideCaches,
			provideQueue,
			provideSender,
			provideEngine,
			provideHandlers,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = session.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
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

// provideSnapshot opens the warm-start database. Snapshots can be disabled
// in config, in which case the engine runs purely in memory.
func provideSnapshot(p Params, cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	if cfg.Snapshot.Disabled {
		logger.Info("snapshot disabled, running in-memory only")
		return nil, nil
	}
	dbPath := session.SnapshotDBPath(p.SessionName)
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
	logger.Info("snapshot store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideClient(cfg *config.Config, logger *zap.Logger) *platform.Client {
	return platform.NewClient(cfg.Platform, logger)
}

func provideStream(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *platform.Stream {
	if cfg.Platform.StreamURL == "" {
		return nil
	}
	return platform.NewStream(cfg.Platform.StreamURL, cfg.Platform.Token, b, logger)
}

// Caches groups the three in-memory caches so fx can provide them together.
type Caches struct {
	fx.Out

	Conversations *cache.ConversationStore
	Messages      *cache.MessageCache
	Badge         *cache.Badge
	Counter       *cache.Counter
}

func provideCaches(client *platform.Client, b *bus.Bus, logger *zap.Logger) Caches {
	counter := cache.NewCounter()
	return Caches{
		Conversations: cache.NewConversationStore(client, b, logger),
		Messages:      cache.NewMessageCache(client, b, logger),
		Badge:         cache.NewBadge(client, counter, b, logger),
		Counter:       counter,
	}
}

func provideQueue(convs *cache.ConversationStore, msgs *cache.MessageCache, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *outbox.Queue {
	return outbox.NewQueue(convs, msgs, b, logger, cfg.Platform.UserID, "")
}

func provideSender(queue *outbox.Queue, msgs *cache.MessageCache, client *platform.Client, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(queue, msgs, client, b, logger)
}

func provideEngine(convs *cache.ConversationStore, badge *cache.Badge, client *platform.Client, snapshot *store.DB, machine *status.Machine, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(convs, badge, client, snapshot, machine, b, cfg.Refresh, logger)
}

func provideHandlers(p Params, convs *cache.ConversationStore, msgs *cache.MessageCache, badge *cache.Badge, queue *outbox.Queue, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *api.Handlers {
	return api.NewHandlers(p.SessionName, convs, msgs, badge, queue, machine, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, stream *platform.Stream, engine *intsync.Engine, sender *outbox.Sender, snapshot *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := engine.Start(context.Background()); err != nil {
				return err
			}

			if stream != nil {
				stream.Start(context.Background())
			}

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			sender.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sender.Stop()
			if stream != nil {
				stream.Stop()
			}
			engine.Stop()
			srv.Stop(ctx)
			if snapshot != nil {
				_ = snapshot.Close()
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

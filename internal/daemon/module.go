package daemon

import (
	"context"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chats"
	"github.com/matheus3301/chatsync/internal/docstore"
	"github.com/matheus3301/chatsync/internal/friends"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/notify"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName      string
	UserID           string
	StorePath        string        // empty = session.StorePath()
	PollInterval     time.Duration // change-feed polling; zero = store default
	RetryInterval    time.Duration // outbox ticker; zero = outbox default
	MaxWriteAttempts int           // zero = outbox default
	SocketPath       string        // optional override for testing; empty = use default
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
			provideDocStore,
			provideNotifier,
			provideSender,
			provideFriendEngine,
			provideChatEngine,
			NewRuntime,
			provideSessionService,
			provideFriendService,
			provideChatService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, p.UserID)
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
	l, err := lock.Acquire(session.Dir(p.SessionName), p.UserID)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := p.StorePath
	if dbPath == "" {
		dbPath = session.StorePath()
	}
	db, err := store.Open(dbPath, store.WithPollInterval(p.PollInterval), store.WithLogger(logger.Named("store")))
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

func provideDocStore(db *store.DB) docstore.Store {
	return db
}

func provideNotifier(b *bus.Bus) *notify.Notifier {
	return notify.New(b, 0)
}

func provideSender(p Params, st docstore.Store, b *bus.Bus, n *notify.Notifier, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(st, b, n, logger, p.RetryInterval, p.MaxWriteAttempts)
}

func provideFriendEngine(p Params, st docstore.Store, sender *outbox.Sender, n *notify.Notifier, b *bus.Bus, logger *zap.Logger) *friends.Engine {
	return friends.NewEngine(p.UserID, st, sender, n, b, logger)
}

func provideChatEngine(p Params, st docstore.Store, n *notify.Notifier, b *bus.Bus, logger *zap.Logger) *chats.Engine {
	return chats.NewEngine(p.UserID, st, n, b, logger)
}

func provideSessionService(p Params, m *status.Machine, b *bus.Bus, n *notify.Notifier, sender *outbox.Sender, rt *Runtime) *api.SessionService {
	return api.NewSessionService(p.SessionName, p.UserID, m, b, n, sender, rt)
}

func provideFriendService(e *friends.Engine) *api.FriendService {
	return api.NewFriendService(e)
}

func provideChatService(p Params, e *chats.Engine) *api.ChatService {
	return api.NewChatService(e, p.UserID)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *store.DB, srv *Server, rt *Runtime, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := rt.Start(); err != nil {
				// OnStop does not run for a hook whose OnStart failed.
				srv.Stop(ctx)
				_ = db.Close()
				_ = lk.Release()
				return err
			}

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			rt.Stop()
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

package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matheus3301/chatsync/internal/chats"
	"github.com/matheus3301/chatsync/internal/docstore"
	"github.com/matheus3301/chatsync/internal/friends"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/status"
	"go.uber.org/zap"
)

// Runtime starts and stops the session's engines and drives the status
// machine through seeding.
type Runtime struct {
	machine *status.Machine
	friends *friends.Engine
	chats   *chats.Engine
	sender  *outbox.Sender
	logger  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewRuntime creates a runtime for the given engines.
func NewRuntime(machine *status.Machine, fe *friends.Engine, ce *chats.Engine, sender *outbox.Sender, logger *zap.Logger) *Runtime {
	return &Runtime{
		machine: machine,
		friends: fe,
		chats:   ce,
		sender:  sender,
		logger:  logger,
	}
}

// Start moves BOOTING to SEEDING, starts the outbox and the friend feeds,
// seeds chat summaries, starts the inbox feed and settles on READY, or
// DEGRADED when seeding failed.
func (r *Runtime) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	if err := r.machine.Transition(status.Seeding); err != nil {
		return err
	}
	r.sender.Start(ctx)
	if err := r.friends.Start(ctx); err != nil {
		return r.fail(fmt.Errorf("start friend feeds: %w", err))
	}
	seedErr := r.load(ctx)
	if err := r.chats.Start(ctx); err != nil {
		return r.fail(fmt.Errorf("start inbox feed: %w", err))
	}
	return r.settle(seedErr)
}

// Seed re-runs seeding, typically to recover from DEGRADED.
func (r *Runtime) Seed(ctx context.Context) error {
	if err := r.machine.Transition(status.Seeding); err != nil {
		return err
	}
	err := r.load(ctx)
	if settleErr := r.settle(err); settleErr != nil {
		return settleErr
	}
	return err
}

func (r *Runtime) load(ctx context.Context) error {
	if _, err := r.friends.LoadProfile(ctx); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		r.logger.Warn("profile not loaded", zap.Error(err))
	}
	res, err := r.chats.LoadInitialSummaries(ctx)
	if err != nil {
		return err
	}
	r.logger.Info("chat summaries seeded",
		zap.Int("markers", res.Markers),
		zap.Int("loaded", res.Loaded),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return nil
}

func (r *Runtime) settle(seedErr error) error {
	if seedErr != nil {
		r.logger.Warn("seeding failed, session degraded", zap.Error(seedErr))
		return r.machine.Transition(status.Degraded)
	}
	return r.machine.Transition(status.Ready)
}

func (r *Runtime) fail(err error) error {
	_ = r.machine.Transition(status.Error)
	r.logger.Error("session failed to start", zap.Error(err))
	r.Stop()
	return err
}

// Stop cancels every feed and stops the engines and the outbox.
func (r *Runtime) Stop() {
	_ = r.machine.Transition(status.Stopping)
	r.chats.Stop()
	r.friends.Stop()
	r.sender.Stop()

	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Package outbox retries remote writes that failed when they were first
// attempted. Pending writes are keyed by document path: a newer write to
// the same path replaces the queued one, and every write is a full Set or
// Delete so replaying it is idempotent.
package outbox

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/docstore"
	"github.com/matheus3301/chatsync/internal/notify"
	"go.uber.org/zap"
)

// Kind is the remote operation of a queued write.
type Kind int

const (
	KindSet Kind = iota + 1
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindSet:
		return "set"
	case KindDelete:
		return "delete"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Op is one remote write.
type Op struct {
	ID        string
	Kind      Kind
	Path      string
	Data      any
	Label     string
	Attempts  int
	LastError string
	QueuedAt  time.Time
}

// Set builds a set operation.
func Set(path string, data any, label string) Op {
	return Op{Kind: KindSet, Path: path, Data: data, Label: label}
}

// Delete builds a delete operation.
func Delete(path, label string) Op {
	return Op{Kind: KindDelete, Path: path, Label: label}
}

// Result is the payload of write.retried events.
type Result struct {
	Op  Op
	Err string
}

// Sender holds pending writes and drains them on a ticker.
type Sender struct {
	store       docstore.Store
	bus         *bus.Bus
	notifier    *notify.Notifier
	logger      *zap.Logger
	interval    time.Duration
	maxAttempts int

	mu      sync.Mutex
	pending map[string]*Op
	paths   pathLocks

	sweep  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSender creates a sender. interval and maxAttempts fall back to 2s and
// 5 when not positive.
func NewSender(st docstore.Store, b *bus.Bus, n *notify.Notifier, logger *zap.Logger, interval time.Duration, maxAttempts int) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Sender{
		store:       st,
		bus:         b,
		notifier:    n,
		logger:      logger,
		interval:    interval,
		maxAttempts: maxAttempts,
		pending:     make(map[string]*Op),
		paths:       pathLocks{held: make(map[string]chan struct{})},
	}
}

// Write attempts op immediately. On success any queued write for the same
// path is dropped; on failure op is queued for retry and the error returned.
// Writes to one path, inline or retried, never overlap.
func (s *Sender) Write(ctx context.Context, op Op) error {
	if err := s.paths.lock(ctx, op.Path); err != nil {
		return err
	}
	defer s.paths.unlock(op.Path)

	err := s.apply(ctx, op)
	if err == nil {
		s.Cancel(op.Path)
		return nil
	}
	op.Attempts = 1
	op.LastError = err.Error()
	s.Enqueue(op)
	return fmt.Errorf("%s %s: %w", op.Kind, op.Path, err)
}

// Enqueue queues op, replacing any pending write for the same path.
func (s *Sender) Enqueue(op Op) {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.QueuedAt.IsZero() {
		op.QueuedAt = time.Now()
	}
	s.mu.Lock()
	s.pending[op.Path] = &op
	s.mu.Unlock()
	s.logger.Warn("write queued for retry",
		zap.String("op_id", op.ID),
		zap.String("path", op.Path),
		zap.Stringer("kind", op.Kind),
		zap.String("error", op.LastError),
	)
}

// Cancel drops the pending write for path, if any.
func (s *Sender) Cancel(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[path]; !ok {
		return false
	}
	delete(s.pending, path)
	return true
}

// Pending returns the queued writes, oldest first.
func (s *Sender) Pending() []Op {
	s.mu.Lock()
	out := make([]Op, 0, len(s.pending))
	for _, op := range s.pending {
		out = append(out, *op)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b Op) int {
		if c := a.QueuedAt.Compare(b.QueuedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
	return out
}

// Start begins retrying pending writes.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the retry loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Flush retries every pending write once and returns how many remain queued.
func (s *Sender) Flush(ctx context.Context) int {
	s.sweep.Lock()
	defer s.sweep.Unlock()

	for _, op := range s.Pending() {
		if ctx.Err() != nil {
			break
		}
		s.retry(ctx, op)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Sender) retry(ctx context.Context, op Op) {
	if s.paths.lock(ctx, op.Path) != nil {
		return
	}
	defer s.paths.unlock(op.Path)

	if !s.current(op) {
		// Superseded or cancelled while waiting for the path.
		return
	}
	err := s.apply(ctx, op)

	s.mu.Lock()
	cur, ok := s.pending[op.Path]
	if !ok || cur.ID != op.ID {
		// Superseded or cancelled while the write was in flight.
		s.mu.Unlock()
		return
	}
	cur.Attempts++
	abandoned := false
	if err == nil {
		delete(s.pending, op.Path)
	} else {
		cur.LastError = err.Error()
		if cur.Attempts >= s.maxAttempts {
			delete(s.pending, op.Path)
			abandoned = true
		}
	}
	snapshot := *cur
	s.mu.Unlock()

	fields := []zap.Field{
		zap.String("op_id", snapshot.ID),
		zap.String("path", snapshot.Path),
		zap.Int("attempts", snapshot.Attempts),
	}
	switch {
	case err == nil:
		s.logger.Info("queued write applied", fields...)
		s.publish(bus.WriteRetried, Result{Op: snapshot})
	case abandoned:
		s.logger.Error("queued write abandoned", append(fields, zap.Error(err))...)
		s.publish(bus.WriteAbandoned, Result{Op: snapshot, Err: err.Error()})
		if s.notifier != nil {
			s.notifier.PostError(fmt.Sprintf("Gave up on %s", describe(snapshot)))
		}
	default:
		s.logger.Warn("queued write failed", append(fields, zap.Error(err))...)
		s.publish(bus.WriteRetried, Result{Op: snapshot, Err: err.Error()})
	}
}

func (s *Sender) current(op Op) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.pending[op.Path]
	return ok && cur.ID == op.ID
}

func (s *Sender) apply(ctx context.Context, op Op) error {
	switch op.Kind {
	case KindSet:
		return s.store.Set(ctx, op.Path, op.Data)
	case KindDelete:
		return s.store.Delete(ctx, op.Path)
	default:
		return fmt.Errorf("unknown write kind %v", op.Kind)
	}
}

func (s *Sender) publish(kind string, r Result) {
	if s.bus != nil {
		s.bus.Emit(kind, r)
	}
}

func describe(op Op) string {
	if op.Label != "" {
		return op.Label
	}
	return op.Kind.String() + " " + op.Path
}

// pathLocks is a set of per-path mutexes.
type pathLocks struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func (l *pathLocks) lock(ctx context.Context, path string) error {
	for {
		l.mu.Lock()
		wait, busy := l.held[path]
		if !busy {
			l.held[path] = make(chan struct{})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *pathLocks) unlock(path string) {
	l.mu.Lock()
	release := l.held[path]
	delete(l.held, path)
	l.mu.Unlock()
	close(release)
}

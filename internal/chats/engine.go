// Package chats maintains the conversation list of a session and the
// timeline of the open conversation.
package chats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/docstore"
	"github.com/matheus3301/chatsync/internal/loop"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/notify"
	"github.com/matheus3301/chatsync/internal/schema"
	"github.com/matheus3301/chatsync/internal/timeline"
	"go.uber.org/zap"
)

// DefaultHistoryLimit bounds how many messages OpenChat loads.
const DefaultHistoryLimit = 200

// Snapshot is a read-only copy of the engine's derived state.
type Snapshot struct {
	Summaries  []model.ChatSummary
	ActiveChat *model.Chat
	Timeline   []timeline.Entry
	Unread     int
}

// Engine owns the chat views of one session.
type Engine struct {
	self         string
	store        docstore.Store
	notifier     *notify.Notifier
	bus          *bus.Bus
	logger       *zap.Logger
	loop         *loop.Loop
	historyLimit int
	now          func() time.Time

	// Loop-confined state.
	summaries  summaries
	activeChat *model.Chat
	timeline   *timeline.Timeline

	mu         sync.Mutex
	inboxSub   *docstore.Subscription
	receiptSub *docstore.Subscription
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewEngine creates a chat engine for the user self.
func NewEngine(self string, st docstore.Store, n *notify.Notifier, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if n == nil {
		n = notify.New(b, 0)
	}
	return &Engine{
		self:         self,
		store:        st,
		notifier:     n,
		bus:          b,
		logger:       logger.Named("chats"),
		loop:         loop.New(64),
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
	}
}

// SetHistoryLimit changes how many messages OpenChat loads.
func (e *Engine) SetHistoryLimit(n int) {
	if n > 0 {
		e.historyLimit = n
	}
}

// Start subscribes to the user's incoming-message inbox.
func (e *Engine) Start(ctx context.Context) error {
	if e.self == "" {
		return fmt.Errorf("chats: no current user")
	}
	ctx, cancel := context.WithCancel(ctx)
	sub, err := e.store.Subscribe(ctx, schema.InboxCollection(e.self))
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe inbox: %w", err)
	}

	e.mu.Lock()
	e.inboxSub = sub
	e.ctx = ctx
	e.cancel = cancel
	e.mu.Unlock()

	e.pump(ctx, sub, e.HandleInboxEvent)
	e.logger.Info("inbox feed started", zap.String("user", e.self))
	return nil
}

func (e *Engine) pump(ctx context.Context, sub *docstore.Subscription, handle func(context.Context, docstore.ChangeEvent) error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case evt, ok := <-sub.C:
				if !ok {
					return
				}
				if err := handle(ctx, evt); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels every feed, waits for in-flight events and stops the loop.
func (e *Engine) Stop() {
	e.mu.Lock()
	inbox, receipts := e.inboxSub, e.receiptSub
	e.inboxSub, e.receiptSub = nil, nil
	cancel := e.cancel
	e.cancel = nil
	e.ctx = nil
	e.mu.Unlock()

	inbox.Cancel()
	receipts.Cancel()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	e.loop.Stop()
}

// Snapshot copies the derived state.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := e.loop.Do(ctx, func() {
		s.Summaries = e.summaries.list()
		s.Unread = e.summaries.unread(e.self)
		if e.activeChat != nil {
			c := *e.activeChat
			s.ActiveChat = &c
			s.Timeline = timeline.Entries(e.timeline.Messages())
		}
	})
	return s, err
}

// HandleInboxEvent decodes an inbox delivery and ingests it. Removals and
// modifications of inbox documents carry nothing new.
func (e *Engine) HandleInboxEvent(ctx context.Context, evt docstore.ChangeEvent) error {
	if evt.Kind != docstore.Added {
		return nil
	}
	msg, err := schema.DecodeMessage(evt.Doc)
	if err != nil {
		e.logger.Warn("dropping undecodable inbox message", zap.String("path", evt.Doc.Path), zap.Error(err))
		return nil
	}
	return e.ingest(ctx, msg, evt.Doc.Path)
}

// HandleIncomingMessage ingests one message addressed to the user. It is
// idempotent under redelivery.
func (e *Engine) HandleIncomingMessage(ctx context.Context, msg model.Message) error {
	return e.ingest(ctx, msg, schema.InboxPath(e.self, msg.ID))
}

// ingest records the membership, acknowledges the inbox copy at inboxPath
// and applies msg to the derived state.
func (e *Engine) ingest(ctx context.Context, msg model.Message, inboxPath string) error {
	marker := schema.NewMembership(msg.ChatID, e.now())
	if err := e.store.Set(ctx, schema.MembershipPath(e.self, msg.ChatID), marker); err != nil {
		e.logger.Warn("failed to record chat membership", zap.String("chat_id", msg.ChatID), zap.Error(err))
	}
	if err := e.store.Delete(ctx, inboxPath); err != nil {
		e.logger.Warn("failed to acknowledge inbox message", zap.String("path", inboxPath), zap.Error(err))
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var active bool
	err := e.loop.Do(ctx, func() {
		if e.summaries.upsert(msg) {
			e.emit(bus.SummariesChanged)
		}
		if e.activeChat != nil && e.activeChat.ID == msg.ChatID {
			e.timeline.Insert(msg)
			e.emit(bus.TimelineChanged)
			active = true
		}
	})
	if err != nil {
		return err
	}
	if active {
		e.MarkAsRead(ctx, msg)
	}
	return nil
}

// handleReceipt follows the open conversation's messages. Modifications
// carry readBy changes; additions fill in messages that reached the chat
// while it was being opened.
func (e *Engine) handleReceipt(ctx context.Context, evt docstore.ChangeEvent) error {
	if evt.Kind != docstore.Modified && evt.Kind != docstore.Added {
		return nil
	}
	msg, err := schema.DecodeMessage(evt.Doc)
	if err != nil {
		e.logger.Warn("dropping undecodable message update", zap.String("path", evt.Doc.Path), zap.Error(err))
		return nil
	}
	var unread bool
	err = e.loop.Do(ctx, func() {
		if e.activeChat == nil || e.activeChat.ID != msg.ChatID {
			return
		}
		if evt.Kind == docstore.Added {
			if _, ok := e.timeline.Get(msg.ID); ok || e.beforeHistory(msg) {
				return
			}
			e.timeline.Insert(msg)
			e.emit(bus.TimelineChanged)
			unread = !msg.ReadByUser(e.self)
			return
		}
		if _, ok := e.timeline.Get(msg.ID); ok {
			e.timeline.Insert(msg)
			e.emit(bus.TimelineChanged)
		}
		if s, ok := e.summaries.get(msg.ChatID); ok && s.Latest.ID == msg.ID {
			if e.summaries.upsert(msg) {
				e.emit(bus.SummariesChanged)
			}
		}
	})
	if err != nil {
		return err
	}
	if unread {
		e.MarkAsRead(ctx, msg)
	}
	return nil
}

// beforeHistory reports whether m precedes a timeline already holding a
// full page of history. Such messages were cut off by the history limit.
func (e *Engine) beforeHistory(m model.Message) bool {
	msgs := e.timeline.Messages()
	return len(msgs) >= e.historyLimit && model.CompareMessages(m, msgs[0]) < 0
}

func (e *Engine) emit(kind string) {
	if e.bus != nil {
		e.bus.Emit(kind, e.self)
	}
}

package chats

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/docstore"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/schema"
	"github.com/matheus3301/chatsync/internal/timeline"
	"go.uber.org/zap"
)

var (
	// ErrChatNotFound is returned when a chat document does not exist.
	ErrChatNotFound = errors.New("chat not found")
	// ErrInvalidMessage is returned for messages that cannot be sent.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrNotMember is returned when the user is not a member of the chat.
	ErrNotMember = errors.New("not a chat member")
	// ErrTooFewMembers is returned when a chat would have no other member.
	ErrTooFewMembers = errors.New("chat needs at least one other member")
)

// SeedResult describes a LoadInitialSummaries run.
type SeedResult struct {
	Markers int
	Loaded  int
	Skipped int
	Failed  int
}

// LoadInitialSummaries creates a summary for every chat the user is a member
// of, from that chat's most recent message. Chats that already have a
// summary are skipped. The returned error is non-nil only when the
// membership markers could not be read at all.
func (e *Engine) LoadInitialSummaries(ctx context.Context) (SeedResult, error) {
	var res SeedResult
	markers, err := e.store.Query(ctx, docstore.Query{Collection: schema.MembershipCollection(e.self)})
	if err != nil {
		e.logger.Error("failed to load chat memberships", zap.Error(err))
		e.notifier.PostError("Failed to load conversations")
		return res, fmt.Errorf("load memberships: %w", err)
	}
	res.Markers = len(markers)

	for _, doc := range markers {
		marker, err := schema.DecodeMembership(doc)
		if err != nil {
			e.logger.Warn("skipping undecodable membership", zap.String("path", doc.Path), zap.Error(err))
			res.Failed++
			continue
		}
		var known bool
		if err := e.loop.Do(ctx, func() { known = e.summaries.has(marker.ChatID) }); err != nil {
			return res, err
		}
		if known {
			res.Skipped++
			continue
		}

		latest, err := e.latestMessage(ctx, marker.ChatID)
		if err != nil {
			e.logger.Warn("failed to load latest message", zap.String("chat_id", marker.ChatID), zap.Error(err))
			res.Failed++
			continue
		}
		if latest == nil {
			res.Skipped++
			continue
		}

		var added bool
		if err := e.loop.Do(ctx, func() {
			// The inbox feed may have populated this chat meanwhile.
			if e.summaries.has(latest.ChatID) {
				return
			}
			added = e.summaries.upsert(*latest)
			e.emit(bus.SummariesChanged)
		}); err != nil {
			return res, err
		}
		if added {
			res.Loaded++
		} else {
			res.Skipped++
		}
	}
	if res.Failed > 0 {
		e.notifier.PostError("Some conversations could not be loaded")
	}
	e.logger.Info("chat summaries seeded",
		zap.Int("markers", res.Markers),
		zap.Int("loaded", res.Loaded),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (e *Engine) latestMessage(ctx context.Context, chatID string) (*model.Message, error) {
	docs, err := e.store.Query(ctx, docstore.Query{
		Collection: schema.MessagesCollection(chatID),
		OrderBy:    schema.FieldTimestamp,
		Descending: true,
		Limit:      1,
	})
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	m, err := schema.DecodeMessage(docs[0])
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MarkAsRead records the user as a reader of msg. Messages already read by
// the user, including their own, need no remote write.
func (e *Engine) MarkAsRead(ctx context.Context, msg model.Message) {
	if e.self == "" || msg.ReadByUser(e.self) {
		return
	}
	err := e.store.Update(ctx, schema.MessagePath(msg.ChatID, msg.ID),
		docstore.ArrayUnion(schema.FieldReadBy, e.self))
	if err != nil {
		e.logger.Warn("failed to mark message read", zap.String("msg_id", msg.ID), zap.Error(err))
		e.notifier.PostError("Failed to mark message as read")
		return
	}
	_ = e.loop.Do(ctx, func() {
		if e.summaries.markRead(msg.ChatID, msg.ID, e.self) {
			e.emit(bus.SummariesChanged)
		}
		if e.activeChat != nil && e.activeChat.ID == msg.ChatID && e.timeline.MarkRead(msg.ID, e.self) {
			e.emit(bus.TimelineChanged)
		}
	})
}

// CountUnread returns how many conversations have an unread latest message.
func (e *Engine) CountUnread(ctx context.Context) (int, error) {
	var n int
	err := e.loop.Do(ctx, func() { n = e.summaries.unread(e.self) })
	return n, err
}

// Route is the outcome of a conversation routing decision.
type Route struct {
	ChatID string
	// Exists is false when no chat has exactly the requested members and
	// the caller should create one.
	Exists bool
}

// RouteConversation looks for a chat whose member set is exactly members
// plus the user.
func (e *Engine) RouteConversation(ctx context.Context, members []string) (Route, error) {
	want := e.withSelf(members)
	docs, err := e.store.Query(ctx, docstore.Query{
		Collection: schema.ChatsCollection(),
		Filters:    []docstore.Filter{docstore.Where(schema.FieldMembers, docstore.ArrayContains, e.self)},
	})
	if err != nil {
		e.logger.Error("failed to look up conversations", zap.Error(err))
		e.notifier.PostError("Failed to open conversation")
		return Route{}, fmt.Errorf("route conversation: %w", err)
	}
	for _, doc := range docs {
		chat, err := schema.DecodeChat(doc)
		if err != nil {
			e.logger.Warn("skipping undecodable chat", zap.String("path", doc.Path), zap.Error(err))
			continue
		}
		if chat.HasExactMembers(want) {
			return Route{ChatID: chat.ID, Exists: true}, nil
		}
	}
	return Route{}, nil
}

// CreateChat writes a new chat and a membership marker for every member.
func (e *Engine) CreateChat(ctx context.Context, members []string, title string) (model.Chat, error) {
	chat := model.Chat{
		ID:      uuid.NewString(),
		Members: e.withSelf(members),
		Title:   title,
	}
	if len(chat.Members) < 2 {
		return model.Chat{}, fmt.Errorf("create chat: %w", ErrTooFewMembers)
	}
	if err := e.store.Set(ctx, schema.ChatPath(chat.ID), chat); err != nil {
		e.logger.Error("failed to create chat", zap.Error(err))
		e.notifier.PostError("Failed to create conversation")
		return model.Chat{}, fmt.Errorf("create chat: %w", err)
	}
	marker := schema.NewMembership(chat.ID, e.now())
	for _, member := range chat.Members {
		if err := e.store.Set(ctx, schema.MembershipPath(member, chat.ID), marker); err != nil {
			e.logger.Warn("failed to write membership", zap.String("member", member), zap.Error(err))
		}
	}
	e.logger.Info("chat created", zap.String("chat_id", chat.ID), zap.Strings("members", chat.Members))
	return chat, nil
}

// OpenOrCreate routes to the chat with exactly members, creating it if none exists.
func (e *Engine) OpenOrCreate(ctx context.Context, members []string, title string) (string, bool, error) {
	route, err := e.RouteConversation(ctx, members)
	if err != nil {
		return "", false, err
	}
	if route.Exists {
		return route.ChatID, false, nil
	}
	chat, err := e.CreateChat(ctx, members, title)
	if err != nil {
		return "", false, err
	}
	return chat.ID, true, nil
}

// SendMessage writes a message authored by the user into chatID and
// delivers a copy to every other member's inbox.
func (e *Engine) SendMessage(ctx context.Context, chatID string, ct model.ContentType, content string) (model.Message, error) {
	if !ct.Valid() || content == "" || chatID == "" {
		return model.Message{}, ErrInvalidMessage
	}
	chat, err := e.loadChat(ctx, chatID)
	if err != nil {
		return model.Message{}, err
	}
	if !slices.Contains(chat.Members, e.self) {
		return model.Message{}, fmt.Errorf("send message to %s: %w", chatID, ErrNotMember)
	}

	msg := model.Message{
		ID:          uuid.NewString(),
		ContentType: ct,
		Content:     content,
		Timestamp:   e.now(),
		ChatID:      chatID,
		SenderID:    e.self,
		ReadBy:      []string{e.self},
	}
	if err := e.store.Set(ctx, schema.MessagePath(chatID, msg.ID), msg); err != nil {
		e.logger.Error("failed to send message", zap.String("chat_id", chatID), zap.Error(err))
		e.notifier.PostError("Failed to send message")
		return model.Message{}, fmt.Errorf("send message: %w", err)
	}

	undelivered := 0
	for _, member := range chat.Members {
		if member == e.self {
			continue
		}
		if err := e.store.Set(ctx, schema.InboxPath(member, msg.ID), msg); err != nil {
			undelivered++
			e.logger.Warn("failed to deliver message", zap.String("member", member), zap.Error(err))
		}
	}
	if undelivered > 0 {
		e.notifier.PostError("Message saved but not delivered to everyone")
	}
	if err := e.store.Set(ctx, schema.MembershipPath(e.self, chatID), schema.NewMembership(chatID, e.now())); err != nil {
		e.logger.Warn("failed to refresh chat membership", zap.String("chat_id", chatID), zap.Error(err))
	}

	err = e.loop.Do(ctx, func() {
		if e.summaries.upsert(msg) {
			e.emit(bus.SummariesChanged)
		}
		if e.activeChat != nil && e.activeChat.ID == chatID {
			e.timeline.Insert(msg)
			e.emit(bus.TimelineChanged)
		}
	})
	return msg, err
}

// Chat loads chatID and derives how it is displayed.
func (e *Engine) Chat(ctx context.Context, chatID string) (model.Chat, model.ChatDisplay, error) {
	chat, err := e.loadChat(ctx, chatID)
	if err != nil {
		return model.Chat{}, model.ChatDisplay{}, err
	}
	return chat, e.ResolveChatDisplay(ctx, chat), nil
}

func (e *Engine) loadChat(ctx context.Context, chatID string) (model.Chat, error) {
	doc, err := e.store.Get(ctx, schema.ChatPath(chatID))
	if err != nil {
		e.notifier.PostError("Failed to load conversation")
		return model.Chat{}, fmt.Errorf("load chat %s: %w", chatID, err)
	}
	if doc == nil {
		return model.Chat{}, fmt.Errorf("load chat %s: %w", chatID, ErrChatNotFound)
	}
	return schema.DecodeChat(*doc)
}

// OpenChat makes chatID the active conversation: its recent history becomes
// the timeline, unread messages are marked read and read receipts of the
// chat are followed until CloseChat.
func (e *Engine) OpenChat(ctx context.Context, chatID string) error {
	chat, err := e.loadChat(ctx, chatID)
	if err != nil {
		return err
	}
	docs, err := e.store.Query(ctx, docstore.Query{
		Collection: schema.MessagesCollection(chatID),
		OrderBy:    schema.FieldTimestamp,
		Descending: true,
		Limit:      e.historyLimit,
	})
	if err != nil {
		e.logger.Error("failed to load history", zap.String("chat_id", chatID), zap.Error(err))
		e.notifier.PostError("Failed to load messages")
		return fmt.Errorf("load history: %w", err)
	}
	history := make([]model.Message, 0, len(docs))
	for _, doc := range docs {
		m, err := schema.DecodeMessage(doc)
		if err != nil {
			e.logger.Warn("skipping undecodable message", zap.String("path", doc.Path), zap.Error(err))
			continue
		}
		history = append(history, m)
	}
	// Query order is newest first; the timeline re-sorts ascending.
	slices.Reverse(history)

	e.closeReceipts()
	if err := e.loop.Do(ctx, func() {
		e.activeChat = &chat
		e.timeline = timeline.New(history)
		e.emit(bus.ChatOpened)
		e.emit(bus.TimelineChanged)
	}); err != nil {
		return err
	}
	e.followReceipts(chatID)

	for _, m := range history {
		if !m.ReadByUser(e.self) {
			e.MarkAsRead(ctx, m)
		}
	}
	return nil
}

// CloseChat clears the active conversation and stops following its receipts.
func (e *Engine) CloseChat(ctx context.Context) error {
	e.closeReceipts()
	return e.loop.Do(ctx, func() {
		if e.activeChat == nil {
			return
		}
		e.activeChat = nil
		e.timeline = nil
		e.emit(bus.ChatClosed)
	})
}

func (e *Engine) followReceipts(chatID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx := e.ctx
	if ctx == nil {
		// Not started: the timeline is served without live receipts.
		return
	}
	sub, err := e.store.Subscribe(ctx, schema.MessagesCollection(chatID))
	if err != nil {
		e.logger.Warn("failed to follow read receipts", zap.String("chat_id", chatID), zap.Error(err))
		return
	}
	e.receiptSub.Cancel()
	e.receiptSub = sub
	e.pump(ctx, sub, e.handleReceipt)
}

func (e *Engine) closeReceipts() {
	e.mu.Lock()
	sub := e.receiptSub
	e.receiptSub = nil
	e.mu.Unlock()
	sub.Cancel()
}

// ResolveChatDisplay derives the title and cover of chat. For 1:1 chats
// without an explicit title they come from the other member's profile.
func (e *Engine) ResolveChatDisplay(ctx context.Context, chat model.Chat) model.ChatDisplay {
	other, ok := chat.OtherMember(e.self)
	if !ok || chat.Title != "" {
		return chat.Display(nil)
	}
	doc, err := e.store.Get(ctx, schema.UserPath(other))
	if err != nil || doc == nil {
		if err != nil {
			e.logger.Warn("failed to load chat member", zap.String("user", other), zap.Error(err))
		}
		return chat.Display(nil)
	}
	u, err := schema.DecodeUser(*doc)
	if err != nil {
		return chat.Display(nil)
	}
	return chat.Display(&u)
}

// RemoveConversation removes chatID from the user's view by deleting the
// membership marker. The local summary stays until the next session.
func (e *Engine) RemoveConversation(ctx context.Context, chatID string) {
	if chatID == "" {
		return
	}
	if err := e.store.Delete(ctx, schema.MembershipPath(e.self, chatID)); err != nil {
		e.logger.Error("failed to remove conversation", zap.String("chat_id", chatID), zap.Error(err))
		e.notifier.PostError("Failed to remove conversation")
	}
}

func (e *Engine) withSelf(members []string) []string {
	return model.NormalizeMembers(append(slices.Clone(members), e.self))
}

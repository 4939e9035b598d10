package api

import (
	"context"

	"github.com/matheus3301/chatsync/internal/chats"
	"github.com/matheus3301/chatsync/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ChatService exposes the chat engine.
type ChatService struct {
	engine *chats.Engine
	self   string
}

// NewChatService creates a new chat service for the session user self.
func NewChatService(e *chats.Engine, self string) *ChatService {
	return &ChatService{engine: e, self: self}
}

// ChatServiceDesc describes ChatService for grpc.Server.RegisterService.
var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ChatServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(ChatServiceName, "Snapshot", (*ChatService).Snapshot),
		unary(ChatServiceName, "Reload", (*ChatService).Reload),
		unary(ChatServiceName, "CountUnread", (*ChatService).CountUnread),
		unary(ChatServiceName, "Route", (*ChatService).Route),
		unary(ChatServiceName, "OpenOrCreate", (*ChatService).OpenOrCreate),
		unary(ChatServiceName, "Open", (*ChatService).Open),
		unary(ChatServiceName, "Close", (*ChatService).Close),
		unary(ChatServiceName, "Send", (*ChatService).Send),
		unary(ChatServiceName, "Describe", (*ChatService).Describe),
		unary(ChatServiceName, "Remove", (*ChatService).Remove),
	},
}

func (s *ChatService) Snapshot(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	snap, err := s.engine.Snapshot(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(chatSnapshotValue(snap, s.self))
}

// Reload seeds summaries for conversations not yet known.
func (s *ChatService) Reload(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.engine.LoadInitialSummaries(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{
		"markers": res.Markers,
		"loaded":  res.Loaded,
		"skipped": res.Skipped,
		"failed":  res.Failed,
	})
}

func (s *ChatService) CountUnread(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	n, err := s.engine.CountUnread(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{"unread": n})
}

func (s *ChatService) Route(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	route, err := s.engine.RouteConversation(ctx, stringsArg(req, "members"))
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{"chatID": route.ChatID, "exists": route.Exists})
}

func (s *ChatService) OpenOrCreate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, created, err := s.engine.OpenOrCreate(ctx, stringsArg(req, "members"), stringArg(req, "title"))
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{"chatID": id, "created": created})
}

// Open makes "chatID" the active conversation and returns the new snapshot.
func (s *ChatService) Open(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "chatID")
	if err != nil {
		return nil, err
	}
	if err := s.engine.OpenChat(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	return s.Snapshot(ctx, req)
}

func (s *ChatService) Close(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.engine.CloseChat(ctx); err != nil {
		return nil, toStatus(err)
	}
	return empty()
}

func (s *ChatService) Send(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "chatID")
	if err != nil {
		return nil, err
	}
	ct := model.ContentType(stringArg(req, "contentType"))
	if ct == "" {
		ct = model.Text
	}
	msg, err := s.engine.SendMessage(ctx, id, ct, stringArg(req, "content"))
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(messageValue(msg))
}

func (s *ChatService) Describe(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "chatID")
	if err != nil {
		return nil, err
	}
	chat, display, err := s.engine.Chat(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{"chat": chatValue(chat), "display": displayValue(display)})
}

func (s *ChatService) Remove(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "chatID")
	if err != nil {
		return nil, err
	}
	s.engine.RemoveConversation(ctx, id)
	return empty()
}

package api

import (
	"context"
	"errors"

	"github.com/matheus3301/chatsync/internal/docstore"
	"github.com/matheus3301/chatsync/internal/friends"
	"github.com/matheus3301/chatsync/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// FriendService exposes the friend engine.
type FriendService struct {
	engine *friends.Engine
}

// NewFriendService creates a new friend service.
func NewFriendService(e *friends.Engine) *FriendService {
	return &FriendService{engine: e}
}

// FriendServiceDesc describes FriendService for grpc.Server.RegisterService.
var FriendServiceDesc = grpc.ServiceDesc{
	ServiceName: FriendServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(FriendServiceName, "Snapshot", (*FriendService).Snapshot),
		unary(FriendServiceName, "Search", (*FriendService).Search),
		unary(FriendServiceName, "SortResults", (*FriendService).SortResults),
		unary(FriendServiceName, "SendRequest", (*FriendService).SendRequest),
		unary(FriendServiceName, "Accept", (*FriendService).Accept),
		unary(FriendServiceName, "Reject", (*FriendService).Reject),
		unary(FriendServiceName, "Unfriend", (*FriendService).Unfriend),
		unary(FriendServiceName, "SetNotifications", (*FriendService).SetNotifications),
		unary(FriendServiceName, "View", (*FriendService).View),
		unary(FriendServiceName, "Dismiss", (*FriendService).Dismiss),
		unary(FriendServiceName, "GetProfile", (*FriendService).GetProfile),
		unary(FriendServiceName, "SaveProfile", (*FriendService).SaveProfile),
	},
}

func (s *FriendService) Snapshot(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	snap, err := s.engine.Snapshot(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	out := map[string]any{
		"friends":                friendList(snap.Friends),
		"requests":               friendList(snap.Requests),
		"searchResults":          friendList(snap.SearchResults),
		"closeDetail":            snap.CloseDetail,
		"pendingFriendRemovals":  friendList(snap.PendingFriendRemovals),
		"pendingRequestRemovals": friendList(snap.PendingRequestRemovals),
	}
	if snap.Viewed != nil {
		out["viewed"] = friendValue(*snap.Viewed)
	}
	if snap.Profile != nil {
		out["profile"] = userValue(*snap.Profile)
	}
	return reply(out)
}

// Search replaces the search results for "key" and returns them.
func (s *FriendService) Search(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.engine.SearchUsers(ctx, stringArg(req, "key")); err != nil {
		return nil, toStatus(err)
	}
	return s.results(ctx)
}

func (s *FriendService) SortResults(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.engine.SortSearchResults(ctx); err != nil {
		return nil, toStatus(err)
	}
	return s.results(ctx)
}

func (s *FriendService) results(ctx context.Context) (*structpb.Struct, error) {
	snap, err := s.engine.Snapshot(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{"searchResults": friendList(snap.SearchResults)})
}

func (s *FriendService) SendRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "id")
	if err != nil {
		return nil, err
	}
	s.engine.SendFriendRequest(ctx, id)
	return empty()
}

func (s *FriendService) Accept(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "id")
	if err != nil {
		return nil, err
	}
	s.engine.AddFriend(ctx, id)
	return empty()
}

func (s *FriendService) Reject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "id")
	if err != nil {
		return nil, err
	}
	s.engine.RejectRequest(ctx, id)
	return empty()
}

func (s *FriendService) Unfriend(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "id")
	if err != nil {
		return nil, err
	}
	s.engine.Unfriend(ctx, id)
	return empty()
}

func (s *FriendService) SetNotifications(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "id")
	if err != nil {
		return nil, err
	}
	s.engine.SetFriendNotifications(ctx, id, boolArg(req, "on"))
	return empty()
}

func (s *FriendService) View(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "id")
	if err != nil {
		return nil, err
	}
	ok, err := s.engine.View(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]any{"viewing": ok})
}

func (s *FriendService) Dismiss(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.engine.DismissView(ctx); err != nil {
		return nil, toStatus(err)
	}
	return empty()
}

func (s *FriendService) GetProfile(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	u, err := s.engine.LoadProfile(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(userValue(u))
}

// SaveProfile merges the fields present in the request into the stored
// profile and saves it.
func (s *FriendService) SaveProfile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	u, err := s.engine.LoadProfile(ctx)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		u = model.User{Notifications: true}
	case err != nil:
		return nil, toStatus(err)
	}
	fields := req.GetFields()
	if v, ok := fields["displayName"]; ok {
		u.DisplayName = v.GetStringValue()
	}
	if v, ok := fields["avatar"]; ok {
		u.Avatar = v.GetStringValue()
	}
	if v, ok := fields["notifications"]; ok {
		u.Notifications = v.GetBoolValue()
	}
	if err := s.engine.SaveProfile(ctx, u); err != nil {
		return nil, toStatus(err)
	}
	return empty()
}

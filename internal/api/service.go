// Package api exposes a session over gRPC. Services are declared by hand
// and carry google.protobuf.Struct payloads, so no generated code is needed.
package api

import (
	"context"
	"errors"

	"github.com/matheus3301/chatsync/internal/chats"
	"github.com/matheus3301/chatsync/internal/docstore"
	"github.com/matheus3301/chatsync/internal/friends"
	"github.com/matheus3301/chatsync/internal/loop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fully qualified service names.
const (
	SessionServiceName = "chatsync.v1.SessionService"
	FriendServiceName  = "chatsync.v1.FriendService"
	ChatServiceName    = "chatsync.v1.ChatService"
)

// FullMethod returns the gRPC method path of a service method.
func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}

type unaryFunc[S any] func(S, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unary adapts a Struct-in/Struct-out method of S to a grpc.MethodDesc.
func unary[S any](service, name string, call unaryFunc[S]) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(S)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(service, name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// toStatus maps engine and store errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	code := codes.Unavailable
	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, chats.ErrChatNotFound):
		code = codes.NotFound
	case errors.Is(err, chats.ErrInvalidMessage),
		errors.Is(err, chats.ErrTooFewMembers),
		errors.Is(err, friends.ErrInvalidProfile):
		code = codes.InvalidArgument
	case errors.Is(err, chats.ErrNotMember):
		code = codes.PermissionDenied
	case errors.Is(err, loop.ErrStopped):
		code = codes.Unavailable
	}
	return grpcstatus.Error(code, err.Error())
}

func stringArg(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func requireString(req *structpb.Struct, key string) (string, error) {
	v := stringArg(req, key)
	if v == "" {
		return "", grpcstatus.Errorf(codes.InvalidArgument, "missing %q", key)
	}
	return v, nil
}

func boolArg(req *structpb.Struct, key string) bool {
	return req.GetFields()[key].GetBoolValue()
}

func stringsArg(req *structpb.Struct, key string) []string {
	var out []string
	for _, v := range req.GetFields()[key].GetListValue().GetValues() {
		if s := v.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// reply builds a response Struct, reporting unencodable values as Internal.
func reply(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func empty() (*structpb.Struct, error) {
	return &structpb.Struct{}, nil
}

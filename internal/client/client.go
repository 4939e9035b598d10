// Package client talks to a session daemon over its Unix socket.
package client

import (
	"context"
	"fmt"
	"io"

	"github.com/matheus3301/chatsync/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call invokes a unary method of service with args as the request fields.
func (c *Client) Call(ctx context.Context, service, method string, args map[string]any) (*structpb.Struct, error) {
	if args == nil {
		args = map[string]any{}
	}
	in, err := structpb.NewStruct(args)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.FullMethod(service, method), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Session calls a SessionService method.
func (c *Client) Session(ctx context.Context, method string, args map[string]any) (*structpb.Struct, error) {
	return c.Call(ctx, api.SessionServiceName, method, args)
}

// Friends calls a FriendService method.
func (c *Client) Friends(ctx context.Context, method string, args map[string]any) (*structpb.Struct, error) {
	return c.Call(ctx, api.FriendServiceName, method, args)
}

// Chats calls a ChatService method.
func (c *Client) Chats(ctx context.Context, method string, args map[string]any) (*structpb.Struct, error) {
	return c.Call(ctx, api.ChatServiceName, method, args)
}

var watchDesc = &grpc.StreamDesc{StreamName: "WatchEvents", ServerStreams: true}

// Watch streams daemon events with kinds under namespace to fn until ctx
// ends, the stream closes or fn returns an error.
func (c *Client) Watch(ctx context.Context, namespace string, fn func(*structpb.Struct) error) error {
	stream, err := c.conn.NewStream(ctx, watchDesc, api.FullMethod(api.SessionServiceName, "WatchEvents"))
	if err != nil {
		return err
	}
	in, err := structpb.NewStruct(map[string]any{"namespace": namespace})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		evt := new(structpb.Struct)
		if err := stream.RecvMsg(evt); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}

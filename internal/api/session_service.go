package api

import (
	"context"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/notify"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/status"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Seeder re-runs the session's seeding phase.
type Seeder interface {
	Seed(ctx context.Context) error
}

// SessionService reports daemon state, the pending-write queue and streams
// bus events.
type SessionService struct {
	sessionName string
	userID      string
	startedAt   time.Time
	machine     *status.Machine
	bus         *bus.Bus
	notifier    *notify.Notifier
	sender      *outbox.Sender
	seeder      Seeder
}

// NewSessionService creates a new session service. seeder may be nil.
func NewSessionService(sessionName, userID string, machine *status.Machine, b *bus.Bus, n *notify.Notifier, sender *outbox.Sender, seeder Seeder) *SessionService {
	return &SessionService{
		sessionName: sessionName,
		userID:      userID,
		startedAt:   time.Now(),
		machine:     machine,
		bus:         b,
		notifier:    n,
		sender:      sender,
		seeder:      seeder,
	}
}

// SessionServiceDesc describes SessionService for grpc.Server.RegisterService.
var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "GetStatus", (*SessionService).GetStatus),
		unary(SessionServiceName, "GetNotification", (*SessionService).GetNotification),
		unary(SessionServiceName, "ListPendingWrites", (*SessionService).ListPendingWrites),
		unary(SessionServiceName, "Repair", (*SessionService).Repair),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(structpb.Struct)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(*SessionService).WatchEvents(in, stream)
			},
		},
	},
}

func (s *SessionService) GetStatus(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	current := s.machine.Current()
	pending := 0
	if s.sender != nil {
		pending = len(s.sender.Pending())
	}
	return reply(map[string]any{
		"session":       s.sessionName,
		"user":          s.userID,
		"status":        string(current),
		"sinceUnixMs":   millis(s.machine.Since()),
		"uptimeMs":      time.Since(s.startedAt).Milliseconds(),
		"pendingWrites": pending,
		"droppedEvents": s.bus.Dropped(),
	})
}

func (s *SessionService) GetNotification(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	note, ok := s.notifier.Last()
	if !ok {
		return reply(map[string]any{"present": false})
	}
	v := notificationValue(note)
	v["present"] = true
	return reply(v)
}

func (s *SessionService) ListPendingWrites(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	ops := s.sender.Pending()
	out := make([]any, len(ops))
	for i, op := range ops {
		out[i] = opValue(op)
	}
	return reply(map[string]any{"writes": out})
}

// Repair retries every queued write once and re-seeds a degraded session.
func (s *SessionService) Repair(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	before := len(s.sender.Pending())
	remaining := s.sender.Flush(ctx)
	if err := ctx.Err(); err != nil {
		return nil, toStatus(err)
	}
	reseeded := false
	if s.seeder != nil && s.machine.Current() == status.Degraded {
		reseeded = s.seeder.Seed(ctx) == nil
	}
	return reply(map[string]any{
		"attempted": before,
		"remaining": remaining,
		"reseeded":  reseeded,
		"status":    string(s.machine.Current()),
	})
}

// WatchEvents streams bus events whose kind starts with the optional
// "namespace" argument until the client goes away.
func (s *SessionService) WatchEvents(req *structpb.Struct, stream grpc.ServerStream) error {
	ch, unsub := s.bus.Subscribe(stringArg(req, "namespace"), 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			out, err := reply(eventValue(s.sessionName, evt))
			if err != nil {
				return err
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

package api_test

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chats"
	"github.com/matheus3301/chatsync/internal/client"
	"github.com/matheus3301/chatsync/internal/docstore"
	"github.com/matheus3301/chatsync/internal/friends"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/notify"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/schema"
	"github.com/matheus3301/chatsync/internal/status"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const self = "alice"

type harness struct {
	mem      *docstore.Memory
	notifier *notify.Notifier
	client   *client.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	// Use a short path to stay under the Unix socket length limit.
	dir, err := os.MkdirTemp("/tmp", "chatsync-api-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	socketPath := filepath.Join(dir, "d.sock")

	mem := docstore.NewMemory()
	b := bus.New()
	n := notify.New(b, 0)
	sender := outbox.NewSender(mem, b, n, zap.NewNop(), time.Hour, 3)
	fe := friends.NewEngine(self, mem, sender, n, b, zap.NewNop())
	ce := chats.NewEngine(self, mem, n, b, zap.NewNop())
	t.Cleanup(fe.Stop)
	t.Cleanup(ce.Stop)

	srv := grpc.NewServer()
	srv.RegisterService(&api.SessionServiceDesc, api.NewSessionService("test", self, status.NewMachine(b), b, n, sender, nil))
	srv.RegisterService(&api.FriendServiceDesc, api.NewFriendService(fe))
	srv.RegisterService(&api.ChatServiceDesc, api.NewChatService(ce, self))

	lis, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := client.New(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })

	return &harness{mem: mem, notifier: n, client: c}
}

func (h *harness) user(t *testing.T, id, name string) {
	t.Helper()
	if err := h.mem.Set(context.Background(), schema.UserPath(id), model.User{ID: id, DisplayName: name}); err != nil {
		t.Fatal(err)
	}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func listIDs(s *structpb.Struct, field, key string) []string {
	var out []string
	for _, v := range s.GetFields()[field].GetListValue().GetValues() {
		out = append(out, v.GetStructValue().GetFields()[key].GetStringValue())
	}
	return out
}

func TestGetStatus(t *testing.T) {
	h := newHarness(t)
	resp, err := h.client.Session(testContext(t), "GetStatus", nil)
	if err != nil {
		t.Fatalf("GetStatus error = %v", err)
	}
	fields := resp.GetFields()
	if got := fields["session"].GetStringValue(); got != "test" {
		t.Errorf("session = %q, want test", got)
	}
	if got := fields["user"].GetStringValue(); got != self {
		t.Errorf("user = %q, want %q", got, self)
	}
	if got := fields["status"].GetStringValue(); got != string(status.Booting) {
		t.Errorf("status = %q, want BOOTING", got)
	}
	if got := fields["pendingWrites"].GetNumberValue(); got != 0 {
		t.Errorf("pendingWrites = %v, want 0", got)
	}
}

func TestSearchAndAccept(t *testing.T) {
	h := newHarness(t)
	ctx := testContext(t)
	h.user(t, self, "Alice")
	h.user(t, "bob", "bob")
	h.user(t, "bea", "Bea")

	resp, err := h.client.Friends(ctx, "Search", map[string]any{"key": "b"})
	if err != nil {
		t.Fatalf("Search error = %v", err)
	}
	got := listIDs(resp, "searchResults", "id")
	if len(got) != 2 {
		t.Fatalf("searchResults = %v, want bea and bob", got)
	}

	if _, err := h.client.Friends(ctx, "Accept", map[string]any{"id": "bob"}); err != nil {
		t.Fatalf("Accept error = %v", err)
	}
	if !h.mem.Exists(schema.FriendPath(self, "bob")) || !h.mem.Exists(schema.FriendPath("bob", self)) {
		t.Error("both relationship records should exist")
	}
}

func TestChatRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := testContext(t)

	resp, err := h.client.Chats(ctx, "OpenOrCreate", map[string]any{"members": []any{"bob"}})
	if err != nil {
		t.Fatalf("OpenOrCreate error = %v", err)
	}
	chatID := resp.GetFields()["chatID"].GetStringValue()
	if chatID == "" || !resp.GetFields()["created"].GetBoolValue() {
		t.Fatalf("OpenOrCreate = %v", resp)
	}

	again, err := h.client.Chats(ctx, "OpenOrCreate", map[string]any{"members": []any{"bob"}})
	if err != nil {
		t.Fatal(err)
	}
	if again.GetFields()["chatID"].GetStringValue() != chatID || again.GetFields()["created"].GetBoolValue() {
		t.Errorf("second OpenOrCreate = %v, want existing %s", again, chatID)
	}

	msg, err := h.client.Chats(ctx, "Send", map[string]any{"chatID": chatID, "content": "hi"})
	if err != nil {
		t.Fatalf("Send error = %v", err)
	}
	if msg.GetFields()["content"].GetStringValue() != "hi" {
		t.Errorf("Send = %v", msg)
	}
	if !h.mem.Exists(schema.InboxPath("bob", msg.GetFields()["id"].GetStringValue())) {
		t.Error("message not delivered to bob's inbox")
	}

	snap, err := h.client.Chats(ctx, "Snapshot", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := listIDs(snap, "summaries", "chatID"); len(got) != 1 || got[0] != chatID {
		t.Errorf("summaries = %v", got)
	}

	unread, err := h.client.Chats(ctx, "CountUnread", nil)
	if err != nil {
		t.Fatal(err)
	}
	if n := unread.GetFields()["unread"].GetNumberValue(); n != 0 {
		t.Errorf("unread = %v, want 0", n)
	}
}

func TestErrorCodes(t *testing.T) {
	h := newHarness(t)
	ctx := testContext(t)

	tests := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{"missing argument", func() error {
			_, err := h.client.Chats(ctx, "Open", nil)
			return err
		}, codes.InvalidArgument},
		{"unknown chat", func() error {
			_, err := h.client.Chats(ctx, "Open", map[string]any{"chatID": "nope"})
			return err
		}, codes.NotFound},
		{"empty message", func() error {
			_, err := h.client.Chats(ctx, "Send", map[string]any{"chatID": "nope"})
			return err
		}, codes.InvalidArgument},
		{"missing profile", func() error {
			_, err := h.client.Friends(ctx, "GetProfile", nil)
			return err
		}, codes.NotFound},
		{"lonely chat", func() error {
			_, err := h.client.Chats(ctx, "OpenOrCreate", map[string]any{"members": []any{self}})
			return err
		}, codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if got := grpcstatus.Code(err); got != tt.want {
				t.Errorf("code = %v, want %v (err = %v)", got, tt.want, err)
			}
		})
	}
}

func TestProfileRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := testContext(t)

	if _, err := h.client.Friends(ctx, "SaveProfile", map[string]any{"displayName": "Alice"}); err != nil {
		t.Fatalf("SaveProfile error = %v", err)
	}
	resp, err := h.client.Friends(ctx, "GetProfile", nil)
	if err != nil {
		t.Fatalf("GetProfile error = %v", err)
	}
	if resp.GetFields()["id"].GetStringValue() != self || resp.GetFields()["displayName"].GetStringValue() != "Alice" {
		t.Errorf("GetProfile = %v", resp)
	}
}

func TestRepairFlushesQueue(t *testing.T) {
	h := newHarness(t)
	ctx := testContext(t)

	offline := errors.New("offline")
	h.mem.SetFault(func(m docstore.Method, path string) error {
		if path == schema.FriendPath("bob", self) {
			return offline
		}
		return nil
	})
	if _, err := h.client.Friends(ctx, "Accept", map[string]any{"id": "bob"}); err != nil {
		t.Fatal(err)
	}

	pending, err := h.client.Session(ctx, "ListPendingWrites", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := listIDs(pending, "writes", "path"); len(got) != 1 || got[0] != schema.FriendPath("bob", self) {
		t.Fatalf("pending writes = %v", got)
	}

	h.mem.SetFault(nil)
	resp, err := h.client.Session(ctx, "Repair", nil)
	if err != nil {
		t.Fatalf("Repair error = %v", err)
	}
	if resp.GetFields()["attempted"].GetNumberValue() != 1 || resp.GetFields()["remaining"].GetNumberValue() != 0 {
		t.Errorf("Repair = %v", resp)
	}
	if !h.mem.Exists(schema.FriendPath("bob", self)) {
		t.Error("queued write was not applied")
	}
}

func TestWatchEvents(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *structpb.Struct, 1)
	stop := errors.New("stop")
	go func() {
		_ = h.client.Watch(ctx, "notify.", func(evt *structpb.Struct) error {
			got <- evt
			return stop
		})
	}()

	// The subscription is registered asynchronously; keep posting until one arrives.
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case evt := <-got:
			fields := evt.GetFields()
			if fields["kind"].GetStringValue() != bus.NotifyPosted {
				t.Errorf("kind = %q", fields["kind"].GetStringValue())
			}
			if fields["session"].GetStringValue() != "test" {
				t.Errorf("session = %q", fields["session"].GetStringValue())
			}
			payload := fields["payload"].GetStructValue().GetFields()
			if payload["message"].GetStringValue() != "hello" || payload["level"].GetStringValue() != "info" {
				t.Errorf("payload = %v", payload)
			}
			return
		case <-ticker.C:
			h.notifier.PostInfo("hello")
		case <-ctx.Done():
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestSaveProfileMergesFields(t *testing.T) {
	h := newHarness(t)
	ctx := testContext(t)
	if err := h.mem.Set(ctx, schema.UserPath(self), model.User{ID: self, DisplayName: "Alice", Avatar: "a.png"}); err != nil {
		t.Fatal(err)
	}

	if _, err := h.client.Friends(ctx, "SaveProfile", map[string]any{"displayName": "Alice B."}); err != nil {
		t.Fatalf("SaveProfile error = %v", err)
	}
	resp, err := h.client.Friends(ctx, "GetProfile", nil)
	if err != nil {
		t.Fatal(err)
	}
	fields := resp.GetFields()
	if fields["displayName"].GetStringValue() != "Alice B." || fields["avatar"].GetStringValue() != "a.png" {
		t.Errorf("GetProfile = %v", resp)
	}

	_, err = h.client.Friends(ctx, "SaveProfile", map[string]any{"displayName": ""})
	if got := grpcstatus.Code(err); got != codes.InvalidArgument {
		t.Errorf("empty name code = %v, want InvalidArgument", got)
	}
}

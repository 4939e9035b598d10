package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/docstore"
	"github.com/matheus3301/chatsync/internal/model"
)

func doc(t *testing.T, path string, v any) docstore.Document {
	t.Helper()
	data, err := docstore.Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	_, id := docstore.Split(path)
	return docstore.Document{ID: id, Path: path, Data: data}
}

func TestDecodeMessage(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_123)
	in := model.Message{
		ID: "m1", ContentType: model.Text, Content: "hi",
		Timestamp: ts, ChatID: "c1", SenderID: "u1", ReadBy: []string{"u2"},
	}
	got, err := DecodeMessage(doc(t, MessagePath("c1", "m1"), in))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, ts)
	}
	if got.SenderID != "u1" || len(got.ReadBy) != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestDecodeMessageRejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
	}{
		{"missing chat", map[string]any{"id": "m", "senderID": "u", "contentType": "text"}},
		{"missing sender", map[string]any{"id": "m", "chatID": "c", "contentType": "text"}},
		{"unknown type", map[string]any{"id": "m", "chatID": "c", "senderID": "u", "contentType": "sticker"}},
		{"wrong field type", map[string]any{"id": "m", "chatID": "c", "senderID": "u", "contentType": "text", "timestamp": "yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage(docstore.Document{ID: "m", Path: "chats/c/messages/m", Data: tt.data})
			if !errors.Is(err, ErrDecode) {
				t.Errorf("error = %v, want ErrDecode", err)
			}
		})
	}
}

func TestDecodeFriendReferenceFallsBackToDocumentID(t *testing.T) {
	ref, err := DecodeFriendReference(doc(t, FriendPath("a", "b"), map[string]any{"notifications": true}))
	if err != nil {
		t.Fatal(err)
	}
	if ref.ID != "b" || !ref.Notifications {
		t.Errorf("got %+v, want {b true}", ref)
	}
}

func TestDecodeUserIDMismatch(t *testing.T) {
	_, err := DecodeUser(doc(t, UserPath("a"), model.User{ID: "b"}))
	if !errors.Is(err, ErrDecode) {
		t.Errorf("error = %v, want ErrDecode", err)
	}
}

func TestDecodeChatNeedsMembers(t *testing.T) {
	if _, err := DecodeChat(doc(t, ChatPath("c"), map[string]any{"chatID": "c"})); !errors.Is(err, ErrDecode) {
		t.Errorf("error = %v, want ErrDecode", err)
	}
	c, err := DecodeChat(doc(t, ChatPath("c"), model.Chat{Members: []string{"a", "b"}}))
	if err != nil {
		t.Fatal(err)
	}
	if c.ID != "c" {
		t.Errorf("id = %q, want c", c.ID)
	}
}

func TestPaths(t *testing.T) {
	tests := []struct{ got, want string }{
		{FriendPath("a", "b"), "users/a/friends/b"},
		{RequestPath("a", "b"), "users/a/friendRequests/b"},
		{MembershipPath("a", "c"), "users/a/chats/c"},
		{InboxPath("a", "m"), "users/a/incoming/m"},
		{MessagePath("c", "m"), "chats/c/messages/m"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("path = %q, want %q", tt.got, tt.want)
		}
	}
}

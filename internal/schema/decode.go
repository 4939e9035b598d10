package schema

import (
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/docstore"
	"github.com/matheus3301/chatsync/internal/model"
)

// ErrDecode marks a document that does not have the expected shape.
var ErrDecode = errors.New("decode document")

// Field names used in queries.
const (
	FieldDisplayName = "displayName"
	FieldMembers     = "members"
	FieldTimestamp   = "timestamp"
	FieldReadBy      = "readBy"
	FieldNotify      = "notifications"
)

// Membership links a user to a chat so later sessions know to load it.
type Membership struct {
	ChatID    string `json:"chatID"`
	UpdatedAt int64  `json:"updatedAt"`
}

// NewMembership stamps a membership marker.
func NewMembership(chatID string, at time.Time) Membership {
	return Membership{ChatID: chatID, UpdatedAt: at.UnixMilli()}
}

func decodeErr(doc docstore.Document, format string, args ...any) error {
	return fmt.Errorf("%w %s: %s", ErrDecode, doc.Path, fmt.Sprintf(format, args...))
}

// DecodeUser parses a users/{uid} document.
func DecodeUser(doc docstore.Document) (model.User, error) {
	var u model.User
	if err := doc.Decode(&u); err != nil {
		return model.User{}, decodeErr(doc, "%v", err)
	}
	if u.ID == "" {
		u.ID = doc.ID
	}
	if u.ID != doc.ID {
		return model.User{}, decodeErr(doc, "id %q does not match document", u.ID)
	}
	return u, nil
}

// DecodeFriendReference parses a friends or friendRequests entry.
func DecodeFriendReference(doc docstore.Document) (model.FriendReference, error) {
	var ref model.FriendReference
	if err := doc.Decode(&ref); err != nil {
		return model.FriendReference{}, decodeErr(doc, "%v", err)
	}
	if ref.ID == "" {
		ref.ID = doc.ID
	}
	if ref.ID == "" {
		return model.FriendReference{}, decodeErr(doc, "missing id")
	}
	return ref, nil
}

// DecodeMessage parses a message or inbox document.
func DecodeMessage(doc docstore.Document) (model.Message, error) {
	var m model.Message
	if err := doc.Decode(&m); err != nil {
		return model.Message{}, decodeErr(doc, "%v", err)
	}
	if m.ID == "" {
		m.ID = doc.ID
	}
	switch {
	case m.ChatID == "":
		return model.Message{}, decodeErr(doc, "missing chatID")
	case m.SenderID == "":
		return model.Message{}, decodeErr(doc, "missing senderID")
	case !m.ContentType.Valid():
		return model.Message{}, decodeErr(doc, "unknown content type %q", m.ContentType)
	}
	return m, nil
}

// DecodeChat parses a chats/{chatID} document.
func DecodeChat(doc docstore.Document) (model.Chat, error) {
	var c model.Chat
	if err := doc.Decode(&c); err != nil {
		return model.Chat{}, decodeErr(doc, "%v", err)
	}
	if c.ID == "" {
		c.ID = doc.ID
	}
	if len(c.Members) == 0 {
		return model.Chat{}, decodeErr(doc, "no members")
	}
	return c, nil
}

// DecodeMembership parses a users/{uid}/chats/{chatID} marker.
func DecodeMembership(doc docstore.Document) (Membership, error) {
	var m Membership
	if err := doc.Decode(&m); err != nil {
		return Membership{}, decodeErr(doc, "%v", err)
	}
	if m.ChatID == "" {
		m.ChatID = doc.ID
	}
	return m, nil
}

package model

import (
	"encoding/json"
	"slices"
	"time"
)

// ContentType classifies a message payload.
type ContentType string

const (
	Text  ContentType = "text"
	Image ContentType = "image"
	Video ContentType = "video"
)

// Valid reports whether t is one of the known content types.
func (t ContentType) Valid() bool {
	switch t {
	case Text, Image, Video:
		return true
	}
	return false
}

// Message is a single chat message. ReadBy only ever grows.
type Message struct {
	ID          string
	ContentType ContentType
	Content     string
	Timestamp   time.Time
	ChatID      string
	SenderID    string
	ReadBy      []string
}

// wireMessage is the document shape; timestamps travel as Unix milliseconds.
type wireMessage struct {
	ID          string      `json:"id"`
	ContentType ContentType `json:"contentType"`
	Content     string      `json:"content"`
	Timestamp   int64       `json:"timestamp"`
	ChatID      string      `json:"chatID"`
	SenderID    string      `json:"senderID"`
	ReadBy      []string    `json:"readBy"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	readBy := m.ReadBy
	if readBy == nil {
		readBy = []string{}
	}
	return json.Marshal(wireMessage{
		ID:          m.ID,
		ContentType: m.ContentType,
		Content:     m.Content,
		Timestamp:   m.Timestamp.UnixMilli(),
		ChatID:      m.ChatID,
		SenderID:    m.SenderID,
		ReadBy:      readBy,
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{
		ID:          w.ID,
		ContentType: w.ContentType,
		Content:     w.Content,
		Timestamp:   time.UnixMilli(w.Timestamp),
		ChatID:      w.ChatID,
		SenderID:    w.SenderID,
		ReadBy:      w.ReadBy,
	}
	return nil
}

// CompareMessages orders messages by timestamp. Equal timestamps compare as
// equal; callers that insert keep arrival order among equals.
func CompareMessages(a, b Message) int {
	return a.Timestamp.Compare(b.Timestamp)
}

// ReadByUser reports whether uid has read m. A message is always read by its sender.
func (m Message) ReadByUser(uid string) bool {
	if uid == "" {
		return false
	}
	return m.SenderID == uid || slices.Contains(m.ReadBy, uid)
}

// MarkRead adds uid to ReadBy. Returns false if it was already there.
func (m *Message) MarkRead(uid string) bool {
	if slices.Contains(m.ReadBy, uid) {
		return false
	}
	m.ReadBy = append(slices.Clone(m.ReadBy), uid)
	return true
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	m.ReadBy = slices.Clone(m.ReadBy)
	return m
}

// MergeReaders returns the union of a and b, keeping a's order first.
func MergeReaders(a, b []string) []string {
	out := slices.Clone(a)
	for _, id := range b {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// MessageID is the identity key used by timelines.
func MessageID(m Message) string {
	return m.ID
}

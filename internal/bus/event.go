package bus

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event kinds published by the session. Observers subscribe by namespace
// prefix ("friends.", "chats.", ...).
const (
	FriendsChanged  = "friends.changed"
	RequestsChanged = "friends.requests_changed"
	SearchChanged   = "friends.search_changed"
	DetailClosed    = "friends.detail_closed"
	ProfileChanged  = "friends.profile_changed"

	SummariesChanged = "chats.summaries_changed"
	TimelineChanged  = "chats.timeline_changed"
	ChatOpened       = "chats.opened"
	ChatClosed       = "chats.closed"

	NotifyPosted = "notify.posted"

	WriteRetried   = "write.retried"
	WriteAbandoned = "write.abandoned"

	StatusChanged = "session.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(kind string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// Namespace returns the part of the kind before the first dot.
func (e Event) Namespace() string {
	ns, _, _ := strings.Cut(e.Kind, ".")
	return ns
}

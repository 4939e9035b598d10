// Package notify holds the session's single "last notification" slot.
// Posting replaces whatever was there; observers learn about new posts
// through the bus.
package notify

import (
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
)

// Level classifies a notification.
type Level int

const (
	Info Level = iota
	Error
)

func (l Level) String() string {
	if l == Error {
		return "error"
	}
	return "info"
}

// Notification is a user-facing message.
type Notification struct {
	Level   Level
	Message string
	At      time.Time
}

// Notifier stores the most recent notification.
type Notifier struct {
	mu   sync.RWMutex
	last *Notification
	seq  uint64
	ttl  time.Duration
	bus  *bus.Bus
	now  func() time.Time
}

// New creates a notifier. A zero ttl keeps notifications until replaced.
// The bus may be nil.
func New(b *bus.Bus, ttl time.Duration) *Notifier {
	return &Notifier{bus: b, ttl: ttl, now: time.Now}
}

// Post replaces the current notification.
func (n *Notifier) Post(level Level, msg string) {
	note := Notification{Level: level, Message: msg, At: n.now()}
	n.mu.Lock()
	n.last = &note
	n.seq++
	n.mu.Unlock()

	if n.bus != nil {
		n.bus.Emit(bus.NotifyPosted, note)
	}
}

// PostError posts an error notification.
func (n *Notifier) PostError(msg string) { n.Post(Error, msg) }

// PostInfo posts an informational notification.
func (n *Notifier) PostInfo(msg string) { n.Post(Info, msg) }

// Last returns the current notification, or false when there is none or it
// has expired.
func (n *Notifier) Last() (Notification, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.last == nil {
		return Notification{}, false
	}
	if n.ttl > 0 && n.now().After(n.last.At.Add(n.ttl)) {
		return Notification{}, false
	}
	return *n.last, true
}

// Count returns how many notifications have been posted.
func (n *Notifier) Count() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.seq
}

// Clear empties the slot.
func (n *Notifier) Clear() {
	n.mu.Lock()
	n.last = nil
	n.mu.Unlock()
}

// Package timeline keeps the message sequence of the open conversation.
package timeline

import (
	"slices"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/ordering"
)

// Timeline is sorted ascending by the message order with no duplicate ids.
// Not safe for concurrent use.
type Timeline struct {
	msgs []model.Message
}

// New builds a timeline from msgs in any order. Later duplicates of an id
// are merged into the first.
func New(msgs []model.Message) *Timeline {
	t := &Timeline{}
	for _, m := range msgs {
		t.Insert(m)
	}
	return t
}

// Insert adds m at its sorted position. If a message with the same id is
// already present, only its readers are merged and inserted is false.
func (t *Timeline) Insert(m model.Message) (index int, inserted bool) {
	if i := t.index(m.ID); i >= 0 {
		t.msgs[i].ReadBy = model.MergeReaders(t.msgs[i].ReadBy, m.ReadBy)
		return i, false
	}
	t.msgs, index = ordering.Insert(t.msgs, m.Clone(), model.CompareMessages, ordering.Ascending)
	return index, true
}

// MarkRead records uid as a reader of message id.
func (t *Timeline) MarkRead(id, uid string) bool {
	i := t.index(id)
	if i < 0 {
		return false
	}
	return t.msgs[i].MarkRead(uid)
}

// Get returns the message with id.
func (t *Timeline) Get(id string) (model.Message, bool) {
	if i := t.index(id); i >= 0 {
		return t.msgs[i].Clone(), true
	}
	return model.Message{}, false
}

// Len returns the number of messages.
func (t *Timeline) Len() int { return len(t.msgs) }

// Messages returns a deep copy of the sequence.
func (t *Timeline) Messages() []model.Message {
	out := make([]model.Message, len(t.msgs))
	for i, m := range t.msgs {
		out[i] = m.Clone()
	}
	return out
}

func (t *Timeline) index(id string) int {
	return slices.IndexFunc(t.msgs, func(m model.Message) bool { return m.ID == id })
}

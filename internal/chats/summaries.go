package chats

import (
	"slices"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/ordering"
)

// summaries is the conversation list, most recent first, one entry per chat.
// Not safe for concurrent use.
type summaries struct {
	items []model.ChatSummary
}

func (s *summaries) index(chatID string) int {
	return slices.IndexFunc(s.items, func(c model.ChatSummary) bool { return c.ChatID == chatID })
}

func (s *summaries) has(chatID string) bool {
	return s.index(chatID) >= 0
}

// upsert merges m into its chat's summary. The summary keeps the later of
// the current and incoming message, so stale or repeated deliveries never
// move it backwards; a redelivery of the same message only merges readers.
// Reports whether anything changed.
func (s *summaries) upsert(m model.Message) bool {
	i := s.index(m.ChatID)
	if i < 0 {
		s.items, _ = ordering.Insert(s.items, model.ChatSummary{ChatID: m.ChatID, Latest: m.Clone()},
			model.CompareSummaries, ordering.Descending)
		return true
	}

	cur := s.items[i]
	switch {
	case cur.Latest.ID == m.ID:
		merged := model.MergeReaders(cur.Latest.ReadBy, m.ReadBy)
		if len(merged) == len(cur.Latest.ReadBy) {
			return false
		}
		s.items[i].Latest.ReadBy = merged
		return true
	case model.CompareMessages(m, cur.Latest) < 0:
		return false
	}

	// Re-position the touched summary.
	s.items = slices.Delete(s.items, i, i+1)
	s.items, _ = ordering.Insert(s.items, model.ChatSummary{ChatID: m.ChatID, Latest: m.Clone()},
		model.CompareSummaries, ordering.Descending)
	return true
}

// markRead records uid as a reader of the summary's latest message if it is msgID.
func (s *summaries) markRead(chatID, msgID, uid string) bool {
	i := s.index(chatID)
	if i < 0 || s.items[i].Latest.ID != msgID {
		return false
	}
	return s.items[i].Latest.MarkRead(uid)
}

func (s *summaries) get(chatID string) (model.ChatSummary, bool) {
	if i := s.index(chatID); i >= 0 {
		c := s.items[i]
		c.Latest = c.Latest.Clone()
		return c, true
	}
	return model.ChatSummary{}, false
}

func (s *summaries) unread(uid string) int {
	n := 0
	for _, c := range s.items {
		if c.Unread(uid) {
			n++
		}
	}
	return n
}

func (s *summaries) list() []model.ChatSummary {
	out := make([]model.ChatSummary, len(s.items))
	for i, c := range s.items {
		c.Latest = c.Latest.Clone()
		out[i] = c
	}
	return out
}

package model

import "slices"

// Chat is a conversation document. Title and cover are only set for group
// chats; 1:1 chats derive them from the other member at read time.
type Chat struct {
	ID           string   `json:"chatID"`
	Members      []string `json:"members"`
	Title        string   `json:"title,omitempty"`
	Cover        string   `json:"cover,omitempty"`
	CoverOverlay Color    `json:"coverOverlay"`
}

// ChatDisplay is what a conversation list shows for a chat.
type ChatDisplay struct {
	Title   string
	Cover   string
	Overlay Color
}

// IsDirect reports whether the chat has exactly two members.
func (c Chat) IsDirect() bool {
	return len(c.Members) == 2
}

// OtherMember returns the member of a 1:1 chat that is not self.
func (c Chat) OtherMember(self string) (string, bool) {
	if !c.IsDirect() {
		return "", false
	}
	switch self {
	case c.Members[0]:
		return c.Members[1], true
	case c.Members[1]:
		return c.Members[0], true
	}
	return "", false
}

// Display derives the chat's title and cover. other is the resolved other
// member of a 1:1 chat and may be nil.
func (c Chat) Display(other *User) ChatDisplay {
	if c.IsDirect() && other != nil && c.Title == "" {
		return ChatDisplay{Title: other.DisplayName, Cover: other.Avatar, Overlay: other.Overlay}
	}
	return ChatDisplay{Title: c.Title, Cover: c.Cover, Overlay: c.CoverOverlay}
}

// HasExactMembers reports whether the chat's member set equals ids,
// ignoring order and duplicates.
func (c Chat) HasExactMembers(ids []string) bool {
	return SameMembers(c.Members, ids)
}

// SameMembers compares two member lists as sets.
func SameMembers(a, b []string) bool {
	x, y := NormalizeMembers(a), NormalizeMembers(b)
	return slices.Equal(x, y)
}

// NormalizeMembers returns a sorted, de-duplicated copy of ids without empties.
func NormalizeMembers(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// ChatSummary is the latest known message of a conversation, keyed by ChatID.
type ChatSummary struct {
	ChatID string
	Latest Message
}

// Unread reports whether the summary's latest message is unread by uid.
func (s ChatSummary) Unread(uid string) bool {
	return !s.Latest.ReadByUser(uid)
}

// CompareSummaries orders summaries by their latest message.
func CompareSummaries(a, b ChatSummary) int {
	return CompareMessages(a.Latest, b.Latest)
}

// SummaryID is the identity key used by the summary list.
func SummaryID(s ChatSummary) string {
	return s.ChatID
}

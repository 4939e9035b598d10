package timeline

import (
	"time"

	"github.com/matheus3301/chatsync/internal/model"
)

// DisplayGap is the silence after which a message starts a new visual group.
const DisplayGap = 10 * time.Minute

// Entry is a timeline message annotated with its display flags.
type Entry struct {
	model.Message
	ShowHeader    bool
	ShowTimestamp bool
}

// ShowsHeader reports whether msgs[i] carries the sender avatar and name: the
// first message, a change of sender, or a gap longer than DisplayGap.
func ShowsHeader(msgs []model.Message, i int) bool {
	if i == 0 {
		return true
	}
	return msgs[i-1].SenderID != msgs[i].SenderID || gapAfter(msgs, i) > DisplayGap
}

// ShowsTimestamp reports whether msgs[i] carries a timestamp: the first
// message or a gap longer than DisplayGap.
func ShowsTimestamp(msgs []model.Message, i int) bool {
	return i == 0 || gapAfter(msgs, i) > DisplayGap
}

func gapAfter(msgs []model.Message, i int) time.Duration {
	return msgs[i].Timestamp.Sub(msgs[i-1].Timestamp)
}

// Entries annotates every message of msgs.
func Entries(msgs []model.Message) []Entry {
	out := make([]Entry, len(msgs))
	for i, m := range msgs {
		out[i] = Entry{
			Message:       m,
			ShowHeader:    ShowsHeader(msgs, i),
			ShowTimestamp: ShowsTimestamp(msgs, i),
		}
	}
	return out
}

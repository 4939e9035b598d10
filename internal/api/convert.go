package api

import (
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chats"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/notify"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/timeline"
)

// Conversions into the plain value forms accepted by structpb.NewValue.

func stringList(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func colorList(c model.Color) []any {
	return []any{c[0], c[1], c[2]}
}

func millis(t time.Time) any {
	if t.IsZero() {
		return int64(0)
	}
	return t.UnixMilli()
}

func friendValue(f model.Friend) map[string]any {
	return map[string]any{
		"id":            f.ID,
		"displayName":   f.DisplayName,
		"avatar":        f.Avatar,
		"overlay":       colorList(f.Overlay),
		"notifications": f.Notifications,
	}
}

func friendList(fs []model.Friend) []any {
	out := make([]any, len(fs))
	for i, f := range fs {
		out[i] = friendValue(f)
	}
	return out
}

func userValue(u model.User) map[string]any {
	return map[string]any{
		"id":            u.ID,
		"displayName":   u.DisplayName,
		"avatar":        u.Avatar,
		"overlay":       colorList(u.Overlay),
		"notifications": u.Notifications,
	}
}

func messageValue(m model.Message) map[string]any {
	return map[string]any{
		"id":          m.ID,
		"contentType": string(m.ContentType),
		"content":     m.Content,
		"timestamp":   millis(m.Timestamp),
		"chatID":      m.ChatID,
		"senderID":    m.SenderID,
		"readBy":      stringList(m.ReadBy),
	}
}

func summaryList(ss []model.ChatSummary, self string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = map[string]any{
			"chatID": s.ChatID,
			"latest": messageValue(s.Latest),
			"unread": s.Unread(self),
		}
	}
	return out
}

func chatValue(c model.Chat) map[string]any {
	return map[string]any{
		"chatID":       c.ID,
		"members":      stringList(c.Members),
		"title":        c.Title,
		"cover":        c.Cover,
		"coverOverlay": colorList(c.CoverOverlay),
	}
}

func displayValue(d model.ChatDisplay) map[string]any {
	return map[string]any{
		"title":   d.Title,
		"cover":   d.Cover,
		"overlay": colorList(d.Overlay),
	}
}

func entryList(es []timeline.Entry) []any {
	out := make([]any, len(es))
	for i, e := range es {
		v := messageValue(e.Message)
		v["showHeader"] = e.ShowHeader
		v["showTimestamp"] = e.ShowTimestamp
		out[i] = v
	}
	return out
}

func chatSnapshotValue(s chats.Snapshot, self string) map[string]any {
	out := map[string]any{
		"summaries": summaryList(s.Summaries, self),
		"timeline":  entryList(s.Timeline),
		"unread":    s.Unread,
	}
	if s.ActiveChat != nil {
		out["activeChat"] = chatValue(*s.ActiveChat)
	}
	return out
}

func opValue(op outbox.Op) map[string]any {
	return map[string]any{
		"id":        op.ID,
		"kind":      op.Kind.String(),
		"path":      op.Path,
		"label":     op.Label,
		"attempts":  op.Attempts,
		"lastError": op.LastError,
		"queuedAt":  millis(op.QueuedAt),
	}
}

func notificationValue(n notify.Notification) map[string]any {
	return map[string]any{
		"level":   n.Level.String(),
		"message": n.Message,
		"at":      millis(n.At),
	}
}

// eventValue flattens a bus event. Payloads of unknown types are omitted.
func eventValue(session string, evt bus.Event) map[string]any {
	out := map[string]any{
		"id":        evt.ID,
		"session":   session,
		"kind":      evt.Kind,
		"timestamp": millis(evt.Timestamp),
	}
	switch p := evt.Payload.(type) {
	case string:
		out["payload"] = p
	case notify.Notification:
		out["payload"] = notificationValue(p)
	case outbox.Result:
		v := opValue(p.Op)
		v["error"] = p.Err
		out["payload"] = v
	case status.StatusChange:
		out["payload"] = map[string]any{"from": string(p.From), "to": string(p.To)}
	}
	return out
}

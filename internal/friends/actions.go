package friends

import (
	"context"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/docstore"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/schema"
	"github.com/matheus3301/chatsync/internal/search"
	"go.uber.org/zap"
)

// SearchUsers replaces the search results with users whose display name
// starts with key in any of its case variants. Hits that are already friends
// reuse the cached friend copy. A failed query leaves the results empty.
func (e *Engine) SearchUsers(ctx context.Context, key string) error {
	var gen uint64
	if err := e.loop.Do(ctx, func() {
		e.searchGen++
		gen = e.searchGen
		e.results.Clear()
		e.emit(bus.SearchChanged)
	}); err != nil {
		return err
	}

	var hits []model.User
	seen := make(map[string]bool)
	for _, variant := range search.KeyVariants(key) {
		docs, err := e.store.Query(ctx, docstore.Query{
			Collection: schema.UsersCollection(),
			Filters:    docstore.PrefixRange(schema.FieldDisplayName, variant),
			OrderBy:    schema.FieldDisplayName,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Warn("user search failed", zap.String("key", key), zap.Error(err))
			e.notifier.PostError("Search failed")
			return nil
		}
		for _, doc := range docs {
			u, err := schema.DecodeUser(doc)
			if err != nil {
				e.logger.Warn("skipping undecodable user", zap.String("path", doc.Path), zap.Error(err))
				continue
			}
			if u.ID == e.self || seen[u.ID] {
				continue
			}
			seen[u.ID] = true
			hits = append(hits, u)
		}
	}

	return e.loop.Do(ctx, func() {
		if gen != e.searchGen {
			// A newer search started meanwhile.
			return
		}
		for _, u := range hits {
			if f, ok := e.friends.Get(u.ID); ok {
				e.results.Add(f)
				continue
			}
			e.results.Add(model.FriendFromUser(u))
		}
		e.sortResults()
	})
}

// SortSearchResults orders the results by relationship rank, then display name.
func (e *Engine) SortSearchResults(ctx context.Context) error {
	return e.loop.Do(ctx, e.sortResults)
}

func (e *Engine) sortResults() {
	e.results.SortStable(search.Comparator(relations{e}))
	e.emit(bus.SearchChanged)
}

// SendFriendRequest files a request in the target's incoming requests.
// Requests to oneself or to an empty id are ignored.
func (e *Engine) SendFriendRequest(ctx context.Context, targetID string) {
	if targetID == "" || e.self == "" || targetID == e.self {
		return
	}
	ref := model.FriendReference{ID: e.self, Notifications: true}
	if err := e.store.Set(ctx, schema.RequestPath(targetID, e.self), ref); err != nil {
		e.logger.Error("failed to send friend request", zap.String("target", targetID), zap.Error(err))
		e.notifier.PostError("Failed to send friend request")
		return
	}
	e.notifier.PostInfo("Friend request sent")
}

// AddFriend accepts the pending request from friendID: the request is
// removed and both sides' relationship records are written. The writes are
// independent; failed ones are reported and retried by the writer.
func (e *Engine) AddFriend(ctx context.Context, friendID string) {
	if friendID == "" || e.self == "" || friendID == e.self {
		return
	}
	_ = e.loop.Do(ctx, func() {
		if f, ok := e.requests.Get(friendID); ok {
			e.requests.Remove(friendID)
			e.friends.Add(f)
			e.results.Remove(friendID)
			e.emit(bus.RequestsChanged)
			e.emit(bus.FriendsChanged)
		}
	})

	ops := []outbox.Op{
		outbox.Delete(schema.RequestPath(e.self, friendID), "remove request from "+friendID),
		outbox.Set(schema.FriendPath(e.self, friendID),
			model.FriendReference{ID: friendID, Notifications: true}, "add "+friendID+" to my friends"),
		outbox.Set(schema.FriendPath(friendID, e.self),
			model.FriendReference{ID: e.self, Notifications: true}, "add me to "+friendID+"'s friends"),
	}
	e.writeAll(ctx, ops, "Failed to add friend")
}

// Unfriend deletes both sides' relationship records.
func (e *Engine) Unfriend(ctx context.Context, friendID string) {
	if friendID == "" || e.self == "" || friendID == e.self {
		return
	}
	_ = e.loop.Do(ctx, func() {
		if e.friends.Remove(friendID) {
			e.emit(bus.FriendsChanged)
		}
		// A search hit that was this friend becomes a stranger.
		stranger := func(f *model.Friend) {
			*f = model.FriendFromUser(model.User{ID: f.ID, DisplayName: f.DisplayName, Avatar: f.Avatar, Overlay: f.Overlay})
		}
		if e.results.Update(friendID, stranger) {
			e.sortResults()
		}
	})

	ops := []outbox.Op{
		outbox.Delete(schema.FriendPath(e.self, friendID), "remove "+friendID+" from my friends"),
		outbox.Delete(schema.FriendPath(friendID, e.self), "remove me from "+friendID+"'s friends"),
	}
	e.writeAll(ctx, ops, "Failed to remove friend")
}

func (e *Engine) writeAll(ctx context.Context, ops []outbox.Op, failure string) {
	failed := 0
	for _, op := range ops {
		if err := e.writer.Write(ctx, op); err != nil {
			failed++
			e.logger.Error("relationship write failed", zap.String("path", op.Path), zap.Error(err))
		}
	}
	if failed > 0 {
		e.notifier.PostError(failure)
	}
}

// RejectRequest deletes the incoming request from requesterID.
func (e *Engine) RejectRequest(ctx context.Context, requesterID string) {
	if requesterID == "" || e.self == "" {
		return
	}
	if err := e.store.Delete(ctx, schema.RequestPath(e.self, requesterID)); err != nil {
		e.logger.Error("failed to reject friend request", zap.String("from", requesterID), zap.Error(err))
		e.notifier.PostError("Failed to reject friend request")
		return
	}
	_ = e.loop.Do(ctx, func() {
		if e.requests.Remove(requesterID) {
			e.emit(bus.RequestsChanged)
		}
	})
}

// SetFriendNotifications toggles notifications for one relationship. The
// local copy changes when the friends feed reports the modification.
func (e *Engine) SetFriendNotifications(ctx context.Context, friendID string, on bool) {
	if friendID == "" || e.self == "" {
		return
	}
	err := e.store.Update(ctx, schema.FriendPath(e.self, friendID), docstore.SetField(schema.FieldNotify, on))
	if err != nil {
		e.logger.Error("failed to update notifications", zap.String("friend", friendID), zap.Error(err))
		e.notifier.PostError("Failed to update notifications")
	}
}

package friends

import (
	"context"
	"errors"
	"testing"

	"github.com/matheus3301/chatsync/internal/docstore"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/notify"
	"github.com/matheus3301/chatsync/internal/schema"
)

func TestSearchUsersRanksAndDedupes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, self, "bobcat")
	f.user(t, "b", "bob")
	f.user(t, "c", "Bobby")
	f.user(t, "d", "BOB")
	f.user(t, "e", "carl")
	f.user(t, "g", "bobo")

	f.apply(t, f.engine.HandleFriendsEvent, refEvent(docstore.Added, schema.FriendPath(self, "c"), "c", false))
	f.apply(t, f.engine.HandleRequestsEvent, requestEvent(docstore.Added, "d"))

	if err := f.engine.SearchUsers(ctx, "bob"); err != nil {
		t.Fatal(err)
	}
	s := f.snapshot(t)
	if !equalIDs(s.SearchResults, "c", "d", "b", "g") {
		t.Fatalf("results = %v, want [c d b g]", ids(s.SearchResults))
	}
	if s.SearchResults[0].Notifications {
		t.Error("friend hit should reuse the cached friend copy")
	}

	// A second search replaces the results.
	if err := f.engine.SearchUsers(ctx, "carl"); err != nil {
		t.Fatal(err)
	}
	if s := f.snapshot(t); !equalIDs(s.SearchResults, "e") {
		t.Errorf("results = %v, want [e]", ids(s.SearchResults))
	}
}

func TestSearchFailureLeavesEmptyResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "b", "bob")
	_ = f.engine.SearchUsers(ctx, "bob")

	f.mem.SetFault(func(m docstore.Method, _ string) error {
		if m == docstore.MethodQuery {
			return errors.New("unavailable")
		}
		return nil
	})
	if err := f.engine.SearchUsers(ctx, "bob"); err != nil {
		t.Fatalf("SearchUsers() error = %v, want nil", err)
	}
	if s := f.snapshot(t); len(s.SearchResults) != 0 {
		t.Errorf("results = %v, want empty", ids(s.SearchResults))
	}
	if note, ok := f.notifier.Last(); !ok || note.Level != notify.Error {
		t.Errorf("notification = %+v", note)
	}
}

func TestSortSearchResultsAfterRelationshipChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "b", "Amy")
	f.user(t, "c", "Ann")

	_ = f.engine.SearchUsers(ctx, "a")
	if s := f.snapshot(t); !equalIDs(s.SearchResults, "b", "c") {
		t.Fatalf("results = %v", ids(s.SearchResults))
	}

	f.apply(t, f.engine.HandleRequestsEvent, requestEvent(docstore.Added, "c"))
	if err := f.engine.SortSearchResults(ctx); err != nil {
		t.Fatal(err)
	}
	if s := f.snapshot(t); !equalIDs(s.SearchResults, "c", "b") {
		t.Errorf("results = %v, want [c b]", ids(s.SearchResults))
	}
}

func TestSendFriendRequestToSelfIsNoop(t *testing.T) {
	f := newFixture(t)

	f.engine.SendFriendRequest(context.Background(), self)
	f.engine.SendFriendRequest(context.Background(), "")

	if f.mem.Exists(schema.RequestPath(self, self)) {
		t.Error("self request written")
	}
	if f.notifier.Count() != 0 {
		t.Errorf("notifications posted: %d", f.notifier.Count())
	}
}

func TestSendFriendRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.engine.SendFriendRequest(ctx, "bob")
	doc, err := f.mem.Get(ctx, schema.RequestPath("bob", self))
	if err != nil || doc == nil {
		t.Fatalf("request not written: %v", err)
	}
	if doc.Data["id"] != self {
		t.Errorf("request data = %v", doc.Data)
	}
	if note, _ := f.notifier.Last(); note.Level != notify.Info {
		t.Errorf("notification = %+v", note)
	}

	f.mem.SetFault(func(docstore.Method, string) error { return errors.New("offline") })
	f.engine.SendFriendRequest(ctx, "carol")
	if note, _ := f.notifier.Last(); note.Level != notify.Error {
		t.Errorf("notification = %+v, want error", note)
	}
}

func TestAddFriendWritesBothSides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "bob", "Bob")
	_ = f.mem.Set(ctx, schema.RequestPath(self, "bob"), model.FriendReference{ID: "bob"})
	f.apply(t, f.engine.HandleRequestsEvent, requestEvent(docstore.Added, "bob"))

	f.engine.AddFriend(ctx, "bob")

	if f.mem.Exists(schema.RequestPath(self, "bob")) {
		t.Error("request not removed")
	}
	if !f.mem.Exists(schema.FriendPath(self, "bob")) || !f.mem.Exists(schema.FriendPath("bob", self)) {
		t.Error("relationship not written on both sides")
	}
	s := f.snapshot(t)
	if len(s.Requests) != 0 || !equalIDs(s.Friends, "bob") {
		t.Errorf("requests = %v friends = %v", ids(s.Requests), ids(s.Friends))
	}
	if f.notifier.Count() != 0 {
		t.Errorf("unexpected notification: %+v", f.notifier)
	}
}

func TestAddFriendPartialFailureQueuesRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	otherSide := schema.FriendPath("bob", self)
	f.mem.SetFault(func(m docstore.Method, path string) error {
		if path == otherSide {
			return errors.New("permission denied")
		}
		return nil
	})

	f.engine.AddFriend(ctx, "bob")

	if !f.mem.Exists(schema.FriendPath(self, "bob")) {
		t.Error("own side not written")
	}
	pending := f.sender.Pending()
	if len(pending) != 1 || pending[0].Path != otherSide {
		t.Fatalf("pending = %+v", pending)
	}
	if note, _ := f.notifier.Last(); note.Level != notify.Error || note.Message != "Failed to add friend" {
		t.Errorf("notification = %+v", note)
	}

	f.mem.SetFault(nil)
	if left := f.sender.Flush(ctx); left != 0 {
		t.Fatalf("Flush() left %d", left)
	}
	if !f.mem.Exists(otherSide) {
		t.Error("retry did not repair the other side")
	}
}

func TestUnfriendDeletesBothSides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "bob", "Bob")
	_ = f.mem.Set(ctx, schema.FriendPath(self, "bob"), model.FriendReference{ID: "bob"})
	_ = f.mem.Set(ctx, schema.FriendPath("bob", self), model.FriendReference{ID: self})
	f.apply(t, f.engine.HandleFriendsEvent, friendEvent(docstore.Added, "bob"))

	f.engine.Unfriend(ctx, "bob")

	if f.mem.Exists(schema.FriendPath(self, "bob")) || f.mem.Exists(schema.FriendPath("bob", self)) {
		t.Error("relationship still stored")
	}
	if s := f.snapshot(t); len(s.Friends) != 0 {
		t.Errorf("friends = %v", ids(s.Friends))
	}
}

func TestUnfriendReranksSearchResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "b", "Amy")
	f.user(t, "c", "Ann")
	f.apply(t, f.engine.HandleFriendsEvent, refEvent(docstore.Added, schema.FriendPath(self, "c"), "c", false))

	_ = f.engine.SearchUsers(ctx, "a")
	if s := f.snapshot(t); !equalIDs(s.SearchResults, "c", "b") {
		t.Fatalf("results = %v, want [c b]", ids(s.SearchResults))
	}

	f.engine.Unfriend(ctx, "c")

	s := f.snapshot(t)
	if !equalIDs(s.SearchResults, "b", "c") {
		t.Errorf("results = %v, want [b c]", ids(s.SearchResults))
	}
	for _, r := range s.SearchResults {
		if r.ID == "c" && !r.Notifications {
			t.Error("stale friend copy kept in search results")
		}
	}
}

func TestRejectRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "bob", "Bob")
	_ = f.mem.Set(ctx, schema.RequestPath(self, "bob"), model.FriendReference{ID: "bob"})
	f.apply(t, f.engine.HandleRequestsEvent, requestEvent(docstore.Added, "bob"))

	f.engine.RejectRequest(ctx, "bob")

	if f.mem.Exists(schema.RequestPath(self, "bob")) {
		t.Error("request still stored")
	}
	if s := f.snapshot(t); len(s.Requests) != 0 {
		t.Errorf("requests = %v", ids(s.Requests))
	}
}

func TestSetFriendNotificationsMissing(t *testing.T) {
	f := newFixture(t)
	f.engine.SetFriendNotifications(context.Background(), "nobody", true)
	if note, ok := f.notifier.Last(); !ok || note.Level != notify.Error {
		t.Errorf("notification = %+v", note)
	}
}

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/docstore"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path, WithPollInterval(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (documents + index)", result.Version)
	}
}

func TestSetGetDelete(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	doc, err := db.Get(ctx, "users/u1")
	if err != nil {
		t.Fatal(err)
	}
	if doc != nil {
		t.Fatalf("expected nil for missing document, got %+v", doc)
	}

	if err := db.Set(ctx, "users/u1", map[string]any{"id": "u1", "displayName": "Alice"}); err != nil {
		t.Fatal(err)
	}
	doc, err = db.Get(ctx, "users/u1")
	if err != nil {
		t.Fatal(err)
	}
	if doc == nil || doc.ID != "u1" || doc.Data["displayName"] != "Alice" {
		t.Fatalf("Get() = %+v", doc)
	}

	if err := db.Delete(ctx, "users/u1"); err != nil {
		t.Fatal(err)
	}
	if err := db.Delete(ctx, "users/u1"); err != nil {
		t.Errorf("deleting a missing document: %v", err)
	}
	doc, _ = db.Get(ctx, "users/u1")
	if doc != nil {
		t.Error("document still present after Delete")
	}
}

func TestSetRejectsCollectionPath(t *testing.T) {
	db := testDB(t)
	if err := db.Set(context.Background(), "users", map[string]any{}); err == nil {
		t.Error("expected error for a path without document id")
	}
}

func TestUpdate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	err := db.Update(ctx, "chats/c1/messages/m1", docstore.ArrayUnion("readBy", "u2"))
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("Update() on missing doc error = %v, want ErrNotFound", err)
	}

	if err := db.Set(ctx, "chats/c1/messages/m1", map[string]any{"id": "m1", "readBy": []string{}}); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if err := db.Update(ctx, "chats/c1/messages/m1", docstore.ArrayUnion("readBy", "u2")); err != nil {
			t.Fatal(err)
		}
	}
	doc, err := db.Get(ctx, "chats/c1/messages/m1")
	if err != nil {
		t.Fatal(err)
	}
	readBy, _ := doc.Data["readBy"].([]any)
	if len(readBy) != 1 || readBy[0] != "u2" {
		t.Errorf("readBy = %v, want [u2]", doc.Data["readBy"])
	}
}

func TestQueryPrefixRange(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for id, name := range map[string]string{"u1": "ali", "u2": "alice", "u3": "bob", "u4": "Alex"} {
		if err := db.Set(ctx, "users/"+id, map[string]any{"id": id, "displayName": name}); err != nil {
			t.Fatal(err)
		}
	}

	docs, err := db.Query(ctx, docstore.Query{
		Collection: "users",
		Filters:    docstore.PrefixRange("displayName", "ali"),
		OrderBy:    "displayName",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].ID != "u1" || docs[1].ID != "u2" {
		t.Errorf("got %v, want [u1 u2]", ids(docs))
	}
}

func TestQueryArrayContainsOrderAndLimit(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	chats := []map[string]any{
		{"chatID": "c1", "members": []string{"a", "b"}, "rank": 3},
		{"chatID": "c2", "members": []string{"a", "c"}, "rank": 1},
		{"chatID": "c3", "members": []string{"b", "c"}, "rank": 2},
		{"chatID": "c4", "members": []string{"a"}, "rank": 2},
	}
	for _, c := range chats {
		if err := db.Set(ctx, "chats/"+c["chatID"].(string), c); err != nil {
			t.Fatal(err)
		}
	}

	docs, err := db.Query(ctx, docstore.Query{
		Collection: "chats",
		Filters:    []docstore.Filter{docstore.Where("members", docstore.ArrayContains, "a")},
		OrderBy:    "rank",
		Descending: true,
		Limit:      2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(docs); len(got) != 2 || got[0] != "c1" || got[1] != "c4" {
		t.Errorf("got %v, want [c1 c4]", got)
	}

	docs, err = db.Query(ctx, docstore.Query{
		Collection: "chats",
		Filters:    []docstore.Filter{docstore.Where("rank", docstore.Eq, 2)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(docs); len(got) != 2 || got[0] != "c3" || got[1] != "c4" {
		t.Errorf("got %v, want [c3 c4]", got)
	}
}

func TestQueryOnlyDirectChildren(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_ = db.Set(ctx, "users/u1", map[string]any{"id": "u1"})
	_ = db.Set(ctx, "users/u1/friends/u2", map[string]any{"id": "u2"})

	docs, err := db.Query(ctx, docstore.Query{Collection: "users"})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(docs); len(got) != 1 || got[0] != "u1" {
		t.Errorf("got %v, want [u1]", got)
	}
}

func TestSubscribeInitialAndLive(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	coll := "users/u1/friends"

	_ = db.Set(ctx, coll+"/b", map[string]any{"id": "b"})
	_ = db.Set(ctx, coll+"/a", map[string]any{"id": "a"})

	sub, err := db.Subscribe(ctx, coll)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	expect(t, sub, docstore.Added, "a")
	expect(t, sub, docstore.Added, "b")

	_ = db.Set(ctx, coll+"/a", map[string]any{"id": "a", "notifications": true})
	expect(t, sub, docstore.Modified, "a")

	_ = db.Delete(ctx, coll+"/b")
	evt := expect(t, sub, docstore.Removed, "b")
	if evt.Doc.Data["id"] != "b" {
		t.Errorf("removed event lost last data: %+v", evt.Doc)
	}

	_ = db.Set(ctx, coll+"/c", map[string]any{"id": "c"})
	expect(t, sub, docstore.Added, "c")
}

func TestSubscribeIgnoresIdenticalWrites(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_ = db.Set(ctx, "chats/c1", map[string]any{"chatID": "c1"})
	sub, err := db.Subscribe(ctx, "chats")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()
	expect(t, sub, docstore.Added, "c1")

	_ = db.Set(ctx, "chats/c1", map[string]any{"chatID": "c1"})
	select {
	case evt := <-sub.C:
		t.Errorf("unexpected event %v %s", evt.Kind, evt.Doc.ID)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestSubscribeAcrossConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	a, err := Open(path, WithPollInterval(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()
	if _, err := a.Migrate(); err != nil {
		t.Fatal(err)
	}
	b, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = b.Close() }()

	sub, err := a.Subscribe(context.Background(), "users/u1/incoming")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	if err := b.Set(context.Background(), "users/u1/incoming/m1", map[string]any{"id": "m1"}); err != nil {
		t.Fatal(err)
	}
	expect(t, sub, docstore.Added, "m1")
}

func TestCancelClosesFeed(t *testing.T) {
	db := testDB(t)
	sub, err := db.Subscribe(context.Background(), "users")
	if err != nil {
		t.Fatal(err)
	}
	sub.Cancel()
	sub.Cancel()

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("feed not closed after Cancel")
	}
}

func expect(t *testing.T, sub *docstore.Subscription, kind docstore.ChangeKind, id string) docstore.ChangeEvent {
	t.Helper()
	select {
	case evt := <-sub.C:
		if evt.Kind != kind || evt.Doc.ID != id {
			t.Fatalf("got %v %s, want %v %s", evt.Kind, evt.Doc.ID, kind, id)
		}
		return evt
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %v %s", kind, id)
	}
	return docstore.ChangeEvent{}
}

func ids(docs []docstore.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

// Package docstore defines the contract of the remote document store the
// engines synchronise against: CRUD on slash-separated document paths,
// simple queries, and per-collection change feeds.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNotFound is returned by Update when the target document does not exist.
var ErrNotFound = errors.New("document not found")

// Store is a document store with change feeds. Paths alternate
// collection/document segments, e.g. "users/u1/friends/u2".
type Store interface {
	// Get returns the document at path, or nil if it does not exist.
	Get(ctx context.Context, path string) (*Document, error)
	Set(ctx context.Context, path string, data any) error
	Update(ctx context.Context, path string, deltas ...Delta) error
	Delete(ctx context.Context, path string) error
	Query(ctx context.Context, q Query) ([]Document, error)
	// Subscribe streams an Added event for every document currently in the
	// collection, then live changes, until the subscription is cancelled.
	Subscribe(ctx context.Context, collection string) (*Subscription, error)
}

// Document is a stored JSON object.
type Document struct {
	ID   string
	Path string
	Data map[string]any
}

// Decode unmarshals the document data into v.
func (d Document) Decode(v any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// ChangeKind is the type of a change-feed event.
type ChangeKind int

const (
	Added ChangeKind = iota + 1
	Removed
	Modified
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// ChangeEvent is one delivery of a change feed. For Removed events Doc.Data
// holds the last known data, if any.
type ChangeEvent struct {
	Kind ChangeKind
	Doc  Document
}

// Subscription is a cancellable change feed. C is closed once the feed has
// shut down after Cancel or context cancellation.
type Subscription struct {
	C <-chan ChangeEvent

	once   sync.Once
	cancel func()
}

// NewSubscription wraps a producer channel and its cancel function.
func NewSubscription(c <-chan ChangeEvent, cancel func()) *Subscription {
	return &Subscription{C: c, cancel: cancel}
}

// Cancel stops the feed. Safe to call more than once and on a nil receiver.
func (s *Subscription) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Split returns the collection path and document id of a document path.
func Split(path string) (collection, id string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// Encode converts v into the generic JSON object form stored in documents.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("encode document: %T is not an object", v)
	}
	return out, nil
}

// Normalize maps a Go value onto its JSON-decoded representation so values
// from callers compare correctly with stored ones.
func Normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

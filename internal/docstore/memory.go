package docstore

import (
	"context"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"
)

// Method names a store operation for fault injection.
type Method string

const (
	MethodGet       Method = "get"
	MethodSet       Method = "set"
	MethodUpdate    Method = "update"
	MethodDelete    Method = "delete"
	MethodQuery     Method = "query"
	MethodSubscribe Method = "subscribe"
)

// FaultFunc decides whether an operation fails. A nil return lets it proceed.
type FaultFunc func(m Method, path string) error

// Memory is an in-process Store with push change feeds. It is safe for
// concurrent use and is the test double for the engines.
type Memory struct {
	mu    sync.Mutex
	docs  map[string]map[string]any
	subs  map[int]*memSub
	next  int
	fault FaultFunc
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]map[string]any),
		subs: make(map[int]*memSub),
	}
}

// SetFault installs a fault injector; nil removes it.
func (m *Memory) SetFault(f FaultFunc) {
	m.mu.Lock()
	m.fault = f
	m.mu.Unlock()
}

// Exists reports whether a document is stored at path.
func (m *Memory) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.docs[path]
	return ok
}

func (m *Memory) check(method Method, path string) error {
	if m.fault == nil {
		return nil
	}
	return m.fault(method, path)
}

func (m *Memory) Get(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(MethodGet, path); err != nil {
		return nil, err
	}
	data, ok := m.docs[path]
	if !ok {
		return nil, nil
	}
	doc := makeDoc(path, data)
	return &doc, nil
}

func (m *Memory) Set(ctx context.Context, path string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	encoded, err := Encode(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(MethodSet, path); err != nil {
		return err
	}
	prev, existed := m.docs[path]
	m.docs[path] = encoded
	switch {
	case !existed:
		m.publish(Added, path, encoded)
	case !reflect.DeepEqual(prev, encoded):
		m.publish(Modified, path, encoded)
	}
	return nil
}

func (m *Memory) Update(ctx context.Context, path string, deltas ...Delta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(MethodUpdate, path); err != nil {
		return err
	}
	cur, ok := m.docs[path]
	if !ok {
		return ErrNotFound
	}
	next := cloneData(cur)
	if err := ApplyDeltas(next, deltas); err != nil {
		return err
	}
	m.docs[path] = next
	if !reflect.DeepEqual(cur, next) {
		m.publish(Modified, path, next)
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(MethodDelete, path); err != nil {
		return err
	}
	prev, ok := m.docs[path]
	if !ok {
		return nil
	}
	delete(m.docs, path)
	m.publish(Removed, path, prev)
	return nil
}

func (m *Memory) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(MethodQuery, q.Collection); err != nil {
		return nil, err
	}
	var out []Document
	for _, path := range m.collectionPaths(q.Collection) {
		data := m.docs[path]
		if q.Matches(data) {
			out = append(out, makeDoc(path, data))
		}
	}
	if q.OrderBy != "" {
		slices.SortStableFunc(out, func(a, b Document) int {
			c, _ := compareValues(a.Data[q.OrderBy], b.Data[q.OrderBy])
			if q.Descending {
				return -c
			}
			return c
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) Subscribe(ctx context.Context, collection string) (*Subscription, error) {
	m.mu.Lock()
	if err := m.check(MethodSubscribe, collection); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	id := m.next
	m.next++
	sub := newMemSub(collection)
	for _, path := range m.collectionPaths(collection) {
		sub.push(ChangeEvent{Kind: Added, Doc: makeDoc(path, m.docs[path])})
	}
	m.subs[id] = sub
	m.mu.Unlock()

	go sub.run()

	cancel := func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
		close(sub.done)
	}
	s := NewSubscription(sub.out, cancel)
	go func() {
		select {
		case <-ctx.Done():
			s.Cancel()
		case <-sub.done:
		}
	}()
	return s, nil
}

// collectionPaths returns the sorted paths of documents directly inside collection.
// Caller holds m.mu.
func (m *Memory) collectionPaths(collection string) []string {
	var paths []string
	for path := range m.docs {
		if c, _ := Split(path); c == collection {
			paths = append(paths, path)
		}
	}
	slices.Sort(paths)
	return paths
}

// publish fans an event out to subscribers of the document's collection.
// Caller holds m.mu.
func (m *Memory) publish(kind ChangeKind, path string, data map[string]any) {
	collection, _ := Split(path)
	for _, sub := range m.subs {
		if sub.collection == collection {
			sub.push(ChangeEvent{Kind: kind, Doc: makeDoc(path, data)})
		}
	}
}

func makeDoc(path string, data map[string]any) Document {
	_, id := Split(path)
	return Document{ID: id, Path: path, Data: cloneData(data)}
}

func cloneData(data map[string]any) map[string]any {
	out := maps.Clone(data)
	for k, v := range out {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneData(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

// memSub queues events without bound so publishers never block on a slow
// consumer; a goroutine forwards them in order.
type memSub struct {
	collection string

	mu     sync.Mutex
	queue  []ChangeEvent
	notify chan struct{}
	out    chan ChangeEvent
	done   chan struct{}
}

func newMemSub(collection string) *memSub {
	return &memSub{
		collection: collection,
		notify:     make(chan struct{}, 1),
		out:        make(chan ChangeEvent),
		done:       make(chan struct{}),
	}
}

func (s *memSub) push(evt ChangeEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, evt)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *memSub) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		evt := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- evt:
		case <-s.done:
			return
		}
	}
}

// HasPrefix reports whether path lies inside the collection or document prefix.
func HasPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

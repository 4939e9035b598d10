package ordering

import "slices"

// Set is an insertion-ordered collection with at most one element per key.
// It is not safe for concurrent use; engines confine it to one goroutine.
type Set[T any] struct {
	key   func(T) string
	items []T
}

// NewSet creates an empty set keyed by key.
func NewSet[T any](key func(T) string) *Set[T] {
	return &Set[T]{key: key}
}

// Len returns the number of elements.
func (s *Set[T]) Len() int { return len(s.items) }

// Index returns the position of id, or -1.
func (s *Set[T]) Index(id string) int {
	return slices.IndexFunc(s.items, func(v T) bool { return s.key(v) == id })
}

// Contains reports whether id is present.
func (s *Set[T]) Contains(id string) bool { return s.Index(id) >= 0 }

// Get returns the element with id.
func (s *Set[T]) Get(id string) (T, bool) {
	if i := s.Index(id); i >= 0 {
		return s.items[i], true
	}
	var zero T
	return zero, false
}

// Add appends v unless its key is already present. Returns whether it was added.
func (s *Set[T]) Add(v T) bool {
	if s.Contains(s.key(v)) {
		return false
	}
	s.items = append(s.items, v)
	return true
}

// Remove deletes id. Returns whether it was present.
func (s *Set[T]) Remove(id string) bool {
	i := s.Index(id)
	if i < 0 {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	return true
}

// Update applies fn to the element with id in place; the key must not change.
func (s *Set[T]) Update(id string, fn func(*T)) bool {
	i := s.Index(id)
	if i < 0 {
		return false
	}
	fn(&s.items[i])
	return true
}

// Clear removes all elements.
func (s *Set[T]) Clear() { s.items = nil }

// SortStable reorders the elements by cmp, keeping equal elements in place.
func (s *Set[T]) SortStable(cmp func(a, b T) int) {
	slices.SortStableFunc(s.items, cmp)
}

// Items returns a copy of the elements in order.
func (s *Set[T]) Items() []T { return slices.Clone(s.items) }

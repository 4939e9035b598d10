// Package ordering holds the sorted-insertion algorithm shared by the chat
// summary list (descending) and the message timeline (ascending), and an
// identity-keyed ordered set.
package ordering

import (
	"slices"
	"sort"
)

// Direction is the sort direction of a sequence.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "descending"
	}
	return "ascending"
}

// InsertIndex returns where v goes in s, which is already sorted by cmp in
// direction dir. Among elements equal to v, v counts as the most recent
// arrival: it lands after them in an ascending sequence and before them in a
// descending one. O(log n).
func InsertIndex[T any](s []T, v T, cmp func(a, b T) int, dir Direction) int {
	return sort.Search(len(s), func(i int) bool {
		c := cmp(s[i], v)
		if dir == Descending {
			return c <= 0
		}
		return c > 0
	})
}

// Insert places v at its sorted position and returns the new slice and index.
func Insert[T any](s []T, v T, cmp func(a, b T) int, dir Direction) ([]T, int) {
	i := InsertIndex(s, v, cmp, dir)
	return slices.Insert(s, i, v), i
}

// IsSorted reports whether s is ordered by cmp in direction dir.
func IsSorted[T any](s []T, cmp func(a, b T) int, dir Direction) bool {
	for i := 1; i < len(s); i++ {
		c := cmp(s[i-1], s[i])
		if dir == Descending {
			c = -c
		}
		if c > 0 {
			return false
		}
	}
	return true
}

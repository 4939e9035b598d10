// Package search orders user-search hits by relationship and name.
package search

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/matheus3301/chatsync/internal/model"
)

// Rank is the relationship class of a hit; lower sorts first.
type Rank int

const (
	RankFriend Rank = iota
	RankRequested
	RankStranger
)

func (r Rank) String() string {
	switch r {
	case RankFriend:
		return "friend"
	case RankRequested:
		return "requested"
	default:
		return "stranger"
	}
}

// Relations answers relationship lookups for ranking.
type Relations interface {
	IsFriend(id string) bool
	IsRequested(id string) bool
}

// RankOf classifies f against the current relationships.
func RankOf(rel Relations, f model.Friend) Rank {
	switch {
	case rel.IsFriend(f.ID):
		return RankFriend
	case rel.IsRequested(f.ID):
		return RankRequested
	}
	return RankStranger
}

// Comparator orders hits by rank, then by display name (ordinal, case-sensitive).
func Comparator(rel Relations) func(a, b model.Friend) int {
	return func(a, b model.Friend) int {
		if c := cmp.Compare(RankOf(rel, a), RankOf(rel, b)); c != 0 {
			return c
		}
		return strings.Compare(a.DisplayName, b.DisplayName)
	}
}

// Sort stably orders hits in place; equal (rank, name) pairs keep their order.
func Sort(hits []model.Friend, rel Relations) {
	slices.SortStableFunc(hits, Comparator(rel))
}

// KeyVariants returns the distinct case forms of key that are queried to
// approximate a case-insensitive prefix search: lower case, first letter
// upper case, and upper case.
func KeyVariants(key string) []string {
	if key == "" {
		return nil
	}
	lower := strings.ToLower(key)
	variants := []string{lower, capitalize(lower), strings.ToUpper(key)}
	slices.Sort(variants)
	return slices.Compact(variants)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

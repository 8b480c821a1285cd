package model

import (
	"fmt"
	"sort"
	"strconv"
)

// ItemID is the ascending integer index of an item. It is persisted as a decimal string.
type ItemID int

// String returns the decimal encoding of the id.
func (id ItemID) String() string {
	return strconv.Itoa(int(id))
}

// ParseItemID parses the canonical decimal encoding produced by ItemID.String.
// Negative values, signs and leading zeros are rejected.
func ParseItemID(s string) (ItemID, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid item id '%s': %w", s, err)
	}
	if n < 0 || strconv.Itoa(n) != s {
		return 0, fmt.Errorf("invalid item id '%s': not a canonical non-negative decimal", s)
	}
	return ItemID(n), nil
}

// ItemSet is a set of item ids.
type ItemSet map[ItemID]struct{}

// NewItemSet returns a set containing ids.
func NewItemSet(ids ...ItemID) ItemSet {
	s := make(ItemSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s ItemSet) Has(id ItemID) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id and reports whether it was newly added.
func (s ItemSet) Add(id ItemID) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// CountBelow returns the number of ids in 0..n-1.
func (s ItemSet) CountBelow(n int) int {
	count := 0
	for id := range s {
		if int(id) < n {
			count++
		}
	}
	return count
}

// Sorted returns the ids in ascending order.
func (s ItemSet) Sorted() []ItemID {
	ids := make([]ItemID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clone returns an independent copy.
func (s ItemSet) Clone() ItemSet {
	c := make(ItemSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

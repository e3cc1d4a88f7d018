package models

import (
	"sort"
	"time"
)

// IssueMapping is the hand-off artifact recording which target issue each
// source issue was synced to. It is serialized as JSON with string keys.
type IssueMapping struct {
	Source    string         `json:"source"`
	Target    string         `json:"target"`
	Issues    map[string]int `json:"issue_mappings"`
	Timestamp time.Time      `json:"timestamp"`
}

// NumberMap maps a source number to a target number.
type NumberMap map[int]int

// Inverse returns the target-to-source view. When two sources share a
// target, the lowest source number wins.
func (m NumberMap) Inverse() NumberMap {
	inv := make(NumberMap, len(m))
	for _, src := range m.SortedKeys() {
		dst := m[src]
		if _, ok := inv[dst]; !ok {
			inv[dst] = src
		}
	}
	return inv
}

// SortedKeys returns the source numbers in ascending order.
func (m NumberMap) SortedKeys() []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

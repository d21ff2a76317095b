package trie

import (
	"maps"
	"slices"
)

type KindStats struct {
	Count       int
	PrefixBytes int
}

// AvgPrefix is the average length of the compressed prefixes of nodes of
// this kind.
func (k KindStats) AvgPrefix() float64 {
	if k.Count == 0 {
		return 0
	}
	return float64(k.PrefixBytes) / float64(k.Count)
}

type Stats struct {
	Keys     int
	Nodes    int
	MaxDepth int
	AvgDepth float64
	Kinds    map[string]KindStats
}

// KindNames returns the node kinds present in s, sorted.
func (s Stats) KindNames() []string {
	return slices.Sorted(maps.Keys(s.Kinds))
}

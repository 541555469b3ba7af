package mapslicehelp

import (
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/maps"
)

// SortedCounts returns counts as an ordered map with ascending keys.
func SortedCounts[K constraints.Ordered, V constraints.Integer](counts map[K]V) *orderedmap.OrderedMap[K, V] {
	keys := maps.Keys(counts)
	slices.Sort(keys)
	m := orderedmap.New[K, V](len(keys))
	for _, k := range keys {
		m.Set(k, counts[k])
	}
	return m
}

// FindLastKeyWithMaxValue scans newest to oldest, so ties go to the newest key.
func FindLastKeyWithMaxValue[K comparable, V constraints.Ordered](m *orderedmap.OrderedMap[K, V]) (maxK K, maxV V, numWinners uint) {
	first := true
	for p := m.Newest(); p != nil; p = p.Prev() {
		if first || p.Value > maxV {
			maxK = p.Key
			maxV = p.Value
			numWinners = 1
			first = false
			continue
		}
		if p.Value == maxV {
			numWinners++
		}
	}
	return
}

// Sum adds all values of m.
func Sum[K comparable, V constraints.Integer | constraints.Float](m *orderedmap.OrderedMap[K, V]) V {
	var total V
	for p := m.Oldest(); p != nil; p = p.Next() {
		total += p.Value
	}
	return total
}

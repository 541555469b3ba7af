package mapslicehelp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

func TestSortedCounts(t *testing.T) {
	m := SortedCounts(map[uint8]int{15: 1, 0: 20, 5: 4, 10: 4})
	var keys []uint8
	for p := m.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	assert.Equal(t, []uint8{0, 5, 10, 15}, keys)
	assert.Equal(t, 29, Sum(m))
}

func TestFindLastKeyWithMaxValue(t *testing.T) {
	tests := map[string]struct {
		pairs      [][2]int
		wantK      int
		wantV      int
		numWinners uint
	}{
		"single":  {[][2]int{{1, 5}}, 1, 5, 1},
		"max":     {[][2]int{{1, 5}, {2, 9}, {3, 1}}, 2, 9, 1},
		"tie":     {[][2]int{{1, 9}, {2, 3}, {3, 9}}, 3, 9, 2},
		"empty":   {nil, 0, 0, 0},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			m := orderedmap.New[int, int]()
			for _, p := range tt.pairs {
				m.Set(p[0], p[1])
			}
			k, v, n := FindLastKeyWithMaxValue(m)
			assert.Equal(t, tt.wantK, k)
			assert.Equal(t, tt.wantV, v)
			assert.Equal(t, tt.numWinners, n)
		})
	}
}

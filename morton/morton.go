// Package morton interleaves cell coordinates into Z-order keys.
package morton

import (
	"fmt"
	"math"
)

type Z = uint64

// spread masks, applied from coarse to fine
var spread = [...]struct {
	shift uint
	mask  uint64
}{
	{16, 0x0000ffff0000ffff},
	{8, 0x00ff00ff00ff00ff},
	{4, 0x0f0f0f0f0f0f0f0f},
	{2, 0x3333333333333333},
	{1, 0x5555555555555555},
}

func part(v uint64) uint64 {
	v &= math.MaxUint32
	for _, s := range spread {
		v = (v | v<<s.shift) & s.mask
	}
	return v
}

func compact(v uint64) uint64 {
	v &= spread[len(spread)-1].mask
	for i := len(spread) - 1; i > 0; i-- {
		v = (v | v>>spread[i].shift) & spread[i-1].mask
	}
	return (v | v>>spread[0].shift) & math.MaxUint32
}

// ToZ interleaves col (even bits) and row (odd bits).
// ok is false when either does not fit in 32 bits.
func ToZ(col, row uint) (z Z, ok bool) {
	ok = uint64(col) <= math.MaxUint32 && uint64(row) <= math.MaxUint32
	return part(uint64(col)) | part(uint64(row))<<1, ok
}

func MustToZ(col, row uint) Z {
	z, ok := ToZ(col, row)
	if !ok {
		panic(fmt.Errorf(`cannot make Z out of %v and %v`, col, row))
	}
	return z
}

func FromZ(z Z) (col, row uint) {
	return uint(compact(z)), uint(compact(z >> 1))
}

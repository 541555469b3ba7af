package mathhelp

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-3, 0, 9))
	assert.Equal(t, 9, Clamp(12, 0, 9))
	assert.Equal(t, 4, Clamp(4, 0, 9))
	assert.Equal(t, 1.5, Clamp(1.5, 1.0, 2.0))
}

func TestSign(t *testing.T) {
	assert.Equal(t, -1, Sign(-7))
	assert.Equal(t, 0, Sign(0))
	assert.Equal(t, 1, Sign(3))
}

func TestCeilDiv(t *testing.T) {
	tests := []struct {
		a, b float64
		want int
	}{
		{100, 10, 10},
		{101, 10, 11},
		{100.0000000001, 10, 10},
		{99.9999999999, 10, 10},
		{130.00000001, 10, 13},
		{100.001, 10, 11},
		{1, 10, 1},
		{0, 10, 0},
		{-5, 10, 0},
		{5, 0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v/%v", tt.a, tt.b), func(t *testing.T) {
			assert.Equal(t, tt.want, CeilDiv(tt.a, tt.b))
		})
	}
}

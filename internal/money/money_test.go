package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDiscount(t *testing.T) {
	tests := []struct {
		name  string
		price int64
		pct   int
		want  int64
	}{
		{"no discount", 3000, 0, 3000},
		{"ten percent", 3000, 10, 2700},
		{"half up", 5, 50, 3},          // 2.5 -> 3
		{"below half", 1999, 15, 1699}, // 1699.15
		{"at half", 1990, 15, 1692},    // 1691.5 -> 1692
		{"full", 1234, 100, 0},
		{"over full", 1234, 150, 0},
		{"negative pct", 1234, -5, 1234},
		{"zero price", 0, 30, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyDiscount(tt.price, tt.pct))
		})
	}
}

func TestLineTotal(t *testing.T) {
	assert.Equal(t, int64(5400), LineTotal(2700, 2))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "16.99", Format(1699))
	assert.Equal(t, "0.05", Format(5))
	assert.Equal(t, "-3.50", Format(-350))
}

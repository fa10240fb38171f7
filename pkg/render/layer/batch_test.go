package layer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBatchSizerAdapt(t *testing.T) {
	const budget = 16 * time.Millisecond
	tests := []struct {
		name    string
		start   int
		elapsed time.Duration
		want    int
	}{
		{"far under budget doubles, averaged", 10, time.Millisecond, 15},
		{"slightly under budget", 10, 12 * time.Millisecond, 11},
		{"at budget unchanged", 10, budget, 10},
		{"slightly over shrinks to 3/4", 20, 20 * time.Millisecond, 15},
		{"far over shrinks in proportion", 20, 64 * time.Millisecond, 5},
		{"never below one", 1, time.Second, 1},
		{"grows from one", 1, time.Millisecond, 2},
		{"capped at max", maxBatch, time.Millisecond, maxBatch},
		{"no measurement", 10, 0, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBatchSizer(tt.start, budget)
			b.adapt(tt.elapsed)
			assert.Equal(t, tt.want, b.size)
		})
	}
}

func TestBatchSizerFixedWithoutBudget(t *testing.T) {
	b := newBatchSizer(LayersPerFrame, 0)
	for _, d := range []time.Duration{time.Microsecond, time.Second} {
		b.adapt(d)
		assert.Equal(t, LayersPerFrame, b.size)
	}
	assert.Equal(t, maxBatch, newBatchSizer(1000, 0).size)
	assert.Equal(t, minBatch, newBatchSizer(-3, 0).size)
}

func TestBatchSizerConverges(t *testing.T) {
	// each layer costs 2ms, so a 16ms budget settles near 8 layers
	b := newBatchSizer(50, 16*time.Millisecond)
	for range 20 {
		b.adapt(time.Duration(b.size) * 2 * time.Millisecond)
	}
	assert.InDelta(t, 8, b.size, 2)
}

package layer

import "time"

const (
	// DefaultFrameBudget is the time a batch of layers aims to take
	DefaultFrameBudget = 16 * time.Millisecond

	minBatch = 1
	maxBatch = 100
)

// batchSizer adapts the number of layers painted per step to the time
// the previous step took. Under budget it grows by at most 2x, smoothed
// by averaging with the current size, and by at least one layer. Beyond twice the budget it shrinks
// in proportion; slightly over it shrinks to 3/4.
type batchSizer struct {
	size   int
	budget time.Duration
}

func newBatchSizer(start int, budget time.Duration) batchSizer {
	return batchSizer{size: min(max(start, minBatch), maxBatch), budget: budget}
}

// adapt updates the size from the duration of the last batch. A zero
// budget keeps the size fixed.
func (b *batchSizer) adapt(elapsed time.Duration) {
	if b.budget <= 0 || elapsed <= 0 {
		return
	}
	switch {
	case elapsed < b.budget:
		ratio := min(float64(b.budget)/float64(elapsed), 2)
		grown := (b.size + int(float64(b.size)*ratio)) / 2
		b.size = max(grown, b.size+1)
	case elapsed > 2*b.budget:
		b.size = int(float64(b.size) * float64(b.budget) / float64(elapsed))
	case elapsed > b.budget:
		b.size = b.size * 3 / 4
	}
	b.size = min(max(b.size, minBatch), maxBatch)
}

package hdrsdr

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallelFor_visitsEachRowOnce(t *testing.T) {
	for _, total := range []int{0, 1, 7, 1000} {
		seen := make([]int32, total)
		parallelFor(total, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
		})
		for i, n := range seen {
			assert.EqualValues(t, 1, n, "total %d row %d", total, i)
		}
	}
}

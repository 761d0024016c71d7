package retrieval

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRunBoundedPreservesOrder(t *testing.T) {
	n := 20
	out := runBounded(n, 4, func(i int) int { return i * i })
	for i := 0; i < n; i++ {
		if out[i] != i*i {
			t.Fatalf("out[%d] = %d, want %d", i, out[i], i*i)
		}
	}
}

func TestRunBoundedRespectsConcurrencyLimit(t *testing.T) {
	var current, max int32
	n := 50
	limit := 5

	runBounded(n, limit, func(i int) int {
		c := atomic.AddInt32(&current, 1)
		for {
			m := atomic.LoadInt32(&max)
			if c <= m || atomic.CompareAndSwapInt32(&max, m, c) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&current, -1)
		return i
	})

	if max > int32(limit) {
		t.Fatalf("observed concurrency %d exceeds limit %d", max, limit)
	}
}

func TestRunBoundedZeroItems(t *testing.T) {
	out := runBounded(0, 4, func(i int) int { return i })
	if len(out) != 0 {
		t.Fatalf("expected empty result, got %v", out)
	}
}

package utils

import (
	"sync/atomic"
	"testing"
)

func TestKeySetClaimOnce(t *testing.T) {
	s := NewKeySet()

	if !s.Claim("chennai:bangalore") {
		t.Error("first Claim should return true")
	}
	if s.Claim("chennai:bangalore") {
		t.Error("second Claim of same key should return false")
	}
	if s.Size() != 1 {
		t.Errorf("size: got %d, want 1", s.Size())
	}
}

func TestKeySetConcurrentClaims(t *testing.T) {
	s := NewKeySet()
	var claimed int64

	pool := NewWorkerPool(10)
	for i := 0; i < 100; i++ {
		pool.Submit(func() {
			if s.Claim("same-route") {
				atomic.AddInt64(&claimed, 1)
			}
		})
	}
	pool.Wait()

	if claimed != 1 {
		t.Errorf("expected exactly 1 successful claim, got %d", claimed)
	}
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(2)

	var active, peak int64
	for i := 0; i < 20; i++ {
		pool.Submit(func() {
			n := atomic.AddInt64(&active, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			atomic.AddInt64(&active, -1)
		})
	}
	pool.Wait()

	if peak > 2 {
		t.Errorf("worker pool exceeded its budget: peak %d", peak)
	}
}

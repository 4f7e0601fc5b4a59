package tracekit

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

// TestIDPoolBasicOperation tests basic ID pool functionality.
func TestIDPoolBasicOperation(t *testing.T) {
	pool := NewIDPool(10)
	defer pool.Close()

	id := pool.Get()
	if id == 0 {
		t.Error("Expected nonzero id from pool")
	}
}

// TestIDPoolEmpty tests behavior when the pool is drained by burst load.
func TestIDPoolEmpty(t *testing.T) {
	// Very small pool that will be empty most of the time.
	pool := NewIDPool(1)
	defer pool.Close()

	ids := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		id := pool.Get()
		if id == 0 {
			t.Fatal("Expected nonzero id even when pool is drained")
		}
		ids[id] = true
	}

	// Random 64-bit allocation should not collide in 100 draws.
	if len(ids) != 100 {
		t.Errorf("Expected 100 distinct ids, got %d", len(ids))
	}
}

// TestIDPoolConcurrentAccess tests concurrent access to the ID pool.
func TestIDPoolConcurrentAccess(t *testing.T) {
	pool := NewIDPool(50)
	defer pool.Close()

	var wg sync.WaitGroup
	numGoroutines := 10
	idsPerGoroutine := 10

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < idsPerGoroutine; j++ {
				if id := pool.Get(); id == 0 {
					t.Error("Expected nonzero id under concurrent access")
				}
			}
		}()
	}

	wg.Wait()
}

// TestIDPoolCleanShutdown tests that pools shut down cleanly.
func TestIDPoolCleanShutdown(t *testing.T) {
	pool := NewIDPool(10)

	before := runtime.NumGoroutine()

	pool.Close()

	// Give time for cleanup.
	time.Sleep(10 * time.Millisecond)

	after := runtime.NumGoroutine()
	if after > before {
		t.Errorf("Goroutine leak detected: %d -> %d", before, after)
	}

	// Multiple closes should be safe.
	pool.Close()

	// Get still works after close, falling back to direct generation.
	if id := pool.Get(); id == 0 {
		t.Error("Expected nonzero id after close")
	}
}

package tracekit

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
)

// IDPool manages a pool of pre-generated random ids to amortize
// crypto/rand overhead on the span hot path.
type IDPool struct {
	ids    chan uint64
	stopCh chan struct{}
	mu     sync.Mutex
	closed bool
}

// NewIDPool creates a pool with the specified capacity and starts its
// background refill goroutine.
func NewIDPool(capacity int) *IDPool {
	pool := &IDPool{
		ids:    make(chan uint64, capacity),
		stopCh: make(chan struct{}),
	}
	go pool.refill()
	return pool
}

// Get retrieves an id from the pool, or generates one directly when the
// pool is drained by burst load.
func (p *IDPool) Get() uint64 {
	select {
	case id := <-p.ids:
		return id
	default:
		return randomID()
	}
}

// refill keeps the pool topped up in the background.
func (p *IDPool) refill() {
	for {
		select {
		case <-p.stopCh:
			return
		case p.ids <- randomID():
		}
	}
}

// Close shuts down the pool's refill goroutine. Safe to call twice.
func (p *IDPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
}

// randomID returns a nonzero random 64-bit id. Zero is reserved to mean
// "absent" in SpanContext, so it is never handed out.
func randomID() uint64 {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			// crypto/rand on supported platforms does not fail; retry
			// rather than hand out a predictable id.
			continue
		}
		if id := binary.BigEndian.Uint64(buf[:]); id != 0 {
			return id
		}
	}
}

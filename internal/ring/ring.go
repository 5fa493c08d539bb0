// Package ring implements the fixed-capacity handoff buffer between the
// capture callback and the processing loop. It is a single-producer,
// single-consumer queue: the capture side reserves and commits write
// slots, the processing side acquires and releases read slots. Ownership
// of a slot transfers atomically and is never shared.
package ring

import (
	"errors"
	"sync/atomic"
	"time"
)

var (
	// ErrOverrun is returned when no free write slot is available. The
	// capture path must never block, so the block is dropped and counted
	// by the caller; the sweep continues.
	ErrOverrun = errors.New("ring: overrun, no free slot")

	// ErrEmpty is returned when no committed slot is ready to read.
	ErrEmpty = errors.New("ring: empty")
)

// Slot is one fixed-size sample block in transit. The producer fills
// Data, Len, T and Center before committing; the consumer reads them in
// place and must not retain the slot after releasing it.
type Slot struct {
	Data   []byte
	Len    int
	T      time.Time
	Center uint64
}

// Ring is the slot queue. Two atomic counters publish progress between
// the sides: committed counts published writes, released counts returned
// reads. The producer-local reserved cursor and consumer-local read
// cursor never cross them.
type Ring struct {
	slots []Slot

	committed atomic.Uint64
	released  atomic.Uint64

	reserved uint64 // producer only
	read     uint64 // consumer only

	ready chan struct{}
}

// New allocates a ring of n slots, each holding blockSize bytes. All
// memory is allocated here; neither side allocates afterwards.
func New(n, blockSize int) (*Ring, error) {
	if n < 2 {
		return nil, errors.New("ring: need at least 2 slots")
	}
	if blockSize <= 0 {
		return nil, errors.New("ring: block size must be positive")
	}

	r := Ring{
		slots: make([]Slot, n),
		ready: make(chan struct{}, 1),
	}
	for i := range r.slots {
		r.slots[i].Data = make([]byte, blockSize)
	}
	return &r, nil
}

// Cap returns the slot count.
func (r *Ring) Cap() int { return len(r.slots) }

// AcquireWrite reserves the next free slot for the producer, or fails
// with ErrOverrun when every slot is reserved or committed and not yet
// released. It never blocks.
func (r *Ring) AcquireWrite() (*Slot, error) {
	if r.reserved-r.released.Load() >= uint64(len(r.slots)) {
		return nil, ErrOverrun
	}
	s := &r.slots[r.reserved%uint64(len(r.slots))]
	r.reserved++
	return s, nil
}

// CommitWrite publishes the oldest reserved slot to the consumer. Commits
// must follow acquire order; the capture path acquires and commits one
// slot at a time, which satisfies this by construction.
func (r *Ring) CommitWrite(*Slot) {
	r.committed.Add(1)
	select {
	case r.ready <- struct{}{}:
	default:
	}
}

// AcquireRead returns the oldest committed slot, or ErrEmpty.
func (r *Ring) AcquireRead() (*Slot, error) {
	if r.read == r.committed.Load() {
		return nil, ErrEmpty
	}
	s := &r.slots[r.read%uint64(len(r.slots))]
	r.read++
	return s, nil
}

// ReleaseRead returns the oldest acquired slot to the free pool. Releases
// must follow read order; the processing loop holds one slot at a time.
func (r *Ring) ReleaseRead(*Slot) {
	r.released.Add(1)
}

// Ready signals after each commit. The channel has capacity one, so a
// wakeup may cover several commits; consumers re-poll AcquireRead until
// it reports ErrEmpty.
func (r *Ring) Ready() <-chan struct{} { return r.ready }

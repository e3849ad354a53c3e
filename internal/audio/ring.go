package audio

import "sync/atomic"

// Ring is a single-producer single-consumer lock-free ring of f32 samples.
// The producer calls Write, the consumer calls Read; neither ever blocks.
// Capacity is rounded up to a power of two.
type Ring struct {
	buf  []float32
	mask uint64
	head atomic.Uint64 // next read position
	tail atomic.Uint64 // next write position
}

// NewRing allocates a ring holding at least capacity samples.
func NewRing(capacity int) *Ring {
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &Ring{
		buf:  make([]float32, size),
		mask: uint64(size - 1),
	}
}

// Cap returns the ring capacity in samples.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of readable samples.
func (r *Ring) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Write appends up to len(p) samples, returning how many fit. Producer
// side only.
func (r *Ring) Write(p []float32) int {
	head := r.head.Load()
	tail := r.tail.Load()
	free := len(r.buf) - int(tail-head)
	n := len(p)
	if n > free {
		n = free
	}
	for i := 0; i < n; i++ {
		r.buf[(tail+uint64(i))&r.mask] = p[i]
	}
	r.tail.Store(tail + uint64(n))
	return n
}

// Read fills up to len(p) samples, returning how many were available.
// Consumer side only; the caller fills the remainder with silence on
// underrun.
func (r *Ring) Read(p []float32) int {
	head := r.head.Load()
	tail := r.tail.Load()
	n := int(tail - head)
	if n > len(p) {
		n = len(p)
	}
	for i := 0; i < n; i++ {
		p[i] = r.buf[(head+uint64(i))&r.mask]
	}
	r.head.Store(head + uint64(n))
	return n
}

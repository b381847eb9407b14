package transcodepool

import "sync/atomic"

// RegionCounter counts how many workers are currently inside some region of
// code (here, actively transcoding), grounded directly on the Rust
// original's RegionCounter(Arc<AtomicU64>).
type RegionCounter struct {
	count atomic.Int64
}

// Enter increments the counter and returns a function that decrements it,
// RAII-style (the Rust original returns an `entered()` guard whose Drop
// impl does the decrement; Go has no destructors, so the caller defers the
// returned func instead).
func (r *RegionCounter) Enter() func() {
	r.count.Add(1)
	return func() {
		r.count.Add(-1)
	}
}

// Load returns the current count.
func (r *RegionCounter) Load() int64 {
	return r.count.Load()
}

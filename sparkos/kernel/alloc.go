package kernel

import "sync/atomic"

// Allocator backs the buffers of dynamically created queues and pools.
type Allocator interface {
	// Alloc returns a zeroed buffer of size bytes, or nil when exhausted.
	Alloc(size int) []byte
	Free(buf []byte)
}

// HeapAllocator allocates from the Go heap and tracks the bytes handed out.
type HeapAllocator struct {
	limit int64
	inUse atomic.Int64
}

// NewHeapAllocator returns an unbounded heap allocator.
func NewHeapAllocator() *HeapAllocator { return &HeapAllocator{} }

// NewBoundedAllocator returns a heap allocator that refuses to hand out more
// than limit bytes at once.
func NewBoundedAllocator(limit int) *HeapAllocator {
	return &HeapAllocator{limit: int64(limit)}
}

func (a *HeapAllocator) Alloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	if n := a.inUse.Add(int64(size)); a.limit > 0 && n > a.limit {
		a.inUse.Add(-int64(size))
		return nil
	}
	return make([]byte, size)
}

func (a *HeapAllocator) Free(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	a.inUse.Add(-int64(cap(buf)))
}

// InUse returns the number of bytes currently allocated.
func (a *HeapAllocator) InUse() int64 { return a.inUse.Load() }

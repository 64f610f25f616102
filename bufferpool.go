package stoq

import (
	"sync"
	"sync/atomic"
)

// BufferPool hands out fixed-size byte slices for the send path,
// falling through to an ordinary allocation once a bounded number of
// buffers are outstanding. It exists to keep the steady-state send
// path allocation-free without letting an unbounded backlog of
// un-returned buffers grow the heap without limit.
type BufferPool struct {
	pool       sync.Pool
	size       int
	ceiling    int
	outstanding atomic.Int64

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewBufferPool returns a pool of buffers of bufferSize bytes, never
// allowing more than maxOutstanding to be acquired without a matching
// Release. maxOutstanding <= 0 means unbounded.
func NewBufferPool(bufferSize, maxOutstanding int) *BufferPool {
	if bufferSize <= 0 {
		bufferSize = 9000
	}
	p := &BufferPool{size: bufferSize, ceiling: maxOutstanding}
	p.pool.New = func() any {
		return make([]byte, p.size)
	}
	return p
}

// Acquire returns a buffer from the pool and true, or (nil, false) once
// the outstanding ceiling has been reached. Callers that get (nil,
// false) must allocate their own buffer and must not call Release on
// it: Release assumes its argument originated from Acquire.
func (p *BufferPool) Acquire() ([]byte, bool) {
	if p.ceiling > 0 {
		if p.outstanding.Add(1) > int64(p.ceiling) {
			p.outstanding.Add(-1)
			p.misses.Add(1)
			return nil, false
		}
	}
	p.hits.Add(1)
	buf := p.pool.Get().([]byte)
	return buf[:p.size], true
}

// Release returns buf to the pool. Buffers smaller than the pool's
// configured size are discarded rather than pooled, since a future
// Acquire could hand them out undersized.
func (p *BufferPool) Release(buf []byte) {
	if cap(buf) < p.size {
		return
	}
	if p.ceiling > 0 {
		p.outstanding.Add(-1)
	}
	p.pool.Put(buf[:cap(buf)]) //nolint:staticcheck // deliberate full-capacity reuse
}

// Stats reports pool hit/miss counters for zero-copy-claim
// accountability: a pool miss means that send fell back to the general
// allocator.
type BufferPoolStats struct {
	Hits        uint64
	Misses      uint64
	Outstanding int64
}

// Stats returns a snapshot of pool activity.
func (p *BufferPool) Stats() BufferPoolStats {
	return BufferPoolStats{
		Hits:        p.hits.Load(),
		Misses:      p.misses.Load(),
		Outstanding: p.outstanding.Load(),
	}
}

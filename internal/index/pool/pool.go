// Package pool provides the arena allocators backing the index build path.
//
// Pool is a monotonic bump allocator over growable chunks: Allocate bumps a
// cursor, Reset rewinds the cursor while keeping the chunks for reuse, and
// Release returns all chunks. RecyclePool layers per-size-class free lists on
// top for the fixed-size buffers the posting merger churns through.
//
// No slice returned by a pool may be used after Reset or Release. Callers own
// that lifetime; the allocators do not track outstanding references.
package pool

import (
	"unsafe"
)

const (
	// DefaultChunkSize is the default chunk allocation unit.
	DefaultChunkSize = 1 << 20

	alignment = 8
)

// Pool is a chunked bump allocator. Not safe for concurrent use.
type Pool struct {
	chunkSize int
	chunks    [][]byte
	cur       int // index of the chunk being bumped
	off       int // bump offset within chunks[cur]

	liveBytes   int64
	liveObjects int64
}

// New creates a Pool with the given chunk size. A chunkSize <= 0 selects
// DefaultChunkSize.
func New(chunkSize int) *Pool {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Pool{chunkSize: chunkSize}
}

// Allocate returns a zeroed byte slice of length n carved out of the current
// chunk. Requests larger than the chunk size get a dedicated chunk.
func (p *Pool) Allocate(n int) []byte {
	buf := p.allocateUncounted(n)
	if buf != nil {
		p.liveBytes += int64(align(n))
		p.liveObjects++
		globalUsage.addAlloc(int64(align(n)), 1)
	}
	return buf
}

// allocateUncounted bumps without touching the usage counters. RecyclePool
// does its own accounting on top of this.
func (p *Pool) allocateUncounted(n int) []byte {
	if n == 0 {
		return nil
	}
	n8 := align(n)
	if p.cur >= len(p.chunks) || p.off+n8 > len(p.chunks[p.cur]) {
		p.grow(n8)
	}
	buf := p.chunks[p.cur][p.off : p.off+n : p.off+n]
	p.off += n8
	clear(buf)
	return buf
}

func (p *Pool) grow(need int) {
	// Advance through retained chunks before reserving a new one.
	for p.cur+1 < len(p.chunks) {
		p.cur++
		p.off = 0
		if need <= len(p.chunks[p.cur]) {
			return
		}
	}
	size := p.chunkSize
	if need > size {
		size = need
	}
	p.chunks = append(p.chunks, make([]byte, size))
	p.cur = len(p.chunks) - 1
	p.off = 0
	globalUsage.reserve(int64(size))
}

// Reset rewinds the allocation cursor to the first chunk. Chunks are kept for
// reuse; all previously returned slices become invalid.
func (p *Pool) Reset() {
	globalUsage.subAlloc(p.liveBytes, p.liveObjects)
	p.liveBytes, p.liveObjects = 0, 0
	p.cur = 0
	p.off = 0
}

// Release drops every chunk. The pool remains usable and will reserve fresh
// chunks on the next Allocate.
func (p *Pool) Release() {
	globalUsage.subAlloc(p.liveBytes, p.liveObjects)
	p.liveBytes, p.liveObjects = 0, 0
	for _, c := range p.chunks {
		globalUsage.unreserve(int64(len(c)))
	}
	p.chunks = nil
	p.cur = 0
	p.off = 0
}

// Reserved returns the total chunk bytes held by the pool.
func (p *Pool) Reserved() int {
	total := 0
	for _, c := range p.chunks {
		total += len(c)
	}
	return total
}

func align(n int) int {
	return (n + alignment - 1) &^ (alignment - 1)
}

// Slice allocates a zeroed []T of length n from the pool. T must not contain
// pointers: the backing memory is a byte chunk the garbage collector does not
// scan for references.
func Slice[T any](p *Pool, n int) []T {
	if n == 0 {
		return nil
	}
	var t T
	size := int(unsafe.Sizeof(t))
	buf := p.Allocate(n * size)
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(buf))), n)
}

// GrowSlice returns a []T with at least capacity need, copying s into the
// front. The old backing memory stays bump-allocated until the next Reset.
func GrowSlice[T any](p *Pool, s []T, need int) []T {
	if need <= cap(s) {
		return s
	}
	newCap := cap(s) * 2
	if newCap < need {
		newCap = need
	}
	if newCap < 16 {
		newCap = 16
	}
	ns := Slice[T](p, newCap)
	copy(ns, s)
	return ns[:len(s)]
}

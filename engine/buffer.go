package engine

import (
	"sync"
)

// DefaultBufferSize is the size of the byte buffers used for copying and
// digesting when none is configured.
const DefaultBufferSize = 1 * 1024 * 1024

// BufferPool hands out reusable copy buffers so each copied or digested
// file does not allocate its own.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool creates a BufferPool of buffers of the given size.
// If size is <= 0, DefaultBufferSize is used.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	bp := &BufferPool{size: size}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

// Size returns the length of the buffers in the pool.
func (bp *BufferPool) Size() int {
	return bp.size
}

// Get retrieves a buffer. Callers defer Put once finished.
func (bp *BufferPool) Get() *[]byte {
	return bp.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool. The caller must not touch it afterwards.
func (bp *BufferPool) Put(b *[]byte) {
	if b != nil && len(*b) == bp.size {
		bp.pool.Put(b)
	}
}

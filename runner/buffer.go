package runner

import (
	"sync"
)

// DefaultBufferSize is the size of the line buffers handed to output scanners.
// rsync and docker rarely print lines longer than a few hundred bytes, so
// 64KB leaves plenty of headroom for file names.
const DefaultBufferSize = 64 * 1024

// BufferPool manages reusable line buffers so that many short-lived
// transfers do not each allocate their own scanner buffer.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool creates a new BufferPool that allocates buffers of the specified size.
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

// Size returns the length of the buffers handed out by the pool.
func (bp *BufferPool) Size() int {
	return bp.size
}

// Get retrieves a reusable byte buffer from the pool.
// The caller should defer calling Put on this buffer once finished.
func (bp *BufferPool) Get() *[]byte {
	return bp.pool.Get().(*[]byte)
}

// Put returns the byte buffer to the pool so it can be reused.
func (bp *BufferPool) Put(b *[]byte) {
	if b != nil && len(*b) == bp.size {
		bp.pool.Put(b)
	}
}

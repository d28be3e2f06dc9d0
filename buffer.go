package ortbench

import "sync"

// bufferPool recycles the Go-side copies of output tensors across benchmark passes.
type bufferPool struct {
	pool sync.Pool
}

func newBufferPool() *bufferPool {
	return &bufferPool{
		pool: sync.Pool{
			New: func() any {
				return &floatBuffer{}
			},
		},
	}
}

type floatBuffer struct {
	data []float32
}

func (p *bufferPool) get(size int) *floatBuffer {
	buf := p.pool.Get().(*floatBuffer)
	buf.resize(size)
	return buf
}

// resize keeps the backing array when it is large enough.
func (b *floatBuffer) resize(size int) {
	if cap(b.data) < size {
		b.data = make([]float32, size)
		return
	}
	b.data = b.data[:size]
}

func (p *bufferPool) put(buf *floatBuffer) {
	p.pool.Put(buf)
}

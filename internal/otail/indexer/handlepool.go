package indexer

import (
	"os"
	"runtime"
	"sync"
)

// handlePool is a bounded pool of read-only file handles used for random
// access line fetches, distinct from the Reader's append-following handle.
// Grounded on the teacher's internal/io/pool buffer-pooling idiom,
// generalized from []byte buffers to *os.File handles.
type handlePool struct {
	path string
	mu   sync.Mutex
	free []*os.File
	size int
}

func newHandlePool(path string) *handlePool {
	size := runtime.NumCPU()
	if size < 2 {
		size = 2
	}
	return &handlePool{path: path, size: size}
}

func (p *handlePool) get() (*os.File, error) {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		f := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return f, nil
	}
	p.mu.Unlock()
	return os.Open(p.path)
}

func (p *handlePool) put(f *os.File) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= p.size {
		f.Close()
		return
	}
	p.free = append(p.free, f)
}

func (p *handlePool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.free {
		f.Close()
	}
	p.free = nil
}

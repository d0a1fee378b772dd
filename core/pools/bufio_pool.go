package pools

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"
)

// Connection buffer sizes
const (
	ReaderBufferSize = 4096
	WriterBufferSize = 4096
)

// BufioPool recycles per-connection buffered readers and writers
type BufioPool struct {
	readers sync.Pool
	writers sync.Pool

	gets   atomic.Uint64
	allocs atomic.Uint64
}

// NewBufioPool creates an empty pool
func NewBufioPool() *BufioPool {
	return &BufioPool{}
}

// GetReader returns a reader over r, reusing a pooled buffer when possible
func (p *BufioPool) GetReader(r io.Reader) *bufio.Reader {
	p.gets.Add(1)
	if v := p.readers.Get(); v != nil {
		br := v.(*bufio.Reader)
		br.Reset(r)
		return br
	}
	p.allocs.Add(1)
	return bufio.NewReaderSize(r, ReaderBufferSize)
}

// PutReader releases br. It must not be used afterwards.
func (p *BufioPool) PutReader(br *bufio.Reader) {
	br.Reset(nil)
	p.readers.Put(br)
}

// GetWriter returns a writer over w, reusing a pooled buffer when possible
func (p *BufioPool) GetWriter(w io.Writer) *bufio.Writer {
	p.gets.Add(1)
	if v := p.writers.Get(); v != nil {
		bw := v.(*bufio.Writer)
		bw.Reset(w)
		return bw
	}
	p.allocs.Add(1)
	return bufio.NewWriterSize(w, WriterBufferSize)
}

// PutWriter releases bw. Unflushed data is discarded.
func (p *BufioPool) PutWriter(bw *bufio.Writer) {
	bw.Reset(nil)
	p.writers.Put(bw)
}

// Stats returns pool statistics
func (p *BufioPool) Stats() PoolStats {
	return PoolStats{
		Gets:   p.gets.Load(),
		Allocs: p.allocs.Load(),
	}
}

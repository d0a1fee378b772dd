package http

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/searchktools/static-server/core/pools"
)

// CopyBufferSize is the chunk size used to stream bodies onto the connection
const CopyBufferSize = 32 << 10

// Body is a lazily read response body.
// Size returns the body length in bytes, or -1 if unknown.
type Body interface {
	io.Reader
	Size() int64
}

// Response is a status, a header block and a body, written once
type Response struct {
	Status  Status
	Headers Header
	Body    Body

	written bool
}

// FromFixedContent builds a response around in-memory content
func FromFixedContent(status Status, content []byte, contentType string) *Response {
	return &Response{
		Status: status,
		Headers: Header{
			HeaderContentType:   contentType,
			HeaderContentLength: strconv.Itoa(len(content)),
		},
		Body: bytes.NewReader(content),
	}
}

// FromFile builds a 200 response streaming from f.
// Content-Length comes from the file's metadata and Content-Type from the
// extension of path. On error f is left open for the caller to close.
func FromFile(path string, f *os.File) (*Response, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", ErrFileOpen, path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrFileOpen, path)
	}

	return &Response{
		Status: StatusOK,
		Headers: Header{
			HeaderContentType:   MimeType(path),
			HeaderContentLength: strconv.FormatInt(info.Size(), 10),
		},
		Body: &fileBody{f: f, size: info.Size()},
	}, nil
}

// Write serializes the response onto w and flushes it.
// It returns the number of bytes handed to w. Write fails with
// ErrResponseConsumed if called a second time.
func (r *Response) Write(w *bufio.Writer) (int64, error) {
	if r.written {
		return 0, ErrResponseConsumed
	}
	r.written = true

	cw := &countingWriter{w: w}
	if _, err := cw.Write(r.head()); err != nil {
		return cw.n, fmt.Errorf("%w: head: %w", ErrWrite, err)
	}

	if r.Body != nil {
		var src io.Reader = r.Body
		size := r.Body.Size()
		if size >= 0 {
			src = io.LimitReader(r.Body, size)
		}

		buf := pools.GetBytes(CopyBufferSize)
		n, err := io.CopyBuffer(cw, src, buf)
		pools.PutBytes(buf)

		if err != nil {
			if cw.err != nil {
				return cw.n, fmt.Errorf("%w: body: %w", ErrWrite, cw.err)
			}
			return cw.n, fmt.Errorf("%w: %w", ErrBodyRead, err)
		}
		if size >= 0 && n < size {
			return cw.n, fmt.Errorf("%w: wrote %d of %d bytes", ErrShortBody, n, size)
		}
	}

	if err := w.Flush(); err != nil {
		return cw.n, fmt.Errorf("%w: flush: %w", ErrWrite, err)
	}
	return cw.n, nil
}

// Close releases the body. It is safe to call more than once.
func (r *Response) Close() error {
	if c, ok := r.Body.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// head renders the status line and the header block, headers sorted by name
func (r *Response) head() []byte {
	names := make([]string, 0, len(r.Headers))
	for name := range r.Headers {
		names = append(names, name)
	}
	sort.Strings(names)

	b := make([]byte, 0, 128)
	b = append(b, "HTTP/1.1 "...)
	b = append(b, r.Status.String()...)
	b = append(b, "\r\n"...)
	for _, name := range names {
		b = append(b, name...)
		b = append(b, ": "...)
		b = append(b, r.Headers[name]...)
		b = append(b, "\r\n"...)
	}
	return append(b, "\r\n"...)
}

// countingWriter remembers the first write error so it can be told apart
// from a body read error after io.CopyBuffer returns.
type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	if err != nil && cw.err == nil {
		cw.err = err
	}
	return n, err
}

// fileBody reads a file incrementally. It must not expose
// (*os.File).WriteTo, or io.CopyBuffer would bypass the pooled buffer.
type fileBody struct {
	f      *os.File
	size   int64
	closed bool
}

func (b *fileBody) Read(p []byte) (int, error) {
	return b.f.Read(p)
}

func (b *fileBody) Size() int64 {
	return b.size
}

func (b *fileBody) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.f.Close()
}

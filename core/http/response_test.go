package http

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// parsedResponse is a response read back from the wire
type parsedResponse struct {
	statusLine string
	headers    map[string]string
	body       []byte
}

func readResponse(t *testing.T, br *bufio.Reader) parsedResponse {
	t.Helper()

	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	res := parsedResponse{
		statusLine: strings.TrimSuffix(line, "\r\n"),
		headers:    map[string]string{},
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("read header: %v", err)
		}
		line = strings.TrimSuffix(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ": ")
		if !ok {
			t.Fatalf("malformed header line %q", line)
		}
		res.headers[name] = value
	}

	n, err := strconv.Atoi(res.headers[HeaderContentLength])
	if err != nil {
		t.Fatalf("bad Content-Length %q", res.headers[HeaderContentLength])
	}
	res.body = make([]byte, n)
	if _, err := io.ReadFull(br, res.body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res
}

// TestFromFixedContentRoundTrip tests writing and re-reading an in-memory response
func TestFromFixedContentRoundTrip(t *testing.T) {
	content := []byte("<h1>not here</h1>\n")
	resp := FromFixedContent(StatusNotFound, content, "text/html")

	var buf bytes.Buffer
	n, err := resp.Write(bufio.NewWriter(&buf))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("Expected %d bytes reported, got %d", buf.Len(), n)
	}

	got := readResponse(t, bufio.NewReader(&buf))
	if got.statusLine != "HTTP/1.1 404 Not Found" {
		t.Errorf("Expected 404 status line, got %q", got.statusLine)
	}
	if got.headers[HeaderContentType] != "text/html" {
		t.Errorf("Expected Content-Type text/html, got %q", got.headers[HeaderContentType])
	}
	if got.headers[HeaderContentLength] != strconv.Itoa(len(content)) {
		t.Errorf("Expected Content-Length %d, got %s", len(content), got.headers[HeaderContentLength])
	}
	if !bytes.Equal(got.body, content) {
		t.Errorf("Expected body %q, got %q", content, got.body)
	}
	if buf.Len() != 0 {
		t.Errorf("Expected nothing after the body, got %d extra bytes", buf.Len())
	}
}

// TestResponseHeaderOrder tests that headers are written in a stable order
func TestResponseHeaderOrder(t *testing.T) {
	resp := FromFixedContent(StatusOK, []byte("ok"), "text/plain")
	resp.Headers["X-Extra"] = "1"

	var buf bytes.Buffer
	if _, err := resp.Write(bufio.NewWriter(&buf)); err != nil {
		t.Fatal(err)
	}

	want := "HTTP/1.1 200 OK\r\nContent-Length: 2\r\nContent-Type: text/plain\r\nX-Extra: 1\r\n\r\nok"
	if buf.String() != want {
		t.Errorf("Expected %q, got %q", want, buf.String())
	}
}

// TestResponseWriteOnce tests that a response cannot be written twice
func TestResponseWriteOnce(t *testing.T) {
	resp := FromFixedContent(StatusOK, []byte("once"), "text/plain")
	w := bufio.NewWriter(io.Discard)

	if _, err := resp.Write(w); err != nil {
		t.Fatal(err)
	}
	if _, err := resp.Write(w); !errors.Is(err, ErrResponseConsumed) {
		t.Errorf("Expected ErrResponseConsumed, got %v", err)
	}
}

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestFromFile tests headers derived from file metadata
func TestFromFile(t *testing.T) {
	path := writeTempFile(t, "style.CSS", []byte("body { color: red; }"))
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := FromFile(path, f)
	if err != nil {
		t.Fatalf("FromFile failed: %v", err)
	}
	defer resp.Close()

	if resp.Status != StatusOK {
		t.Errorf("Expected status 200, got %d", resp.Status)
	}
	if got := resp.Headers[HeaderContentLength]; got != "20" {
		t.Errorf("Expected Content-Length 20, got %s", got)
	}
	if got := resp.Headers[HeaderContentType]; got != "text/css" {
		t.Errorf("Expected Content-Type text/css, got %s", got)
	}
	if resp.Body.Size() != 20 {
		t.Errorf("Expected body size 20, got %d", resp.Body.Size())
	}
}

// TestFromFileDirectory tests that a directory handle is rejected
func TestFromFileDirectory(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, err := FromFile(dir, f); !errors.Is(err, ErrFileOpen) {
		t.Errorf("Expected ErrFileOpen, got %v", err)
	}
}

// recordingBody tracks how much of the body is requested per Read
type recordingBody struct {
	Body
	reads   int
	maxRead int
}

func (b *recordingBody) Read(p []byte) (int, error) {
	b.reads++
	if len(p) > b.maxRead {
		b.maxRead = len(p)
	}
	return b.Body.Read(p)
}

// TestFromFileStreamsIncrementally tests that a large file is copied in bounded chunks
func TestFromFileStreamsIncrementally(t *testing.T) {
	const size = 1 << 20
	data := bytes.Repeat([]byte("0123456789abcdef"), size/16)
	path := writeTempFile(t, "large.bin", data)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := FromFile(path, f)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.(io.Closer).Close()

	if got := resp.Headers[HeaderContentLength]; got != strconv.Itoa(size) {
		t.Fatalf("Expected Content-Length %d, got %s", size, got)
	}

	rec := &recordingBody{Body: resp.Body}
	resp.Body = rec

	var sink bytes.Buffer
	if _, err := resp.Write(bufio.NewWriter(&sink)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if rec.maxRead > CopyBufferSize {
		t.Errorf("Expected reads of at most %d bytes, got %d", CopyBufferSize, rec.maxRead)
	}
	if rec.reads < size/CopyBufferSize {
		t.Errorf("Expected at least %d reads, got %d", size/CopyBufferSize, rec.reads)
	}

	got := readResponse(t, bufio.NewReader(&sink))
	if got.headers[HeaderContentType] != DefaultContentType {
		t.Errorf("Expected %s, got %s", DefaultContentType, got.headers[HeaderContentType])
	}
	if !bytes.Equal(got.body, data) {
		t.Error("Body does not match file content")
	}
}

// failingWriter accepts limit bytes and then fails
type failingWriter struct {
	limit int
}

var errBrokenPipe = errors.New("broken pipe")

func (w *failingWriter) Write(p []byte) (int, error) {
	if len(p) > w.limit {
		n := w.limit
		w.limit = 0
		return n, errBrokenPipe
	}
	w.limit -= len(p)
	return len(p), nil
}

// TestResponseWriteError tests that write failures are propagated
func TestResponseWriteError(t *testing.T) {
	tests := []struct {
		name  string
		limit int
	}{
		{"fails during head", 5},
		{"fails during body", 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := FromFixedContent(StatusOK, bytes.Repeat([]byte("x"), 4096), "text/plain")
			w := bufio.NewWriterSize(&failingWriter{limit: tt.limit}, 16)

			_, err := resp.Write(w)
			if !errors.Is(err, ErrWrite) {
				t.Fatalf("Expected ErrWrite, got %v", err)
			}
			if !errors.Is(err, errBrokenPipe) {
				t.Errorf("Expected underlying error to be kept, got %v", err)
			}
		})
	}
}

// sizedReader lies about its size
type sizedReader struct {
	io.Reader
	size int64
}

func (r sizedReader) Size() int64 { return r.size }

// errReader fails every read
type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }
func (errReader) Size() int64              { return 10 }

// TestResponseBodyErrors tests short and unreadable bodies
func TestResponseBodyErrors(t *testing.T) {
	short := &Response{
		Status:  StatusOK,
		Headers: Header{HeaderContentLength: "10", HeaderContentType: "text/plain"},
		Body:    sizedReader{Reader: strings.NewReader("abc"), size: 10},
	}
	if _, err := short.Write(bufio.NewWriter(io.Discard)); !errors.Is(err, ErrShortBody) {
		t.Errorf("Expected ErrShortBody, got %v", err)
	}

	broken := &Response{
		Status:  StatusOK,
		Headers: Header{HeaderContentLength: "10", HeaderContentType: "text/plain"},
		Body:    errReader{},
	}
	if _, err := broken.Write(bufio.NewWriter(io.Discard)); !errors.Is(err, ErrBodyRead) {
		t.Errorf("Expected ErrBodyRead, got %v", err)
	}
}

// TestResponseBodyLongerThanDeclared tests that extra body bytes are not sent
func TestResponseBodyLongerThanDeclared(t *testing.T) {
	resp := &Response{
		Status:  StatusOK,
		Headers: Header{HeaderContentLength: "3", HeaderContentType: "text/plain"},
		Body:    sizedReader{Reader: strings.NewReader("abcdef"), size: 3},
	}

	var buf bytes.Buffer
	if _, err := resp.Write(bufio.NewWriter(&buf)); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(buf.String(), "\r\n\r\nabc") {
		t.Errorf("Expected body truncated to abc, got %q", buf.String())
	}
}

// TestStatusText tests status line formatting
func TestStatusText(t *testing.T) {
	tests := map[Status]string{
		StatusOK:                  "200 OK",
		StatusNotFound:            "404 Not Found",
		StatusMethodNotAllowed:    "405 Method Not Allowed",
		StatusInternalServerError: "500 Internal Server Error",
		Status(299):               "299 Unknown",
	}
	for status, want := range tests {
		if got := status.String(); got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}
}

// TestMimeType tests the extension table
func TestMimeType(t *testing.T) {
	tests := map[string]string{
		"index.html":     "text/html",
		"INDEX.HTML":     "text/html",
		"a/b/style.css":  "text/css",
		"app.js":         "text/javascript",
		"logo.png":       "image/png",
		"photo.jpg":      "image/jpeg",
		"anim.gif":       "image/gif",
		"README":         DefaultContentType,
		"archive.tar.xz": DefaultContentType,
		".hidden":        DefaultContentType,
	}
	for path, want := range tests {
		if got := MimeType(path); got != want {
			t.Errorf("MimeType(%q): expected %s, got %s", path, want, got)
		}
	}
}

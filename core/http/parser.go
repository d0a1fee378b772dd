package http

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ParseRequest reads one request head (request line and headers) from r.
//
// The request line is split on whitespace into method, path and an optional
// protocol token. Header lines follow until an empty line. A clean io.EOF
// before the first byte of the request line is returned as-is so callers can
// tell an idle peer hang-up from a broken request.
func ParseRequest(r *bufio.Reader) (*Request, error) {
	line, err := readLine(r)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, lineError("request line", err)
	}

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedRequestLine, line)
	}

	method, ok := ParseMethod(fields[0])
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, fields[0])
	}

	req := &Request{
		Method:  method,
		Path:    fields[1],
		Headers: make(Header),
	}
	if len(fields) > 2 {
		req.Proto = fields[2]
	}

	for n := 0; ; n++ {
		line, err := readLine(r)
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, lineError("headers", err)
		}
		if line == "" {
			return req, nil
		}
		if n == MaxHeaders {
			return nil, ErrTooManyHeaders
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeaderLine, line)
		}
		req.Headers.Set(name, strings.TrimSpace(value))
	}
}

// readLine returns the next line without its LF or CRLF terminator.
// Similar to readLineSlice() in net/textproto/reader.go, but a partial line
// at end of input is reported as io.ErrUnexpectedEOF instead of a line.
func readLine(r *bufio.Reader) (string, error) {
	var line []byte
	for {
		frag, err := r.ReadSlice('\n')
		if len(line)+len(frag) > MaxLineBytes+2 {
			return "", ErrLineTooLong
		}
		line = append(line, frag...)

		switch {
		case err == nil:
			line = line[:len(line)-1]
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			return string(line), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == io.EOF:
			if len(line) == 0 {
				return "", io.EOF
			}
			return "", io.ErrUnexpectedEOF
		default:
			return "", err
		}
	}
}

func lineError(where string, err error) error {
	switch {
	case errors.Is(err, ErrLineTooLong):
		return fmt.Errorf("%w: %s", ErrLineTooLong, where)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %s: %w", ErrIncompleteRequest, where, err)
	default:
		return fmt.Errorf("read %s: %w", where, err)
	}
}

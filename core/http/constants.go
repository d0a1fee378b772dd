package http

import "errors"

// HTTP header constants
const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderConnection    = "Connection"
	HeaderHost          = "Host"
)

// Parser limits
const (
	MaxLineBytes = 8 << 10
	MaxHeaders   = 100
)

// Parse errors. Any of them ends the connection without a response.
var (
	ErrMalformedRequestLine = errors.New("malformed request line")
	ErrUnsupportedMethod    = errors.New("unsupported method")
	ErrMalformedHeaderLine  = errors.New("malformed header line")
	ErrIncompleteRequest    = errors.New("incomplete request")
	ErrLineTooLong          = errors.New("line too long")
	ErrTooManyHeaders       = errors.New("too many headers")
)

// Response errors
var (
	ErrFileOpen         = errors.New("file open failed")
	ErrWrite            = errors.New("response write failed")
	ErrBodyRead         = errors.New("response body read failed")
	ErrShortBody        = errors.New("response body shorter than Content-Length")
	ErrResponseConsumed = errors.New("response already written")
)

// IsParseError reports whether err came from ParseRequest rejecting the input.
// A clean io.EOF between requests is not a parse error.
func IsParseError(err error) bool {
	for _, target := range []error{
		ErrMalformedRequestLine,
		ErrUnsupportedMethod,
		ErrMalformedHeaderLine,
		ErrIncompleteRequest,
		ErrLineTooLong,
		ErrTooManyHeaders,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

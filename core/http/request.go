package http

import "strings"

// Method is an HTTP request method
type Method string

// MethodGet is the only method the server accepts
const MethodGet Method = "GET"

// ParseMethod maps a request-line token to a known Method
func ParseMethod(token string) (Method, bool) {
	switch token {
	case string(MethodGet):
		return MethodGet, true
	}
	return "", false
}

// Header maps a header name to a single value.
// Names keep the spelling they were received with; lookups fold case.
type Header map[string]string

// Get returns the value for name, ignoring case
func (h Header) Get(name string) string {
	if v, ok := h[name]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Set stores value under name, replacing any entry whose name differs only in case
func (h Header) Set(name, value string) {
	for k := range h {
		if k != name && strings.EqualFold(k, name) {
			delete(h, k)
		}
	}
	h[name] = value
}

// HasToken reports whether the comma-separated header value contains token
func (h Header) HasToken(name, token string) bool {
	for _, part := range strings.Split(h.Get(name), ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// Request is a parsed HTTP/1.1 request head
type Request struct {
	Method Method
	Path   string // raw request target
	Proto  string // optional, not validated

	Headers Header
}

// Header returns the value of a request header, ignoring case
func (r *Request) Header(name string) string {
	return r.Headers.Get(name)
}

// WantsClose reports whether the client asked for the connection to be closed
func (r *Request) WantsClose() bool {
	return r.Headers.HasToken(HeaderConnection, "close")
}

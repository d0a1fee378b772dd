package http

import "strconv"

// Status is an HTTP response status code
type Status int

const (
	StatusOK                  Status = 200
	StatusBadRequest          Status = 400
	StatusNotFound            Status = 404
	StatusMethodNotAllowed    Status = 405
	StatusInternalServerError Status = 500
)

// Text returns the reason phrase for the status
func (s Status) Text() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBadRequest:
		return "Bad Request"
	case StatusNotFound:
		return "Not Found"
	case StatusMethodNotAllowed:
		return "Method Not Allowed"
	case StatusInternalServerError:
		return "Internal Server Error"
	}
	return "Unknown"
}

// String formats the status as it appears on the status line, e.g. "404 Not Found"
func (s Status) String() string {
	return strconv.Itoa(int(s)) + " " + s.Text()
}

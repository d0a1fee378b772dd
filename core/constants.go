package core

import (
	"errors"
	"time"
)

// DefaultKeepAlive is the connection persistence policy: a connection stays
// open after a response unless the request's Connection header carries the
// "close" token.
const DefaultKeepAlive = true

// Accept retry backoff bounds
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Error definitions
var (
	ErrBind = errors.New("bind failed")
)

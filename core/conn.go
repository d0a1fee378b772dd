package core

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/searchktools/static-server/core/http"
	"github.com/searchktools/static-server/core/observability"
)

// State is the position of a connection in its request/response cycle
type State int32

// Connection states
const (
	StateAwaitingRequest State = iota
	StateDispatching
	StateWriting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingRequest:
		return "awaiting-request"
	case StateDispatching:
		return "dispatching"
	case StateWriting:
		return "writing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// conn owns one accepted connection and runs its state machine
type conn struct {
	id      string
	rwc     net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer
	engine  *Engine
	log     logrus.FieldLogger
	monitor *observability.Monitor

	state   atomic.Int32
	aborted atomic.Bool
	served  int

	// per-request state, valid between transitions
	req       *http.Request
	resp      *http.Response
	keepAlive bool
	started   time.Time
}

func newConn(e *Engine, rwc net.Conn) *conn {
	id := uuid.NewString()
	c := &conn{
		id:      id,
		rwc:     rwc,
		br:      e.bufio.GetReader(rwc),
		bw:      e.bufio.GetWriter(rwc),
		engine:  e,
		monitor: e.monitor,
		log: e.log.WithFields(logrus.Fields{
			"conn":   id,
			"remote": rwc.RemoteAddr().String(),
		}),
	}
	c.state.Store(int32(StateAwaitingRequest))
	return c
}

// State returns the current state
func (c *conn) State() State {
	return State(c.state.Load())
}

// serve runs the state machine until the connection is closed
func (c *conn) serve(ctx context.Context) {
	c.monitor.ConnOpened()
	c.log.Debug("new connection")
	defer c.close()

	for state := c.State(); state != StateClosed; {
		state = c.step(ctx, state)
		c.state.Store(int32(state))
	}
}

// step performs one transition out of state and returns the next state
func (c *conn) step(ctx context.Context, state State) State {
	switch state {
	case StateAwaitingRequest:
		return c.awaitRequest(ctx)
	case StateDispatching:
		return c.dispatch()
	case StateWriting:
		return c.write()
	}
	return StateClosed
}

// interrupt wakes a connection blocked reading its next request.
// A response already being written is left to finish.
func (c *conn) interrupt() {
	c.rwc.SetReadDeadline(time.Now())
}

// forceClose aborts any pending read or write. Later deadlines are not re-armed.
func (c *conn) forceClose() {
	c.aborted.Store(true)
	c.rwc.SetDeadline(time.Now())
}

func (c *conn) awaitRequest(ctx context.Context) State {
	if ctx.Err() != nil {
		return StateClosed
	}
	c.armReadDeadline()
	// interrupt may have run before the deadline above replaced its own
	if ctx.Err() != nil {
		return StateClosed
	}

	req, err := http.ParseRequest(c.br)
	if err != nil {
		switch {
		case err == io.EOF:
			c.log.Debug("peer closed connection")
		case ctx.Err() != nil:
			c.log.Debug("request wait interrupted by shutdown")
		case errors.Is(err, os.ErrDeadlineExceeded):
			c.log.Debug("read timeout")
		default:
			c.log.WithError(err).Warn("failed to parse request")
			if http.IsParseError(err) {
				c.monitor.RecordError(observability.ErrorParse)
			}
		}
		return StateClosed
	}

	c.req = req
	c.started = time.Now()
	c.log.WithFields(logrus.Fields{
		"method": req.Method,
		"path":   req.Path,
	}).Debug("incoming request")
	return StateDispatching
}

func (c *conn) armReadDeadline() {
	timeout := c.engine.opts.ReadTimeout
	if c.served > 0 && c.engine.opts.IdleTimeout > 0 {
		timeout = c.engine.opts.IdleTimeout
	}
	if timeout > 0 {
		c.rwc.SetReadDeadline(time.Now().Add(timeout))
	} else {
		c.rwc.SetReadDeadline(time.Time{})
	}
}

func (c *conn) dispatch() State {
	resp, err := c.engine.handler.Handle(c.req)
	if err != nil {
		c.log.WithError(err).WithField("path", c.req.Path).Error("failed to handle request")
		c.monitor.RecordError(observability.ErrorHandler)
		return StateClosed
	}

	c.resp = resp
	c.keepAlive = DefaultKeepAlive && !c.req.WantsClose()
	return StateWriting
}

func (c *conn) write() State {
	req, resp := c.req, c.resp
	c.req, c.resp = nil, nil
	defer resp.Close()

	if !c.armWriteDeadline() {
		c.log.WithField("path", req.Path).Debug("connection aborted before response")
		return StateClosed
	}

	n, err := resp.Write(c.bw)
	if err != nil {
		c.log.WithError(err).WithField("path", req.Path).Warn("failed to write response")
		c.monitor.RecordError(observability.ErrorWrite)
		return StateClosed
	}

	elapsed := time.Since(c.started)
	c.served++
	c.monitor.RecordRequest(int(resp.Status), n, elapsed)
	c.log.WithFields(logrus.Fields{
		"method":   req.Method,
		"path":     req.Path,
		"status":   int(resp.Status),
		"size":     humanize.Bytes(uint64(n)),
		"duration": elapsed,
	}).Info("request served")

	if !c.keepAlive {
		return StateClosed
	}
	return StateAwaitingRequest
}

// armWriteDeadline reports false once the connection has been force closed
func (c *conn) armWriteDeadline() bool {
	if c.aborted.Load() {
		return false
	}
	if timeout := c.engine.opts.WriteTimeout; timeout > 0 {
		c.rwc.SetWriteDeadline(time.Now().Add(timeout))
	}
	// forceClose may have run before the deadline above replaced its own
	if c.aborted.Load() {
		c.rwc.SetDeadline(time.Now())
		return false
	}
	return true
}

func (c *conn) close() {
	if c.resp != nil {
		c.resp.Close()
		c.resp = nil
	}
	c.rwc.Close()
	c.engine.bufio.PutReader(c.br)
	c.engine.bufio.PutWriter(c.bw)
	c.monitor.ConnClosed()
	c.log.WithField("requests", c.served).Debug("closing connection")
}

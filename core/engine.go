package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"

	"github.com/searchktools/static-server/core/http"
	"github.com/searchktools/static-server/core/observability"
	"github.com/searchktools/static-server/core/pools"
)

// Handler produces the response for a parsed request.
// An error closes the connection without a response.
type Handler interface {
	Handle(req *http.Request) (*http.Response, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(req *http.Request) (*http.Response, error)

// Handle calls f(req)
func (f HandlerFunc) Handle(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Options tunes an Engine. Zero durations disable the matching timeout.
type Options struct {
	ReadTimeout     time.Duration // reading one request head
	IdleTimeout     time.Duration // waiting for a follow-up request on a kept-alive connection
	WriteTimeout    time.Duration // writing one response
	ShutdownTimeout time.Duration // waiting for open connections before forcing them closed
	MaxConnections  int           // concurrent connections, 0 for unlimited

	Logger  logrus.FieldLogger
	Monitor *observability.Monitor
}

// Engine accepts connections and runs one goroutine per connection
type Engine struct {
	handler Handler
	opts    Options
	log     logrus.FieldLogger
	monitor *observability.Monitor
	bufio   *pools.BufioPool

	addr atomic.Pointer[net.Addr]

	connMu sync.Mutex
	conns  map[*conn]struct{}
	wg     sync.WaitGroup
}

// NewEngine creates a new engine instance
func NewEngine(handler Handler, opts Options) *Engine {
	e := &Engine{
		handler: handler,
		opts:    opts,
		log:     opts.Logger,
		monitor: opts.Monitor,
		bufio:   pools.NewBufioPool(),
		conns:   make(map[*conn]struct{}),
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	if e.monitor == nil {
		e.monitor = observability.NewMonitor()
	}
	return e
}

// Monitor returns the engine's metrics
func (e *Engine) Monitor() *observability.Monitor {
	return e.monitor
}

// Addr returns the address being served, or nil before Serve starts
func (e *Engine) Addr() net.Addr {
	if a := e.addr.Load(); a != nil {
		return *a
	}
	return nil
}

// ActiveConnections returns the number of connections not yet closed
func (e *Engine) ActiveConnections() int {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	return len(e.conns)
}

// ListenAndServe binds addr and serves until ctx is cancelled.
// A bind failure is returned wrapping ErrBind before any connection is accepted.
func (e *Engine) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBind, addr, err)
	}
	return e.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or ln fails.
//
// On cancellation it stops accepting, lets every connection finish the
// response it is writing, and returns once all of them are closed. If
// ShutdownTimeout elapses first the remaining connections are aborted.
// Serve closes ln.
func (e *Engine) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	addr := ln.Addr()
	e.addr.Store(&addr)
	e.log.WithField("addr", addr.String()).Info("listening")

	ln = &tuningListener{Listener: ln, log: e.log}
	if e.opts.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, e.opts.MaxConnections)
	}

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()

	err := e.acceptLoop(ctx, ln)
	ln.Close()
	cancel()
	e.drain()
	return err
}

func (e *Engine) acceptLoop(ctx context.Context, ln net.Listener) error {
	var delay time.Duration
	for {
		rwc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}

			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			e.log.WithError(err).WithField("retry_in", delay).Error("accept error")

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil
			}
			continue
		}

		delay = 0
		e.startConn(ctx, rwc)
	}
}

func (e *Engine) startConn(ctx context.Context, rwc net.Conn) {
	c := newConn(e, rwc)

	e.connMu.Lock()
	e.conns[c] = struct{}{}
	e.connMu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.connMu.Lock()
			delete(e.conns, c)
			e.connMu.Unlock()
		}()

		stop := context.AfterFunc(ctx, c.interrupt)
		defer stop()

		c.serve(ctx)
	}()
}

// drain waits for every connection goroutine to return
func (e *Engine) drain() {
	if n := e.ActiveConnections(); n > 0 {
		e.log.WithField("connections", n).Info("waiting for open connections")
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	if e.opts.ShutdownTimeout <= 0 {
		<-done
		return
	}

	timer := time.NewTimer(e.opts.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		e.connMu.Lock()
		e.log.WithField("connections", len(e.conns)).Warn("shutdown timeout, aborting open connections")
		for c := range e.conns {
			c.forceClose()
		}
		e.connMu.Unlock()
		<-done
	}
}

// tuningListener sets TCP socket options on every accepted connection
type tuningListener struct {
	net.Listener
	log logrus.FieldLogger
}

func (l *tuningListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if err := tuneConn(c); err != nil {
		l.log.WithError(err).Debug("failed to set socket options")
	}
	return c, nil
}

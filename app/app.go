package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/searchktools/static-server/config"
	"github.com/searchktools/static-server/core"
	"github.com/searchktools/static-server/core/static"
)

// App wires the configuration, the file resolver and the engine together
type App struct {
	cfg      *config.Config
	log      *logrus.Logger
	resolver *static.Resolver
	engine   *core.Engine
}

// New creates an application instance
func New(cfg *config.Config) (*App, error) {
	return NewWithLogger(cfg, NewLogger(cfg))
}

// NewWithLogger creates an application instance that logs to logger
func NewWithLogger(cfg *config.Config, logger *logrus.Logger) (*App, error) {
	resolver, err := static.New(cfg.Root)
	if err != nil {
		return nil, err
	}

	engine := core.NewEngine(resolver, core.Options{
		ReadTimeout:     cfg.ReadTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		MaxConnections:  cfg.MaxConns,
		Logger:          logger,
	})

	return &App{
		cfg:      cfg,
		log:      logger,
		resolver: resolver,
		engine:   engine,
	}, nil
}

// Logger returns the application logger
func (a *App) Logger() *logrus.Logger {
	return a.log
}

// Engine returns the underlying engine
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then drains
// open connections. It returns an error wrapping core.ErrBind if the
// listen address is unavailable.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopLog := context.AfterFunc(ctx, func() {
		a.log.Info("Shutdown requested, no longer accepting connections")
	})

	a.log.WithFields(logrus.Fields{
		"addr": a.cfg.Address(),
		"root": a.resolver.Dir(),
		"env":  a.cfg.Env,
	}).Info("🚀 Static file server starting")

	err := a.engine.ListenAndServe(ctx, a.cfg.Address())
	stopLog()
	if cerr := a.resolver.Close(); cerr != nil {
		a.log.WithError(cerr).Warn("failed to close root directory")
	}
	if err != nil {
		return err
	}

	a.report()
	return nil
}

// report logs a summary and writes the metrics snapshot if configured
func (a *App) report() {
	m := a.engine.Monitor()
	ps := a.engine.PoolStats()
	a.log.WithFields(logrus.Fields{
		"requests":       m.Requests(),
		"sent":           humanize.Bytes(m.BytesSent()),
		"bufio_hit_rate": fmt.Sprintf("%.1f%%", core.HitRate(ps.Bufio)*100),
		"bytes_hit_rate": fmt.Sprintf("%.1f%%", core.HitRate(ps.Bytes)*100),
	}).Info("Server stopped")

	if a.cfg.StatsFile == "" {
		return
	}
	if err := m.WriteSnapshot(a.cfg.StatsFile); err != nil {
		a.log.WithError(err).Error("failed to write stats file")
		return
	}
	a.log.WithField("path", a.cfg.StatsFile).Info("Stats written")
}

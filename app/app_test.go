package app

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	nethttp "net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/searchktools/static-server/config"
	"github.com/searchktools/static-server/core"
	"github.com/searchktools/static-server/core/static"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.Root = root
	cfg.StatsFile = filepath.Join(t.TempDir(), "stats.json")
	return cfg
}

// listenAddr waits for the engine to log its bound address
func listenAddr(t *testing.T, hook *test.Hook) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, e := range hook.AllEntries() {
			if e.Message == "listening" {
				return e.Data["addr"].(string)
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server did not start listening")
	return ""
}

func TestRunServesAndWritesStats(t *testing.T) {
	cfg := testConfig(t)
	logger, hook := test.NewNullLogger()

	a, err := NewWithLogger(cfg, logger)
	if err != nil {
		t.Fatalf("NewWithLogger failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx)
	}()

	conn, err := net.Dial("tcp", listenAddr(t, hook))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	for _, path := range []string{"/index.html", "/missing"} {
		io.WriteString(conn, "GET "+path+" HTTP/1.1\r\nHost: localhost\r\n\r\n")
	}
	br := bufio.NewReader(conn)
	tests := []struct {
		status int
		body   string
	}{
		{200, "hello world"},
		{404, string(static.NotFoundPage())},
	}
	for _, want := range tests {
		resp, err := nethttp.ReadResponse(br, nil)
		if err != nil {
			t.Fatalf("read response: %v", err)
		}
		b, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("read body: %v", err)
		}

		if resp.StatusCode != want.status {
			t.Errorf("Expected %d, got %d", want.status, resp.StatusCode)
		}
		if got := resp.Header.Get("Content-Type"); got != "text/html" {
			t.Errorf("Expected Content-Type text/html, got %q", got)
		}
		if got := resp.Header.Get("Content-Length"); got != strconv.Itoa(len(want.body)) {
			t.Errorf("Expected Content-Length %d, got %q", len(want.body), got)
		}
		if string(b) != want.body {
			t.Errorf("Expected body %q, got %q", want.body, b)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	data, err := os.ReadFile(cfg.StatsFile)
	if err != nil {
		t.Fatalf("Stats file not written: %v", err)
	}
	if len(data) == 0 {
		t.Error("Stats file is empty")
	}
	if got := a.Engine().Monitor().Requests(); got != 2 {
		t.Errorf("Expected 2 requests, got %d", got)
	}

	var stopped bool
	for _, e := range hook.AllEntries() {
		if e.Message == "Server stopped" && e.Level == logrus.InfoLevel {
			stopped = true
		}
	}
	if !stopped {
		t.Error("Expected a shutdown summary log entry")
	}
	if !hasEntry(hook, shutdownMessage) {
		t.Error("Expected a shutdown request log entry")
	}
}

const shutdownMessage = "Shutdown requested, no longer accepting connections"

// hasEntry waits briefly for an asynchronously logged message
func hasEntry(hook *test.Hook, msg string) bool {
	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		for _, e := range hook.AllEntries() {
			if e.Message == msg {
				return true
			}
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	cfg := testConfig(t)
	cfg.Port = ln.Addr().(*net.TCPAddr).Port
	logger, hook := test.NewNullLogger()

	a, err := NewWithLogger(cfg, logger)
	if err != nil {
		t.Fatal(err)
	}

	err = a.Run(context.Background())
	if hasEntry(hook, shutdownMessage) {
		t.Error("Bind failure should not log a shutdown request")
	}
	if !errors.Is(err, core.ErrBind) {
		t.Errorf("Expected ErrBind, got %v", err)
	}
	if _, statErr := os.Stat(cfg.StatsFile); statErr == nil {
		t.Error("Stats file should not be written when binding fails")
	}
	if !strings.Contains(err.Error(), strconv.Itoa(cfg.Port)) {
		t.Errorf("Expected error to name the port, got %v", err)
	}
}

func TestNewMissingRoot(t *testing.T) {
	cfg := testConfig(t)
	cfg.Root = filepath.Join(cfg.Root, "nope")

	if _, err := New(cfg); err == nil {
		t.Error("Expected error for missing root")
	}
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "debug"
	cfg.LogFormat = "json"

	logger := NewLogger(cfg)
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("Expected debug level, got %s", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("Expected JSON formatter, got %T", logger.Formatter)
	}

	cfg.LogFormat = "text"
	if _, ok := NewLogger(cfg).Formatter.(*logrus.TextFormatter); !ok {
		t.Error("Expected text formatter")
	}
}

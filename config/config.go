package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// EnvPrefix prefixes environment variables read by Load
const EnvPrefix = "STATIC"

// Config holds all application configuration.
type Config struct {
	Host string `config:"host"`
	Port int    `config:"port"`
	Root string `config:"root"`

	ReadTimeout     time.Duration `config:"read_timeout"`
	WriteTimeout    time.Duration `config:"write_timeout"`
	IdleTimeout     time.Duration `config:"idle_timeout"`
	ShutdownTimeout time.Duration `config:"shutdown_timeout"`
	MaxConns        int           `config:"max_conns"`

	LogLevel  string `config:"log_level"`
	LogFormat string `config:"log_format"`
	StatsFile string `config:"stats_file"`
	Env       string `config:"env"`
}

// Default returns the built-in configuration. Root is the working directory.
func Default() *Config {
	root, err := os.Getwd()
	if err != nil {
		root = "."
	}
	return &Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Root:            root,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 0,
		MaxConns:        0,
		LogLevel:        "info",
		LogFormat:       "text",
		Env:             "development",
	}
}

// Load builds the configuration from, in increasing precedence: defaults,
// the YAML file named by --config, STATIC_* environment variables and
// command-line flags. args excludes the program name. Timeouts take a Go
// duration ("10s") or a bare number of seconds in every layer.
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("static-server", flag.ContinueOnError)
	configFile := fs.String("config", "", "YAML configuration file")
	fs.String("host", cfg.Host, "Listen host")
	fs.Int("port", cfg.Port, "HTTP server port")
	fs.String("root", cfg.Root, "Directory to serve files from")
	fs.String("read-timeout", cfg.ReadTimeout.String(), "Timeout for reading a request head (0 disables)")
	fs.String("write-timeout", cfg.WriteTimeout.String(), "Timeout for writing a response (0 disables)")
	fs.String("idle-timeout", cfg.IdleTimeout.String(), "Keep-alive wait for the next request (0 uses read-timeout)")
	fs.String("shutdown-timeout", cfg.ShutdownTimeout.String(), "Wait for open connections on shutdown before aborting them (0 waits forever)")
	fs.Int("max-conns", cfg.MaxConns, "Maximum concurrent connections (0 for unlimited)")
	fs.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.String("log-format", cfg.LogFormat, "Log format (text, json)")
	fs.String("stats-file", cfg.StatsFile, "Write a JSON metrics snapshot here on shutdown")
	fs.String("env", cfg.Env, "Environment (development/production)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	m := NewManager()
	if *configFile != "" {
		if err := m.LoadFromYAML(*configFile); err != nil {
			return nil, err
		}
	}
	m.LoadFromEnv(EnvPrefix)
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "config" {
			m.Set(f.Name, f.Value.String())
		}
	})

	if err := m.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration and makes Root absolute
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	root, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("invalid root %q: %w", c.Root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("invalid root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("invalid root: %s is not a directory", root)
	}
	c.Root = root

	for name, d := range map[string]time.Duration{
		"read timeout":     c.ReadTimeout,
		"write timeout":    c.WriteTimeout,
		"idle timeout":     c.IdleTimeout,
		"shutdown timeout": c.ShutdownTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("negative %s: %v", name, d)
		}
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("negative max connections: %d", c.MaxConns)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return errors.New("log format must be text or json")
	}

	return nil
}

// Address returns the listen address
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Package config loads server settings from defaults, an optional YAML file
// and command-line flags, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mj1618/ax-mcp/internal/logging"
	"github.com/mj1618/ax-mcp/internal/model"
)

// Transports.
const (
	TransportStdio    = "stdio"
	TransportUnix     = "unix"
	TransportHTTP     = "http"
	TransportMCPStdio = "mcp-stdio"
	TransportMCPHTTP  = "mcp-http"
)

var transports = []string{TransportStdio, TransportUnix, TransportHTTP, TransportMCPStdio, TransportMCPHTTP}

// Config is the complete server configuration.
type Config struct {
	Transport  string `yaml:"transport"`
	Addr       string `yaml:"addr"`
	SocketPath string `yaml:"socket_path"`
	Backend    string `yaml:"backend"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	RequestTimeout   time.Duration `yaml:"request_timeout"`
	BootstrapTimeout time.Duration `yaml:"bootstrap_timeout"`
	IdentityTTL      time.Duration `yaml:"identity_ttl"`

	MaxNodes    int           `yaml:"max_nodes"`
	RateLimit   int           `yaml:"rate_limit"`
	RateWindow  time.Duration `yaml:"rate_window"`
	RedactRoles []string      `yaml:"redact_roles"`

	Metrics bool `yaml:"metrics"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Transport:        TransportStdio,
		Addr:             "127.0.0.1:0",
		Backend:          "auto",
		LogLevel:         "info",
		LogFormat:        "text",
		RequestTimeout:   time.Second,
		BootstrapTimeout: 2 * time.Second,
		IdentityTTL:      30 * time.Second,
		MaxNodes:         500,
		RateLimit:        100,
		RateWindow:       time.Second,
		Metrics:          true,
	}
}

// DefaultSocketPath is where the unix transport listens when no path is set.
func DefaultSocketPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("ax-mcp-%d.sock", os.Getpid()))
}

// Load returns Default overlaid with the YAML file at path. An empty path
// returns the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// AddFlags binds cfg's fields to flags on fs. Values already in cfg become
// the flag defaults, so flags override the file only when set.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Transport, "transport", c.Transport, "Transport: "+strings.Join(transports, ", "))
	fs.StringVar(&c.Addr, "addr", c.Addr, "Listen address for http and mcp-http (port 0 picks a free port)")
	fs.StringVar(&c.SocketPath, "socket", c.SocketPath, "Unix socket path (default $TMPDIR/ax-mcp-<pid>.sock)")
	fs.StringVar(&c.Backend, "backend", c.Backend, "Accessibility backend (auto picks the native one)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format: text, json")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "Deadline for each native accessibility call")
	fs.DurationVar(&c.BootstrapTimeout, "bootstrap-timeout", c.BootstrapTimeout, "How long to wait for the accessibility tree to appear")
	fs.DurationVar(&c.IdentityTTL, "identity-ttl", c.IdentityTTL, "How long an unused node id stays resolvable")
	fs.IntVar(&c.MaxNodes, "max-nodes", c.MaxNodes, "Default query_tree page size")
	fs.IntVar(&c.RateLimit, "rate-limit", c.RateLimit, "Requests allowed per rate window")
	fs.DurationVar(&c.RateWindow, "rate-window", c.RateWindow, "Rate limiter window")
	fs.StringSliceVar(&c.RedactRoles, "redact-role", c.RedactRoles, "Extra roles whose name and value are redacted (repeatable)")
	fs.BoolVar(&c.Metrics, "metrics", c.Metrics, "Serve /metrics on the http transport")
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if !slices.Contains(transports, c.Transport) {
		return fmt.Errorf("unsupported transport %q (use %s)", c.Transport, strings.Join(transports, ", "))
	}
	if (c.Transport == TransportHTTP || c.Transport == TransportMCPHTTP) && c.Addr == "" {
		return fmt.Errorf("transport %s needs an addr", c.Transport)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unsupported log format %q (use text or json)", c.LogFormat)
	}
	for name, d := range map[string]time.Duration{
		"request_timeout":   c.RequestTimeout,
		"bootstrap_timeout": c.BootstrapTimeout,
		"identity_ttl":      c.IdentityTTL,
		"rate_window":       c.RateWindow,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.MaxNodes <= 0 {
		return fmt.Errorf("max_nodes must be positive, got %d", c.MaxNodes)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive, got %d", c.RateLimit)
	}
	for _, r := range c.RedactRoles {
		if strings.TrimSpace(r) == "" {
			return errors.New("redact_roles must not contain empty entries")
		}
	}
	return nil
}

// SensitiveRoles returns RedactRoles as model roles.
func (c Config) SensitiveRoles() []model.Role {
	out := make([]model.Role, 0, len(c.RedactRoles))
	for _, r := range c.RedactRoles {
		out = append(out, model.Role(strings.TrimSpace(r)))
	}
	return out
}

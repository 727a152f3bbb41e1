// Package cmdutil contains helpers shared by the command line tools.
package cmdutil

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/quic-go/dcbench"

	"gopkg.in/yaml.v3"
)

// Roles and transports supported by the command line tools.
const (
	RoleSender = "sender"
	RoleEcho   = "echo"
	RoleLocal  = "local"

	TransportMem  = "mem"
	TransportQUIC = "quic"
	TransportWS   = "ws"
)

// Config is the configuration of a command line run.
// It can be loaded from a YAML file, flags take precedence.
type Config struct {
	Role      string `yaml:"role"`
	Transport string `yaml:"transport"`
	Address   string `yaml:"address"`

	MessageSize         int           `yaml:"message_size"`
	TargetRate          int64         `yaml:"target_rate"`
	Unreliable          bool          `yaml:"unreliable"`
	ConfirmationTimeout time.Duration `yaml:"confirmation_timeout"`
	MaxBufferedBytes    int64         `yaml:"max_buffered_bytes"`
	StatsWindow         time.Duration `yaml:"stats_window"`
	RestartDelay        time.Duration `yaml:"restart_delay"`

	// TickInterval is the interval at which the state machines are ticked.
	TickInterval time.Duration `yaml:"tick_interval"`
	// Duration stops the run after the given time. 0 runs until interrupted.
	Duration time.Duration `yaml:"duration"`

	// MetricsAddr is the address to serve Prometheus metrics on.
	MetricsAddr string `yaml:"metrics"`
	// TracePath is the file the stats trace is written to.
	TracePath string `yaml:"trace"`
	// LogLevel uses the same format as the DCBENCH_LOG_LEVEL environment variable.
	LogLevel string `yaml:"log_level"`

	TLS       TLSConfig       `yaml:"tls"`
	QUIC      QUICConfig      `yaml:"quic"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Link      LinkConfig      `yaml:"link"`
}

// TLSConfig configures the certificate used by a QUIC listener.
// If no files are configured, a self-signed certificate is generated.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type QUICConfig struct {
	MaxQueuedBytes int           `yaml:"max_queued_bytes"`
	MaxIdleTimeout time.Duration `yaml:"max_idle_timeout"`
}

type WebSocketConfig struct {
	Path           string `yaml:"path"`
	ReadLimit      int    `yaml:"read_limit"`
	WriteLimit     int    `yaml:"write_limit"`
	MaxQueuedBytes int    `yaml:"max_queued_bytes"`
}

// LinkConfig configures the simulated link used with the mem transport.
type LinkConfig struct {
	Bandwidth        int     `yaml:"bandwidth"`
	MaxBufferedBytes int     `yaml:"max_buffered_bytes"`
	Loss             float64 `yaml:"loss"`
	Seed             uint64  `yaml:"seed"`
}

// DefaultConfig returns the configuration used if neither a file nor flags are given.
func DefaultConfig() *Config {
	return &Config{
		Role:         RoleLocal,
		Transport:    TransportMem,
		Address:      "localhost:4242",
		TickInterval: dcbench.DefaultTickInterval,
	}
}

// LoadConfig reads a YAML configuration file into c.
// Unknown keys are rejected.
func LoadConfig(path string, c *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// ParseFlags parses the command line.
// If a configuration file is given with -config, it is loaded first,
// and flags that were set explicitly override its values.
func ParseFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	c := DefaultConfig()
	var configPath string
	fs.StringVar(&configPath, "config", "", "YAML configuration file")
	fs.StringVar(&c.Role, "role", c.Role, "role: sender, echo or local")
	fs.StringVar(&c.Transport, "transport", c.Transport, "transport: mem, quic or ws")
	fs.StringVar(&c.Address, "addr", c.Address, "address to listen on or to call")
	fs.IntVar(&c.MessageSize, "size", c.MessageSize, "message size in bytes, including the 8 byte header")
	fs.Int64Var(&c.TargetRate, "rate", c.TargetRate, "target rate in bytes/s")
	fs.BoolVar(&c.Unreliable, "unreliable", c.Unreliable, "send messages unreliably")
	fs.DurationVar(&c.ConfirmationTimeout, "timeout", c.ConfirmationTimeout, "time after which a message is declared lost")
	fs.Int64Var(&c.MaxBufferedBytes, "max-buffer", c.MaxBufferedBytes, "pause sending above this many buffered bytes")
	fs.DurationVar(&c.StatsWindow, "window", c.StatsWindow, "interval of the rolling averages")
	fs.DurationVar(&c.TickInterval, "tick", c.TickInterval, "tick interval")
	fs.DurationVar(&c.Duration, "duration", c.Duration, "stop after this time (0 runs until interrupted)")
	fs.StringVar(&c.MetricsAddr, "metrics", c.MetricsAddr, "serve Prometheus metrics on this address")
	fs.StringVar(&c.TracePath, "trace", c.TracePath, "write a stats trace to this file")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level, e.g. \"info\" or \"debug,pacer=info\"")
	fs.IntVar(&c.WebSocket.ReadLimit, "ws-read-limit", c.WebSocket.ReadLimit, "limit the listener's read rate in bytes/s (ws)")
	fs.IntVar(&c.WebSocket.WriteLimit, "ws-write-limit", c.WebSocket.WriteLimit, "limit the listener's write rate in bytes/s (ws)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := LoadConfig(configPath, c); err != nil {
			return nil, err
		}
		// apply the flags again, so they override the file
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch c.Role {
	case RoleSender, RoleEcho, RoleLocal:
	default:
		return fmt.Errorf("invalid role: %q", c.Role)
	}
	switch c.Transport {
	case TransportMem, TransportQUIC, TransportWS:
	default:
		return fmt.Errorf("invalid transport: %q", c.Transport)
	}
	if c.Transport == TransportMem && c.Role != RoleLocal {
		return errors.New("the mem transport only works with -role local")
	}
	if c.TickInterval <= 0 {
		return errors.New("tick interval must be positive")
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return errors.New("both tls.cert_file and tls.key_file need to be set")
	}
	return nil
}

// BenchConfig returns the state machine configuration.
func (c *Config) BenchConfig() *dcbench.Config {
	return &dcbench.Config{
		Address:             c.Address,
		MessageSize:         c.MessageSize,
		TargetRate:          dcbench.ByteCount(c.TargetRate),
		Unreliable:          c.Unreliable,
		ConfirmationTimeout: c.ConfirmationTimeout,
		MaxBufferedBytes:    dcbench.ByteCount(c.MaxBufferedBytes),
		StatsWindow:         c.StatsWindow,
		RestartDelay:        c.RestartDelay,
	}
}

// Package config holds the session configuration: role, transport and the
// connection parameters, loaded from defaults, an optional JSON file and
// CLI flags.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/mitchellh/go-homedir"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid configuration")

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "~/.salvo.json"

// DefaultPort is the game port used when none is configured.
const DefaultPort = 7777

// Role represents the user's chosen role (host or client).
type Role string

const (
	RoleHost   Role = "host"
	RoleClient Role = "client"
)

// Transport selects how the game stream is carried.
type Transport string

const (
	TransportTCP    Transport = "tcp"    // raw TCP stream
	TransportWS     Transport = "ws"     // binary WebSocket messages
	TransportWebRTC Transport = "webrtc" // DataChannel, signaled over WebSocket
)

// Duration is a time.Duration that reads "1.5s" style strings from JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("duration must be a string like \"1s\": %s", b)
		}
		*d = Duration(n)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config stores every session parameter. Zero values are filled by Default.
type Config struct {
	Role      Role      `json:"role"`
	Transport Transport `json:"transport"`

	Host string `json:"host"` // Host: bind address; Client: address of the host
	Port int    `json:"port"`

	ConnectTimeout Duration `json:"connect_timeout"`
	RetryRefused   bool     `json:"retry_refused"`
	RetryInterval  Duration `json:"retry_interval"`

	ICEServers      []string `json:"ice_servers,omitempty"`
	IncludeLoopback bool     `json:"include_loopback"`

	MetricsAddr string `json:"metrics_addr,omitempty"`
	Debug       bool   `json:"debug"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Role:            RoleHost,
		Transport:       TransportTCP,
		Host:            "127.0.0.1",
		Port:            DefaultPort,
		ConnectTimeout:  Duration(time.Second),
		RetryInterval:   Duration(time.Second),
		IncludeLoopback: true,
	}
}

// Load reads path over Default. A leading "~" is expanded. An empty path
// means DefaultPath, which may be missing; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to expand %s: %w", path, err)
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", expanded, err)
	}
	return cfg, nil
}

// Validate checks the configuration. Port 0 is accepted for the host only,
// where it selects an ephemeral port.
func (c Config) Validate() error {
	switch c.Role {
	case RoleHost, RoleClient:
	default:
		return fmt.Errorf("%w: role must be %q or %q, got %q", ErrInvalid, RoleHost, RoleClient, c.Role)
	}

	switch c.Transport {
	case TransportTCP, TransportWS, TransportWebRTC:
	default:
		return fmt.Errorf("%w: transport must be tcp, ws or webrtc, got %q", ErrInvalid, c.Transport)
	}

	minPort := 1
	if c.Role == RoleHost {
		minPort = 0
	}
	if c.Port < minPort || c.Port > 65535 {
		return fmt.Errorf("%w: port must be %d ~ 65535, got %d", ErrInvalid, minPort, c.Port)
	}

	if c.Role == RoleClient && c.Host == "" {
		return fmt.Errorf("%w: client needs the host address", ErrInvalid)
	}
	if c.ConnectTimeout < 0 || c.RetryInterval < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalid)
	}
	return nil
}

// Address joins Host and Port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

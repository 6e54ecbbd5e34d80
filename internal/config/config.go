// Package config holds the session configuration types.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Role represents the peer's chosen role (host or client).
type Role string

const (
	RoleHost   Role = "host"
	RoleClient Role = "client"
	RoleLocal  Role = "local" // no networking, both sides play on this process
)

// TransportKind selects the byte stream that carries move lines.
type TransportKind string

const (
	TransportTCP    TransportKind = "tcp"
	TransportWS     TransportKind = "ws"
	TransportWebRTC TransportKind = "webrtc"
)

// DefaultPort is the port the Host binds when none is given.
const DefaultPort = 9000

var (
	ErrInvalidRole      = errors.New("invalid role: must be 'host', 'client' or 'local'")
	ErrInvalidPort      = errors.New("invalid port: must be 0~65535")
	ErrMissingAddr      = errors.New("missing address for client role")
	ErrInvalidTransport = errors.New("invalid transport: must be 'tcp', 'ws' or 'webrtc'")
)

// Config stores all parameters gathered from the config file, CLI flags or
// the interactive prompts.
type Config struct {
	Role      Role          `yaml:"role"`
	Port      int           `yaml:"port"` // Host: port to bind (0 picks a free one)
	Addr      string        `yaml:"addr"` // Client: host:port (tcp) or ws(s):// URL
	Transport TransportKind `yaml:"transport"`

	DialTimeout   time.Duration `yaml:"dial_timeout"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`   // 0 waits forever for the opponent's line
	RetryInterval time.Duration `yaml:"retry_interval"` // delay before re-trying a failed write

	STUNServers []string `yaml:"stun_servers"` // webrtc only

	Debug bool `yaml:"debug"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Port:          DefaultPort,
		Transport:     TransportTCP,
		DialTimeout:   10 * time.Second,
		RetryInterval: 20 * time.Millisecond,
		STUNServers: []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		},
	}
}

// Load reads a YAML file on top of Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the fields required by the selected role.
func (c Config) Validate() error {
	switch c.Role {
	case RoleHost, RoleLocal:
	case RoleClient:
		if c.Addr == "" {
			return ErrMissingAddr
		}
	default:
		return ErrInvalidRole
	}

	if c.Port < 0 || c.Port > 65535 {
		return ErrInvalidPort
	}

	switch c.Transport {
	case TransportTCP, TransportWS, TransportWebRTC:
	default:
		return ErrInvalidTransport
	}

	return nil
}

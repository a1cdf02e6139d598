package config

import (
	"fmt"
	"strings"
	"time"
)

// Transport names accepted by Config.Transport.
const (
	TransportChan = "chan"
	TransportGRPC = "grpc"
)

// Peer represents a participant in the simulation.
type Peer struct {
	ID   string `mapstructure:"id" yaml:"id"`
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Config holds the simulation configuration.
type Config struct {
	Nodes       []Peer                   `mapstructure:"nodes" yaml:"nodes"`
	Iterations  int                      `mapstructure:"iterations" yaml:"iterations"`
	Seed        int64                    `mapstructure:"seed" yaml:"seed"`
	MinDelay    time.Duration            `mapstructure:"min-delay" yaml:"min-delay"`
	MaxDelay    time.Duration            `mapstructure:"max-delay" yaml:"max-delay"`
	Transport   string                   `mapstructure:"transport" yaml:"transport"`
	InboxSize   int                      `mapstructure:"inbox-size" yaml:"inbox-size"`
	Skews       map[string]time.Duration `mapstructure:"skews" yaml:"skews"`
	LogLevel    string                   `mapstructure:"log-level" yaml:"log-level"`
	NoColor     bool                     `mapstructure:"no-color" yaml:"no-color"`
	MetricsAddr string                   `mapstructure:"metrics-addr" yaml:"metrics-addr"`
	TraceOut    string                   `mapstructure:"trace-out" yaml:"trace-out"`
}

// Default returns the two-node configuration of the demo: nodes n1 and n2
// exchanging ten messages each, one every one to three seconds.
func Default() Config {
	return Config{
		Nodes: []Peer{
			{ID: "n1", Addr: "127.0.0.1:50061"},
			{ID: "n2", Addr: "127.0.0.1:50062"},
		},
		Iterations: 10,
		Seed:       1,
		MinDelay:   1 * time.Second,
		MaxDelay:   3 * time.Second,
		Transport:  TransportChan,
		InboxSize:  16,
		LogLevel:   "info",
	}
}

// ParsePeers parses a comma-separated list of peers in the format:
// "id1=addr1,id2=addr2,id3=addr3"
// The address may be omitted ("id1,id2") when the channel transport is used.
func ParsePeers(peersStr string) ([]Peer, error) {
	if peersStr == "" {
		return []Peer{}, nil
	}

	parts := strings.Split(peersStr, ",")
	peers := make([]Peer, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		id := strings.TrimSpace(kv[0])
		if id == "" {
			return nil, fmt.Errorf("peer ID cannot be empty: %s", part)
		}

		var addr string
		if len(kv) == 2 {
			addr = strings.TrimSpace(kv[1])
			if addr == "" {
				return nil, fmt.Errorf("peer address cannot be empty: %s", part)
			}
		}

		peers = append(peers, Peer{
			ID:   id,
			Addr: addr,
		})
	}

	return peers, nil
}

// ParseSkews parses a comma-separated list of per-node clock offsets in the
// format "n1=25ms,n2=-40ms".
func ParseSkews(s string) (map[string]time.Duration, error) {
	skews := make(map[string]time.Duration)
	if strings.TrimSpace(s) == "" {
		return skews, nil
	}

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid skew format: %s (expected id=duration)", part)
		}

		id := strings.TrimSpace(kv[0])
		if id == "" {
			return nil, fmt.Errorf("skew node ID cannot be empty: %s", part)
		}
		d, err := time.ParseDuration(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid skew for %s: %w", id, err)
		}
		skews[id] = d
	}

	return skews, nil
}

// NodeIDs returns the configured participant IDs in order.
func (c *Config) NodeIDs() []string {
	ids := make([]string, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

// Addrs maps participant IDs to their listen addresses.
func (c *Config) Addrs() map[string]string {
	addrs := make(map[string]string, len(c.Nodes))
	for _, n := range c.Nodes {
		addrs[n.ID] = n.Addr
	}
	return addrs
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if len(c.Nodes) < 2 {
		return fmt.Errorf("at least 2 nodes are required, got %d", len(c.Nodes))
	}

	seen := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node ID cannot be empty")
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate node ID: %s", n.ID)
		}
		seen[n.ID] = true

		if c.Transport == TransportGRPC && n.Addr == "" {
			return fmt.Errorf("node %s needs an address for the %s transport", n.ID, TransportGRPC)
		}
	}

	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	if c.MinDelay < 0 || c.MaxDelay < 0 {
		return fmt.Errorf("delays cannot be negative")
	}
	if c.MinDelay > c.MaxDelay {
		return fmt.Errorf("min delay %s exceeds max delay %s", c.MinDelay, c.MaxDelay)
	}
	if c.InboxSize < 0 {
		return fmt.Errorf("inbox size cannot be negative, got %d", c.InboxSize)
	}

	switch c.Transport {
	case TransportChan, TransportGRPC:
	default:
		return fmt.Errorf("unknown transport %q (expected %s or %s)", c.Transport, TransportChan, TransportGRPC)
	}

	for id := range c.Skews {
		if !seen[id] {
			return fmt.Errorf("skew configured for unknown node %s", id)
		}
	}

	return nil
}

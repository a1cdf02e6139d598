package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeers(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Peer
		wantErr bool
	}{
		{
			name:  "empty string",
			input: "",
			want:  []Peer{},
		},
		{
			name:  "single peer",
			input: "n1=127.0.0.1:50061",
			want: []Peer{
				{ID: "n1", Addr: "127.0.0.1:50061"},
			},
		},
		{
			name:  "multiple peers",
			input: "n1=127.0.0.1:50061,n2=127.0.0.1:50062",
			want: []Peer{
				{ID: "n1", Addr: "127.0.0.1:50061"},
				{ID: "n2", Addr: "127.0.0.1:50062"},
			},
		},
		{
			name:  "with spaces",
			input: "n1 = 127.0.0.1:50061 , n2 = 127.0.0.1:50062",
			want: []Peer{
				{ID: "n1", Addr: "127.0.0.1:50061"},
				{ID: "n2", Addr: "127.0.0.1:50062"},
			},
		},
		{
			name:  "ids only",
			input: "n1,n2",
			want: []Peer{
				{ID: "n1"},
				{ID: "n2"},
			},
		},
		{
			name:    "invalid format - empty ID",
			input:   "=127.0.0.1:50061",
			wantErr: true,
		},
		{
			name:    "invalid format - empty addr",
			input:   "n1=",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeers(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSkews(t *testing.T) {
	got, err := ParseSkews("n1=25ms, n2=-40ms")
	require.NoError(t, err)
	assert.Equal(t, map[string]time.Duration{
		"n1": 25 * time.Millisecond,
		"n2": -40 * time.Millisecond,
	}, got)

	got, err = ParseSkews("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseSkews("n1")
	assert.Error(t, err)

	_, err = ParseSkews("n1=soon")
	assert.Error(t, err)

	_, err = ParseSkews("=5ms")
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "default is valid", mutate: func(c *Config) {}},
		{
			name:    "single node",
			mutate:  func(c *Config) { c.Nodes = c.Nodes[:1] },
			wantErr: "at least 2 nodes",
		},
		{
			name:    "duplicate node",
			mutate:  func(c *Config) { c.Nodes[1].ID = "n1" },
			wantErr: "duplicate node ID",
		},
		{
			name:    "empty node ID",
			mutate:  func(c *Config) { c.Nodes[0].ID = "" },
			wantErr: "cannot be empty",
		},
		{
			name:    "zero iterations",
			mutate:  func(c *Config) { c.Iterations = 0 },
			wantErr: "iterations must be positive",
		},
		{
			name:    "negative delay",
			mutate:  func(c *Config) { c.MinDelay = -time.Second },
			wantErr: "cannot be negative",
		},
		{
			name:    "min above max",
			mutate:  func(c *Config) { c.MinDelay = 5 * time.Second },
			wantErr: "exceeds max delay",
		},
		{
			name:    "unknown transport",
			mutate:  func(c *Config) { c.Transport = "carrier-pigeon" },
			wantErr: "unknown transport",
		},
		{
			name: "grpc without address",
			mutate: func(c *Config) {
				c.Transport = TransportGRPC
				c.Nodes[1].Addr = ""
			},
			wantErr: "needs an address",
		},
		{
			name:    "skew for unknown node",
			mutate:  func(c *Config) { c.Skews = map[string]time.Duration{"n9": time.Millisecond} },
			wantErr: "unknown node n9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_NodeIDsAndAddrs(t *testing.T) {
	cfg := Default()

	assert.Equal(t, []string{"n1", "n2"}, cfg.NodeIDs())
	assert.Equal(t, map[string]string{
		"n1": "127.0.0.1:50061",
		"n2": "127.0.0.1:50062",
	}, cfg.Addrs())
}

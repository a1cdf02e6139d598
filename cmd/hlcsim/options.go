package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"hlcrelay/internal/config"
)

const envPrefix = "HLCSIM"

// options binds command line flags, environment variables and an optional
// YAML file to a config.Config. Flags win over the environment, which wins
// over the file.
type options struct {
	v          *viper.Viper
	configFile string
}

func newOptions(flags *pflag.FlagSet) *options {
	def := config.Default()
	opt := &options{v: viper.New()}

	flags.StringVarP(&opt.configFile, "config-file", "f", "", "Load the simulation configuration from a file (yaml format).")
	flags.String("nodes", formatPeers(def.Nodes), "Participants as id=addr pairs, comma separated.")
	flags.Int("iterations", def.Iterations, "Messages each node sends.")
	flags.Int64("seed", def.Seed, "Seed for delays and target selection.")
	flags.Duration("min-delay", def.MinDelay, "Minimum delay before each send.")
	flags.Duration("max-delay", def.MaxDelay, "Maximum delay before each send.")
	flags.String("transport", def.Transport, "Message transport (chan or grpc).")
	flags.Int("inbox-size", def.InboxSize, "Capacity of each node's inbound queue.")
	flags.String("skews", "", "Per-node clock offsets, e.g. n1=25ms,n2=-40ms.")
	flags.String("log-level", def.LogLevel, "Log level (debug, info, warn, error).")
	flags.Bool("no-color", def.NoColor, "Print log levels without color.")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address while running.")
	flags.String("trace-out", "", "Write the event trace to this file (yaml format).")

	opt.v.BindPFlags(flags)
	return opt
}

func (opt *options) load() (config.Config, error) {
	opt.v.SetEnvPrefix(envPrefix)
	opt.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	opt.v.AutomaticEnv()

	if opt.configFile != "" {
		opt.v.SetConfigFile(opt.configFile)
		opt.v.SetConfigType("yaml")
		if err := opt.v.ReadInConfig(); err != nil {
			return config.Config{}, fmt.Errorf("read config file %s failed: %w", opt.configFile, err)
		}
	}

	cfg := config.Default()

	switch nodes := opt.v.Get("nodes").(type) {
	case string:
		peers, err := config.ParsePeers(nodes)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Nodes = peers
	default:
		if err := opt.v.UnmarshalKey("nodes", &cfg.Nodes); err != nil {
			return config.Config{}, fmt.Errorf("decode nodes: %w", err)
		}
	}

	switch skews := opt.v.Get("skews").(type) {
	case string:
		parsed, err := config.ParseSkews(skews)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Skews = parsed
	default:
		if err := opt.v.UnmarshalKey("skews", &cfg.Skews); err != nil {
			return config.Config{}, fmt.Errorf("decode skews: %w", err)
		}
	}

	cfg.Iterations = opt.v.GetInt("iterations")
	cfg.Seed = opt.v.GetInt64("seed")
	cfg.MinDelay = opt.v.GetDuration("min-delay")
	cfg.MaxDelay = opt.v.GetDuration("max-delay")
	cfg.Transport = opt.v.GetString("transport")
	cfg.InboxSize = opt.v.GetInt("inbox-size")
	cfg.LogLevel = opt.v.GetString("log-level")
	cfg.NoColor = opt.v.GetBool("no-color")
	cfg.MetricsAddr = opt.v.GetString("metrics-addr")
	cfg.TraceOut = opt.v.GetString("trace-out")

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func formatPeers(peers []config.Peer) string {
	parts := make([]string, 0, len(peers))
	for _, p := range peers {
		if p.Addr == "" {
			parts = append(parts, p.ID)
			continue
		}
		parts = append(parts, p.ID+"="+p.Addr)
	}
	return strings.Join(parts, ",")
}

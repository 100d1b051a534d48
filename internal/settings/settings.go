// Package settings reads process configuration from command line flags with
// FLOWGRAPH_* environment fallbacks.
package settings

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"Flowgraph-Apps/internal/core/flow"
	"Flowgraph-Apps/internal/core/network"
	"Flowgraph-Apps/internal/eventbus"
	"Flowgraph-Apps/internal/flowconfig"
	"Flowgraph-Apps/internal/logging"
)

var ErrInvalid = errors.New("invalid settings")

type Config struct {
	Addr       string
	StaticDir  string
	LogLevel   string
	LogFormat  string
	Trace      bool
	TraceRatio float64

	ConfigFile      string
	Example         string
	MailboxCapacity int
	CloseGrace      time.Duration
	EventCapacity   int
	AgentEvents     bool

	P2P P2P

	ShowVersion bool
}

// P2P configures the optional libp2p event relay.
type P2P struct {
	Enabled     bool
	Listen      []string
	Bootstrap   []string
	Rendezvous  string
	MDNS        bool
	IdentityKey string
	Topic       string
}

// Load parses args (without the program name). Flags win over environment
// variables, which win over defaults.
func Load(args []string, getenv func(string) string) (Config, error) {
	env := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	var (
		cfg                Config
		listen, bootstrap  string
		mailbox, events    string
		grace, traceRatio  string
		trace, agentEvents string
		p2pEnabled, mdns   string
	)
	fs := flag.NewFlagSet("flowgraph-web", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.Addr, "addr", env("FLOWGRAPH_ADDR", ":8090"), "http listen address")
	fs.StringVar(&cfg.StaticDir, "static", env("FLOWGRAPH_STATIC_DIR", ""), "directory served at / instead of the built-in UI")
	fs.StringVar(&cfg.LogLevel, "log-level", env("FLOWGRAPH_LOG_LEVEL", "info"), "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", env("FLOWGRAPH_LOG_FORMAT", "text"), "text or json")
	fs.StringVar(&trace, "trace", env("FLOWGRAPH_TRACE", "false"), "export spans to stdout")
	fs.StringVar(&traceRatio, "trace-ratio", env("FLOWGRAPH_TRACE_RATIO", "1"), "fraction of root traces sampled")
	fs.StringVar(&cfg.ConfigFile, "config", env("FLOWGRAPH_CONFIG", ""), "config file loaded at startup")
	fs.StringVar(&cfg.Example, "example", env("FLOWGRAPH_EXAMPLE", ""), "built-in config installed at startup (math)")
	fs.StringVar(&mailbox, "mailbox", env("FLOWGRAPH_MAILBOX", strconv.Itoa(flowconfig.DefaultMailboxCapacity)), "per-agent mailbox capacity")
	fs.StringVar(&grace, "close-grace", env("FLOWGRAPH_CLOSE_GRACE", flow.DefaultCloseGrace.String()), "time to wait for an agent worker on close")
	fs.StringVar(&events, "events", env("FLOWGRAPH_EVENTS", strconv.Itoa(eventbus.DefaultCapacity)), "event ring capacity")
	fs.StringVar(&agentEvents, "agent-events", env("FLOWGRAPH_AGENT_EVENTS", "false"), "record AGENT_PUBLISH events")
	fs.StringVar(&p2pEnabled, "p2p", env("FLOWGRAPH_P2P", "false"), "relay events over libp2p")
	fs.StringVar(&listen, "p2p-listen", env("FLOWGRAPH_P2P_LISTEN", "/ip4/0.0.0.0/tcp/0"), "comma separated libp2p listen addresses")
	fs.StringVar(&bootstrap, "p2p-bootstrap", env("FLOWGRAPH_P2P_BOOTSTRAP", ""), "comma separated bootstrap peer addresses")
	fs.StringVar(&cfg.P2P.Rendezvous, "p2p-rendezvous", env("FLOWGRAPH_P2P_RENDEZVOUS", network.DefaultRendezvous), "mDNS rendezvous tag")
	fs.StringVar(&mdns, "p2p-mdns", env("FLOWGRAPH_P2P_MDNS", "true"), "discover peers with mDNS")
	fs.StringVar(&cfg.P2P.IdentityKey, "p2p-key", env("FLOWGRAPH_P2P_KEY", ""), "identity key file (ephemeral when empty)")
	fs.StringVar(&cfg.P2P.Topic, "p2p-topic", env("FLOWGRAPH_P2P_TOPIC", eventbus.DefaultRelayTopic), "relay topic")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var err error
	parseBool := func(name, v string) bool {
		b, perr := strconv.ParseBool(v)
		if perr != nil && err == nil {
			err = fmt.Errorf("%w: %s: %q is not a boolean", ErrInvalid, name, v)
		}
		return b
	}
	parseInt := func(name, v string) int {
		n, perr := strconv.Atoi(v)
		if (perr != nil || n < 1) && err == nil {
			err = fmt.Errorf("%w: %s: %q is not a positive integer", ErrInvalid, name, v)
		}
		return n
	}
	cfg.Trace = parseBool("trace", trace)
	cfg.AgentEvents = parseBool("agent-events", agentEvents)
	cfg.P2P.Enabled = parseBool("p2p", p2pEnabled)
	cfg.P2P.MDNS = parseBool("p2p-mdns", mdns)
	cfg.MailboxCapacity = parseInt("mailbox", mailbox)
	cfg.EventCapacity = parseInt("events", events)
	if err != nil {
		return Config{}, err
	}

	cfg.TraceRatio, err = strconv.ParseFloat(traceRatio, 64)
	if err != nil || cfg.TraceRatio < 0 || cfg.TraceRatio > 1 {
		return Config{}, fmt.Errorf("%w: trace-ratio: %q is not in [0, 1]", ErrInvalid, traceRatio)
	}
	cfg.CloseGrace, err = time.ParseDuration(grace)
	if err != nil || cfg.CloseGrace <= 0 {
		return Config{}, fmt.Errorf("%w: close-grace: %q is not a positive duration", ErrInvalid, grace)
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("%w: log-format: %q", ErrInvalid, cfg.LogFormat)
	}
	switch cfg.Example {
	case "", "math":
	default:
		return Config{}, fmt.Errorf("%w: example: unknown %q", ErrInvalid, cfg.Example)
	}
	if cfg.ConfigFile != "" && cfg.Example != "" {
		return Config{}, fmt.Errorf("%w: config and example are exclusive", ErrInvalid)
	}

	cfg.P2P.Listen = splitList(listen)
	cfg.P2P.Bootstrap = splitList(bootstrap)
	if cfg.P2P.Enabled {
		if _, err := network.ParseMultiaddrs(cfg.P2P.Listen); err != nil {
			return Config{}, fmt.Errorf("%w: p2p-listen: %v", ErrInvalid, err)
		}
		if _, err := network.ParseMultiaddrs(cfg.P2P.Bootstrap); err != nil {
			return Config{}, fmt.Errorf("%w: p2p-bootstrap: %v", ErrInvalid, err)
		}
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Package config parses and validates gossipnode's command-line
// configuration, following the flag-set-per-invocation pattern the rest of
// the corpus uses for its subcommands.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/peergossip/gossipnode/pkg/gossip"
)

// DefaultLogLevel is applied when --log-level is not given.
const DefaultLogLevel = "info"

// DefaultControlSocket returns the default --control-socket path for a node
// listening on port, so two nodes on the same host never collide on the
// same socket path by default.
func DefaultControlSocket(port uint16) string {
	return fmt.Sprintf("/tmp/gossipnode-%d.sock", port)
}

// Config holds the fully validated configuration for one gossipnode
// process. It is immutable once returned by Parse.
type Config struct {
	Port         uint16
	UseIPv6      bool
	ConnectAddr  *gossip.PeerAddress
	GossipPeriod time.Duration

	Awareness    bool
	SelfDestruct time.Duration
	LogLevel     string
	EnableOTel   bool

	DHTSwarm      string
	RedisAddr     string
	ControlSocket string
}

// Parse parses args (typically os.Args[1:]) into a validated Config. --port
// and --period are required, per the wire protocol's need for a known
// listening endpoint and a bounded self-origination cadence; every other
// flag has a workable default.
//
// flag.FlagSet silently keeps only the last occurrence of a repeated flag,
// which would let a typo'd second --port silently override the first with
// no diagnostic. detectDuplicateFlags catches that before flag.Parse runs.
func Parse(args []string) (*Config, error) {
	if err := detectDuplicateFlags(args); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("gossipnode", flag.ContinueOnError)
	port := fs.Uint("port", 0, "TCP port to listen on (required)")
	period := fs.String("period", "", "self-origination gossip interval in seconds, e.g. 5 (required)")
	connect := fs.String("connect", "", "address of an initial peer to connect to, host:port")
	useIPv6 := fs.Bool("use-ipv6", false, "bind and advertise an IPv6 loopback address instead of IPv4")
	awareness := fs.Bool("awareness", false, "record every gossip id seen or sent, for introspection")
	selfDestruct := fs.Duration("self-destruct", 0, "exit automatically after this long (0 disables, for test harnesses)")
	logLevel := fs.String("log-level", DefaultLogLevel, "log level: debug, info, warn, or error")
	enableOTel := fs.Bool("otel", false, "export logs, metrics, and traces via OTLP/HTTP")
	dhtSwarm := fs.String("dht-swarm", "", "BitTorrent mainline DHT swarm name to announce on and query for bootstrap peers")
	redisAddr := fs.String("redis-addr", "", "address of a Redis instance to use as a rendezvous directory")
	controlSocket := fs.String("control-socket", "", "Unix socket path for the JSON-RPC control server (default /tmp/gossipnode-<port>.sock)")

	if err := fs.Parse(args); err != nil {
		return nil, &gossip.ConfigError{Reason: err.Error()}
	}

	if *port == 0 {
		return nil, &gossip.ConfigError{Reason: "--port is required"}
	}
	if *port > 65535 {
		return nil, &gossip.ConfigError{Reason: fmt.Sprintf("--port %d is out of range", *port)}
	}
	if *period == "" {
		return nil, &gossip.ConfigError{Reason: "--period is required"}
	}
	periodSecs, err := strconv.ParseUint(*period, 10, 64)
	if err != nil {
		return nil, &gossip.ConfigError{Reason: fmt.Sprintf("invalid --period %q: must be a non-negative integer number of seconds", *period)}
	}
	if periodSecs == 0 {
		return nil, &gossip.ConfigError{Reason: "--period is required and must be positive"}
	}

	cfg := &Config{
		Port:          uint16(*port),
		UseIPv6:       *useIPv6,
		GossipPeriod:  time.Duration(periodSecs) * time.Second,
		Awareness:     *awareness,
		SelfDestruct:  *selfDestruct,
		LogLevel:      strings.ToLower(*logLevel),
		EnableOTel:    *enableOTel,
		DHTSwarm:      *dhtSwarm,
		RedisAddr:     *redisAddr,
		ControlSocket: *controlSocket,
	}
	if cfg.ControlSocket == "" {
		cfg.ControlSocket = DefaultControlSocket(cfg.Port)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, &gossip.ConfigError{Reason: fmt.Sprintf("invalid --log-level %q", *logLevel)}
	}

	if *connect != "" {
		addr, err := gossip.ParsePeerAddress(*connect)
		if err != nil {
			return nil, &gossip.ConfigError{Reason: fmt.Sprintf("invalid --connect address: %v", err)}
		}
		cfg.ConnectAddr = &addr
		// --use-ipv6 is implicit when --connect resolves to an IPv6 address.
		cfg.UseIPv6 = cfg.UseIPv6 || addr.IP.To4() == nil
	}

	return cfg, nil
}

// detectDuplicateFlags reports a *gossip.ConfigError if any flag name
// (-foo, --foo or --foo=bar; the dash count is ignored) appears more than
// once in args.
func detectDuplicateFlags(args []string) error {
	seen := make(map[string]bool)
	for _, arg := range args {
		if !strings.HasPrefix(arg, "--") && !strings.HasPrefix(arg, "-") {
			continue
		}
		name := strings.TrimLeft(arg, "-")
		if idx := strings.IndexByte(name, '='); idx >= 0 {
			name = name[:idx]
		}
		if name == "" {
			continue
		}
		if seen[name] {
			return &gossip.ConfigError{Reason: fmt.Sprintf("flag --%s specified more than once", name)}
		}
		seen[name] = true
	}
	return nil
}

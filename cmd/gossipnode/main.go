// Command gossipnode runs a single peer of a flooding gossip overlay: it
// listens for inbound connections, optionally dials an initial peer, and
// then floods self-originated and relayed gossip to every confirmed peer
// while growing its mesh through peer exchange.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/peergossip/gossipnode/pkg/bootstrap"
	"github.com/peergossip/gossipnode/pkg/config"
	"github.com/peergossip/gossipnode/pkg/gossip"
	"github.com/peergossip/gossipnode/pkg/logging"
	gossipotel "github.com/peergossip/gossipnode/pkg/otel"
	"github.com/peergossip/gossipnode/pkg/rpc"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "gossipnode: %v\n", err)
		os.Exit(1)
	}

	logging.Configure(cfg.LogLevel)

	ctx := context.Background()
	shutdownOTel := func(context.Context) {}
	if cfg.EnableOTel {
		shutdownOTel, err = gossipotel.Init(ctx, "gossipnode", version)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gossipnode: failed to initialize telemetry: %v\n", err)
		}
	}
	defer shutdownOTel(ctx)

	node, sources, err := buildNode(cfg)
	if err != nil {
		if _, ok := err.(*gossip.BindError); ok {
			fmt.Fprintf(os.Stderr, "gossipnode: %v\n", err)
			return
		}
		fmt.Fprintf(os.Stderr, "gossipnode: %v\n", err)
		os.Exit(1)
	}
	defer node.Close()
	defer stopSources(sources)

	var controlServer *rpc.Server
	if cfg.ControlSocket != "" {
		controlServer, err = startControlServer(cfg, node)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gossipnode: warning: failed to start control socket: %v\n", err)
		} else {
			defer controlServer.Stop()
		}
	}

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		close(stop)
	}()

	if err := node.Run(stop); err != nil {
		fmt.Fprintf(os.Stderr, "gossipnode: %v\n", err)
		os.Exit(1)
	}
}

// discoverySource is satisfied by both bootstrap.DHTBootstrap and
// bootstrap.RedisDirectory.
type discoverySource interface {
	Peers() <-chan gossip.PeerAddress
	Start()
	Close()
}

func buildNode(cfg *config.Config) (*gossip.Node, []discoverySource, error) {
	// NewNode always binds loopback on the configured port, so the own
	// address is known before the listener exists; discovery sources can
	// be started first and their merged channel handed straight into
	// Options.BootstrapChan.
	loopbackIP := "127.0.0.1"
	if cfg.UseIPv6 {
		loopbackIP = "::1"
	}
	ownAddr := gossip.PeerAddress{IP: net.ParseIP(loopbackIP), Port: cfg.Port}

	var sources []discoverySource
	var channels []<-chan gossip.PeerAddress

	if cfg.DHTSwarm != "" {
		d, err := bootstrap.NewDHTBootstrap(cfg.DHTSwarm, ownAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gossipnode: warning: DHT bootstrap disabled: %v\n", err)
		} else {
			d.Start()
			sources = append(sources, d)
			channels = append(channels, d.Peers())
		}
	}

	if cfg.RedisAddr != "" {
		d, err := bootstrap.NewRedisDirectory(cfg.RedisAddr, swarmNameOrDefault(cfg), ownAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gossipnode: warning: redis rendezvous disabled: %v\n", err)
		} else {
			d.Start()
			sources = append(sources, d)
			channels = append(channels, d.Peers())
		}
	}

	var bootstrapChan <-chan gossip.PeerAddress
	if len(channels) > 0 {
		bootstrapChan = bootstrap.Merge(channels...)
	}

	node, err := gossip.NewNode(gossip.Options{
		Port:          cfg.Port,
		UseIPv6:       cfg.UseIPv6,
		ConnectAddr:   cfg.ConnectAddr,
		GossipPeriod:  cfg.GossipPeriod,
		SelfDestruct:  cfg.SelfDestruct,
		Awareness:     cfg.Awareness,
		BootstrapChan: bootstrapChan,
	})
	if err != nil {
		stopSources(sources)
		return nil, nil, err
	}

	return node, sources, nil
}

func swarmNameOrDefault(cfg *config.Config) string {
	if cfg.DHTSwarm != "" {
		return cfg.DHTSwarm
	}
	return "default"
}

func stopSources(sources []discoverySource) {
	for _, s := range sources {
		s.Close()
	}
}

func startControlServer(cfg *config.Config, node *gossip.Node) (*rpc.Server, error) {
	server, err := rpc.NewServer(rpc.ServerConfig{
		SocketPath: cfg.ControlSocket,
		Version:    version,
		GetSnapshot: func() []rpc.PeerSnapshotData {
			snap := node.Snapshot()
			out := make([]rpc.PeerSnapshotData, len(snap))
			for i, p := range snap {
				out[i] = rpc.PeerSnapshotData{Addr: p.Addr.String(), Confirmed: p.Confirmed, Age: p.Age}
			}
			return out
		},
		GetOwnAddr:   func() string { return node.OwnAddr().String() },
		GetStartedAt: node.StartedAt,
		GetAwareness: func() ([]string, bool) {
			log := node.Awareness()
			if log == nil {
				return nil, false
			}
			ids := log.Snapshot()
			out := make([]string, len(ids))
			for i, id := range ids {
				out[i] = id.String()
			}
			return out, true
		},
	})
	if err != nil {
		return nil, err
	}
	if err := server.Start(); err != nil {
		return nil, err
	}
	fmt.Printf("Control socket: %s\n", cfg.ControlSocket)
	return server, nil
}

// Package bootstrap discovers candidate peer addresses for a gossip node
// through channels outside the gossip protocol itself: the BitTorrent
// mainline DHT and an optional Redis rendezvous directory. Both feed the
// same chan gossip.PeerAddress the control loop drains once per iteration;
// neither is required for the overlay to function.
package bootstrap

import (
	"context"
	"crypto/sha1"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/anacrolix/dht/v2"
	"github.com/anacrolix/dht/v2/krpc"

	"github.com/peergossip/gossipnode/pkg/gossip"
)

// DHTAnnounceInterval is how often a DHTBootstrap re-announces its presence
// under the swarm's info-hash.
const DHTAnnounceInterval = 15 * time.Minute

// DHTQueryInterval is how often a DHTBootstrap re-queries the swarm for
// peers.
const DHTQueryInterval = 30 * time.Second

// dhtQueryTimeout bounds a single announce or get_peers round.
const dhtQueryTimeout = 30 * time.Second

// DHTBootstrapNodes lists well-known mainline DHT bootstrap nodes used to
// join the global routing table before the first announce or query.
var DHTBootstrapNodes = []string{
	"router.bittorrent.com:6881",
	"router.utorrent.com:6881",
	"dht.transmissionbt.com:6881",
	"dht.libtorrent.org:25401",
}

// swarmInfohash derives a stable 20-byte BitTorrent info-hash from a
// human-chosen swarm name, so operators can coordinate rendezvous without
// sharing anything beyond that name.
func swarmInfohash(swarmName string) [20]byte {
	sum := sha1.Sum([]byte("gossipnode:" + swarmName))
	return sum
}

// DHTBootstrap announces a node's listening port under a swarm's info-hash
// and periodically queries the same info-hash for other announcers,
// delivering every address it discovers on Peers.
type DHTBootstrap struct {
	server    *dht.Server
	infohash  [20]byte
	port      int
	ownAddr   gossip.PeerAddress
	peers     chan gossip.PeerAddress
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewDHTBootstrap binds a UDP socket for the DHT server and resolves the
// well-known bootstrap nodes. swarmName identifies the gossip overlay to
// rendezvous on; ownAddr is the node's own listening address, whose port is
// announced to the swarm so other members can dial it and which is never
// delivered on Peers.
func NewDHTBootstrap(swarmName string, ownAddr gossip.PeerAddress) (*DHTBootstrap, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: failed to bind DHT UDP socket: %w", err)
	}

	cfg := dht.NewDefaultServerConfig()
	cfg.Conn = conn

	var bootstrapAddrs []dht.Addr
	for _, node := range DHTBootstrapNodes {
		addr, err := net.ResolveUDPAddr("udp", node)
		if err != nil {
			log.Printf("[Bootstrap] failed to resolve DHT bootstrap node %s: %v", node, err)
			continue
		}
		bootstrapAddrs = append(bootstrapAddrs, dht.NewAddr(addr))
	}
	if len(bootstrapAddrs) == 0 {
		conn.Close()
		return nil, fmt.Errorf("bootstrap: no DHT bootstrap nodes resolved")
	}
	cfg.StartingNodes = func() ([]dht.Addr, error) { return bootstrapAddrs, nil }

	server, err := dht.NewServer(cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bootstrap: failed to create DHT server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &DHTBootstrap{
		server:   server,
		infohash: swarmInfohash(swarmName),
		port:     int(ownAddr.Port),
		ownAddr:  ownAddr,
		peers:    make(chan gossip.PeerAddress, 32),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Peers is the channel of discovered candidate addresses. The channel is
// closed once Close has fully stopped both background loops.
func (d *DHTBootstrap) Peers() <-chan gossip.PeerAddress { return d.peers }

// Start begins the announce and query loops in the background.
func (d *DHTBootstrap) Start() {
	go d.announceLoop()
	go d.queryLoop()
}

// Close stops both loops, closes the underlying DHT server, and closes the
// Peers channel once nothing more will be sent on it.
func (d *DHTBootstrap) Close() {
	d.cancel()
	d.server.Close()
	close(d.peers)
}

func (d *DHTBootstrap) announceLoop() {
	d.announce()
	ticker := time.NewTicker(DHTAnnounceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.announce()
		}
	}
}

func (d *DHTBootstrap) announce() {
	ctx, cancel := context.WithTimeout(d.ctx, dhtQueryTimeout)
	defer cancel()

	a, err := d.server.Announce(d.infohash, d.port, false)
	if err != nil {
		log.Printf("[Bootstrap] DHT announce failed: %v", err)
		return
	}
	defer a.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-a.Peers:
			if !ok {
				return
			}
		}
	}
}

func (d *DHTBootstrap) queryLoop() {
	d.query()
	ticker := time.NewTicker(DHTQueryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.query()
		}
	}
}

func (d *DHTBootstrap) query() {
	ctx, cancel := context.WithTimeout(d.ctx, dhtQueryTimeout)
	defer cancel()

	a, err := d.server.Announce(d.infohash, 0, false)
	if err != nil {
		log.Printf("[Bootstrap] DHT query failed: %v", err)
		return
	}
	defer a.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case peerAddrs, ok := <-a.Peers:
			if !ok {
				return
			}
			for _, addr := range peerAddrs.Peers {
				d.deliver(addr)
			}
		}
	}
}

func (d *DHTBootstrap) deliver(addr krpc.NodeAddr) {
	peerAddr, err := gossip.ParsePeerAddress(addr.String())
	if err != nil {
		return
	}
	if peerAddr.Equal(d.ownAddr) {
		return
	}
	select {
	case d.peers <- peerAddr:
	case <-d.ctx.Done():
	default:
		// Drop silently when the control loop hasn't drained recently
		// enough to keep up; there is always another query round.
	}
}

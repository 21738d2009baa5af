package gossip

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/peergossip/gossipnode/pkg/ratelimit"
)

// IdlePollInterval is both the accept-probe deadline and the idle sleep
// the spec prescribes between iterations when no inbound connection is
// ready (§5). Using the listener's read deadline for the probe folds the
// two into a single blocking call.
const IdlePollInterval = 10 * time.Millisecond

// PeerSnapshot is a read-only view of one session, used by the optional
// control server and by tests; it never aliases mutable Node state.
type PeerSnapshot struct {
	Addr      PeerAddress
	Confirmed bool
	Age       time.Duration
}

// Options configures a Node. Port, GossipPeriod are required; everything
// else has a sensible zero value.
type Options struct {
	Port          uint16
	UseIPv6       bool
	ConnectAddr   *PeerAddress
	GossipPeriod  time.Duration
	SelfDestruct  time.Duration // 0 disables the test-mode deadline
	Awareness     bool
	RateLimiter   *ratelimit.IPRateLimiter // nil uses ratelimit.NewDefault()
	Clock         Clock                    // nil uses SystemClock
	Rand          RandomSource             // nil uses DefaultRandomSource
	BootstrapChan <-chan PeerAddress       // optional external dial-candidate feed
}

// Node owns a listener, a dialer, a set of PeerSessions, a SeenGossipTable,
// and the periodic self-origination timer. It is the sole mutator of all of
// that state; the only externally-touched field is the snapshot published
// once per iteration for the optional control server.
type Node struct {
	listener *net.TCPListener
	ownAddr  PeerAddress

	gossipPeriod   time.Duration
	lastSelfGossip time.Time
	selfDestruct   time.Duration
	startedAt      time.Time

	seen      *SeenGossipTable
	awareness *AwarenessLog

	sessions []*PeerSession

	rateLimiter *ratelimit.IPRateLimiter
	clock       Clock
	rand        RandomSource
	bootstrap   <-chan PeerAddress

	mu       sync.Mutex
	snapshot []PeerSnapshot
}

// NewNode binds the listener and, if an initial connect address is given,
// dials it. A bind failure is returned as *BindError (the caller prints a
// warning and exits cleanly, per §7); a bootstrap dial failure is returned
// as *HandshakeError (the caller exits the process).
func NewNode(opts Options) (*Node, error) {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = DefaultRandomSource
	}
	limiter := opts.RateLimiter
	if limiter == nil {
		limiter = ratelimit.NewDefault()
	}

	loopbackIP := "127.0.0.1"
	if opts.UseIPv6 {
		loopbackIP = "::1"
	}
	bindAddr := &net.TCPAddr{IP: net.ParseIP(loopbackIP), Port: int(opts.Port)}

	tcpListener, err := net.ListenTCP("tcp", bindAddr)
	if err != nil {
		return nil, &BindError{Addr: bindAddr.String(), Err: err}
	}

	ownAddr, err := fromNetAddr(tcpListener.Addr())
	if err != nil {
		tcpListener.Close()
		return nil, &BindError{Addr: bindAddr.String(), Err: err}
	}

	now := clock.Now()
	n := &Node{
		listener:       tcpListener,
		ownAddr:        ownAddr,
		gossipPeriod:   opts.GossipPeriod,
		lastSelfGossip: now,
		selfDestruct:   opts.SelfDestruct,
		startedAt:      now,
		seen:           NewSeenGossipTable(),
		rateLimiter:    limiter,
		clock:          clock,
		rand:           rnd,
		bootstrap:      opts.BootstrapChan,
	}
	if opts.Awareness {
		n.awareness = NewAwarenessLog()
	}

	fmt.Printf("I'm doing peer(%s)!\n", ownAddr)

	if opts.ConnectAddr != nil {
		session, err := dialPeer(*opts.ConnectAddr, ownAddr, now)
		if err != nil {
			tcpListener.Close()
			return nil, err
		}
		fmt.Printf("%s: I have connected to my initial peer, %s\n", ownAddr, session.advertisedAddr)
		n.sessions = append(n.sessions, session)
	}

	return n, nil
}

// OwnAddr returns the node's bound listening address.
func (n *Node) OwnAddr() PeerAddress { return n.ownAddr }

// Awareness returns the node's AwarenessLog, or nil if disabled.
func (n *Node) Awareness() *AwarenessLog { return n.awareness }

// StartedAt returns the instant the node was created, used to compute uptime
// for the optional control server.
func (n *Node) StartedAt() time.Time { return n.startedAt }

// Snapshot returns the peer list as of the most recently completed
// iteration. Safe for concurrent use by a control server goroutine.
func (n *Node) Snapshot() []PeerSnapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]PeerSnapshot, len(n.snapshot))
	copy(out, n.snapshot)
	return out
}

// Close releases the listener and every session. Intended for test
// teardown; Run exits on its own via the self-destruct deadline.
func (n *Node) Close() {
	n.listener.Close()
	for _, s := range n.sessions {
		s.close()
	}
}

// Run executes the control loop until the self-destruct deadline elapses
// (if configured) or stop is closed. Each pass through the loop is one
// "iteration" in the sense used throughout the spec.
func (n *Node) Run(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		if n.selfDestruct > 0 && n.clock.Now().Sub(n.startedAt) > n.selfDestruct {
			return nil
		}

		n.acceptOne()
		n.seen.Decay(n.clock.Now())

		pendingGossip, newAddrs := n.pumpSessions()
		n.drainBootstrap(&newAddrs)
		n.dialNew(newAddrs)

		if n.clock.Now().Sub(n.lastSelfGossip) >= n.gossipPeriod {
			n.originateGossip(&pendingGossip)
		}

		n.broadcast(pendingGossip)
		n.pollPeerLists()
		n.publishSnapshot()
	}
}

// acceptOne services at most one pending inbound connection. The accept
// deadline doubles as the idle sleep the spec calls for between iterations
// when nothing is ready (§5).
func (n *Node) acceptOne() {
	n.listener.SetDeadline(time.Now().Add(IdlePollInterval))
	conn, err := n.listener.Accept()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return
		}
		fmt.Fprintf(os.Stderr, "accept error: %v\n", err)
		return
	}

	host, _, splitErr := net.SplitHostPort(conn.RemoteAddr().String())
	if splitErr == nil && !n.rateLimiter.Allow(host) {
		conn.Close()
		fmt.Printf("%s: Rejected incoming connection from %s (rate limited)\n", n.ownAddr, conn.RemoteAddr())
		return
	}

	session, err := acceptPeer(conn, n.clock.Now())
	if err != nil {
		conn.Close()
		fmt.Printf("%s: Rejected incoming connection from %s\n", n.ownAddr, conn.RemoteAddr())
		return
	}
	fmt.Printf("%s: New peer(%s) has connected to me\n", n.ownAddr, session.advertisedAddr)
	n.sessions = append(n.sessions, session)
}

// pumpSessions drains at most one inbox message per session, enforces the
// confirmation gate and the unconfirmed-timeout, and returns the gossip ids
// to broadcast this iteration plus any newly-learned dial candidates.
// Known peer addresses used to answer opcode-2 requests are snapshotted
// before any session is dropped this iteration, matching §4.3.
func (n *Node) pumpSessions() (pending []GossipID, newAddrs []PeerAddress) {
	knownAddrs := make([]PeerAddress, len(n.sessions))
	for i, s := range n.sessions {
		knownAddrs[i] = s.advertisedAddr
	}

	now := n.clock.Now()
	kept := n.sessions[:0]
	for _, s := range n.sessions {
		if !s.confirmed && now.Sub(s.createdAt) > PeerConfirmationTimeout {
			s.close()
			continue
		}

		select {
		case msg := <-s.inbox:
			if msg.err != nil {
				s.close()
				continue
			}
			if !s.confirmed && msg.opcode != OpConfirmation {
				fmt.Fprintf(os.Stderr, "confirmation violation from %s\n", s.advertisedAddr)
				s.close()
				continue
			}
			if !n.handleMessage(s, msg, knownAddrs, &pending, &newAddrs) {
				s.close()
				continue
			}
		default:
		}

		kept = append(kept, s)
	}
	n.sessions = kept
	return pending, newAddrs
}

// handleMessage applies one decoded message to session s. It returns false
// if the session should be dropped (protocol violation or write failure).
func (n *Node) handleMessage(s *PeerSession, msg inboundMessage, knownAddrs []PeerAddress, pending *[]GossipID, newAddrs *[]PeerAddress) bool {
	switch msg.opcode {
	case OpGossip:
		if n.seen.Contains(msg.gossip) {
			return true
		}
		n.seen.Insert(msg.gossip, n.clock.Now())
		*pending = append(*pending, msg.gossip)
		if n.awareness != nil {
			n.awareness.Append(msg.gossip)
		}
		fmt.Printf("%s: Received fresh gossip, 0x%s, from %s\n", n.ownAddr, msg.gossip, s.advertisedAddr)
		return true

	case OpPeerListRequest:
		s.conn.SetWriteDeadline(time.Now().Add(ReadWriteTimeout))
		if err := writePeerListResponse(s.conn, knownAddrs); err != nil {
			return false
		}
		return true

	case OpPeerListResponse:
		for _, addr := range msg.addrs {
			if addr.Equal(n.ownAddr) {
				continue
			}
			if addressKnown(knownAddrs, addr) || addressKnown(*newAddrs, addr) {
				continue
			}
			*newAddrs = append(*newAddrs, addr)
		}
		return true

	case OpConfirmation:
		s.confirmed = true
		return true

	default:
		return false
	}
}

// drainBootstrap folds any addresses the optional bootstrap-discovery
// helpers have produced into this iteration's dial candidates, deduped the
// same way peer-exchange candidates are.
func (n *Node) drainBootstrap(newAddrs *[]PeerAddress) {
	if n.bootstrap == nil {
		return
	}
	for {
		select {
		case addr, ok := <-n.bootstrap:
			if !ok {
				n.bootstrap = nil
				return
			}
			if addr.Equal(n.ownAddr) {
				continue
			}
			if addressKnown(n.currentAddrs(), addr) || addressKnown(*newAddrs, addr) {
				continue
			}
			*newAddrs = append(*newAddrs, addr)
		default:
			return
		}
	}
}

// dialNew dials every address collected this iteration. A failure is
// silently ignored — there is no retry queue (§4.5).
func (n *Node) dialNew(addrs []PeerAddress) {
	for _, addr := range addrs {
		session, err := dialPeer(addr, n.ownAddr, n.clock.Now())
		if err != nil {
			continue
		}
		n.sessions = append(n.sessions, session)
	}
}

// originateGossip samples a fresh GossipId, marks it as already heard (so
// incoming copies of it are not rebroadcast), and enqueues it for
// broadcast this iteration.
func (n *Node) originateGossip(pending *[]GossipID) {
	id := n.rand.GossipID()
	n.seen.Insert(id, n.clock.Now())
	*pending = append(*pending, id)
	n.lastSelfGossip = n.clock.Now()
	if n.awareness != nil {
		n.awareness.Append(id)
	}
	fmt.Printf("%s: Sending random fresh gossip to all peers, 0x%s\n", n.ownAddr, id)
}

// broadcast sends every pending gossip id to every confirmed peer. A send
// failure drops that peer immediately; subsequent ids for the same
// iteration are not attempted on it (§4.4).
func (n *Node) broadcast(pending []GossipID) {
	if len(pending) == 0 {
		return
	}
	kept := n.sessions[:0]
	for _, s := range n.sessions {
		if !s.confirmed {
			kept = append(kept, s)
			continue
		}
		ok := true
		for _, id := range pending {
			s.conn.SetWriteDeadline(time.Now().Add(ReadWriteTimeout))
			if err := writeGossipMessage(s.conn, id); err != nil {
				ok = false
				break
			}
		}
		if !ok {
			s.close()
			continue
		}
		kept = append(kept, s)
	}
	n.sessions = kept
}

// pollPeerLists sends an opcode-2 request to every session whose last
// request is older than AskForPeersInterval, regardless of confirmation
// state, matching the reference implementation.
func (n *Node) pollPeerLists() {
	now := n.clock.Now()
	kept := n.sessions[:0]
	for _, s := range n.sessions {
		if now.Sub(s.lastPeerReqAt) > AskForPeersInterval {
			s.conn.SetWriteDeadline(time.Now().Add(ReadWriteTimeout))
			if err := writePeerListRequest(s.conn); err != nil {
				s.close()
				continue
			}
			s.lastPeerReqAt = now
		}
		kept = append(kept, s)
	}
	n.sessions = kept
}

// publishSnapshot refreshes the Node's externally-readable peer snapshot.
func (n *Node) publishSnapshot() {
	now := n.clock.Now()
	snap := make([]PeerSnapshot, len(n.sessions))
	for i, s := range n.sessions {
		snap[i] = PeerSnapshot{Addr: s.advertisedAddr, Confirmed: s.confirmed, Age: now.Sub(s.createdAt)}
	}
	n.mu.Lock()
	n.snapshot = snap
	n.mu.Unlock()
}

// currentAddrs returns the advertised addresses of every currently
// connected session, used by drainBootstrap to dedup against live peers.
func (n *Node) currentAddrs() []PeerAddress {
	addrs := make([]PeerAddress, len(n.sessions))
	for i, s := range n.sessions {
		addrs[i] = s.advertisedAddr
	}
	return addrs
}

func addressKnown(addrs []PeerAddress, addr PeerAddress) bool {
	for _, a := range addrs {
		if a.Equal(addr) {
			return true
		}
	}
	return false
}

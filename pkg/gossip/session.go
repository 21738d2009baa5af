package gossip

import (
	"fmt"
	"io"
	"net"
	"time"
)

// ReadWriteTimeout bounds every blocking read/write on a session: the
// handshake exchange and every message body read once an opcode byte has
// arrived.
const ReadWriteTimeout = 5 * time.Second

// PeerConfirmationTimeout is how long a dialed session may remain
// unconfirmed before the control loop drops it.
const PeerConfirmationTimeout = 2 * time.Second

// AskForPeersInterval is how often each session, confirmed or not, is
// polled for its peer list.
const AskForPeersInterval = 1 * time.Second

// inboundMessage is a fully decoded message handed from a session's pump
// goroutine to the control loop, or a terminal error if the session should
// be dropped.
type inboundMessage struct {
	opcode byte
	gossip GossipID
	addrs  []PeerAddress
	err    error
}

// PeerSession is exclusively owned by its Node for its entire lifetime. All
// state mutation happens on the control loop goroutine; the pump goroutine
// only reads from the connection and forwards decoded messages.
type PeerSession struct {
	conn           net.Conn
	advertisedAddr PeerAddress
	confirmed      bool
	createdAt      time.Time
	lastPeerReqAt  time.Time

	inbox chan inboundMessage
	quit  chan struct{}
}

// newSession wraps a connection once the handshake's address exchange has
// completed. confirmed reflects the asymmetric trust rule of §4.1: true for
// the acceptor, false for the dialer until an opcode-4 message is consumed.
func newSession(conn net.Conn, advertised PeerAddress, confirmed bool, now time.Time) *PeerSession {
	s := &PeerSession{
		conn:           conn,
		advertisedAddr: advertised,
		confirmed:      confirmed,
		createdAt:      now,
		lastPeerReqAt:  now,
		inbox:          make(chan inboundMessage, 1),
		quit:           make(chan struct{}),
	}
	go s.pump()
	return s
}

// close stops the pump goroutine and releases the connection. Safe to call
// exactly once, from the control loop.
func (s *PeerSession) close() {
	close(s.quit)
	s.conn.Close()
}

// pump blocks waiting for the next opcode byte (no deadline — idle
// connections never time out), then applies the shared read timeout to
// consume and decode the rest of that one message. Each decoded message (or
// terminal error) is sent to inbox, which the control loop drains at most
// once per iteration; sending therefore naturally blocks the pump until the
// coordinator is ready for the next message, enforcing "at most one message
// read per peer per iteration".
func (s *PeerSession) pump() {
	for {
		s.conn.SetReadDeadline(time.Time{})
		var opcodeBuf [1]byte
		if _, err := io.ReadFull(s.conn, opcodeBuf[:]); err != nil {
			s.deliver(inboundMessage{err: err})
			return
		}

		s.conn.SetReadDeadline(time.Now().Add(ReadWriteTimeout))
		msg, err := decodeBody(s.conn, opcodeBuf[0])
		if err != nil {
			s.deliver(inboundMessage{err: err})
			return
		}
		if s.deliver(msg) {
			return
		}
	}
}

// deliver sends msg to inbox unless the session has been closed in the
// meantime, in which case it reports quitting (true) instead.
func (s *PeerSession) deliver(msg inboundMessage) (quit bool) {
	select {
	case s.inbox <- msg:
		return false
	case <-s.quit:
		return true
	}
}

// decodeBody reads and decodes the body following an already-consumed
// opcode byte. Opcode 0 or any value outside 1-4 is a protocol violation.
func decodeBody(r io.Reader, opcode byte) (inboundMessage, error) {
	switch opcode {
	case OpGossip:
		id, err := readGossipBody(r)
		if err != nil {
			return inboundMessage{}, err
		}
		return inboundMessage{opcode: opcode, gossip: id}, nil
	case OpPeerListRequest:
		return inboundMessage{opcode: opcode}, nil
	case OpPeerListResponse:
		addrs, err := readPeerListResponseBody(r)
		if err != nil {
			return inboundMessage{}, err
		}
		return inboundMessage{opcode: opcode, addrs: addrs}, nil
	case OpConfirmation:
		if err := readConfirmationBody(r); err != nil {
			return inboundMessage{}, err
		}
		return inboundMessage{opcode: opcode}, nil
	default:
		return inboundMessage{}, &ProtocolViolation{Reason: fmt.Sprintf("unknown opcode %d", opcode)}
	}
}

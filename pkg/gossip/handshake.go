package gossip

import (
	"io"
	"net"
	"time"
)

// DialTimeout bounds the TCP connect attempt itself, separate from the
// read/write timeout applied once connected.
const DialTimeout = 10 * time.Second

// dialPeer opens a TCP connection to addr and performs the dialer side of
// the handshake: send the magic, then send own advertised listening
// address. The returned session is created with confirmed = false; it
// becomes confirmed only once the control loop consumes an opcode-4 message
// through the ordinary pump (§4.1).
func dialPeer(addr PeerAddress, ownAddr PeerAddress, now time.Time) (*PeerSession, error) {
	conn, err := net.DialTimeout("tcp", addr.String(), DialTimeout)
	if err != nil {
		return nil, &HandshakeError{Addr: addr.String(), Reason: err.Error()}
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	conn.SetDeadline(time.Now().Add(ReadWriteTimeout))

	if _, err := io.WriteString(conn, Magic); err != nil {
		conn.Close()
		return nil, &HandshakeError{Addr: addr.String(), Reason: err.Error()}
	}
	if err := writeAddress(conn, ownAddr); err != nil {
		conn.Close()
		return nil, &HandshakeError{Addr: addr.String(), Reason: err.Error()}
	}

	conn.SetDeadline(time.Time{})
	return newSession(conn, addr, false, now), nil
}

// acceptPeer performs the acceptor side of the handshake on a freshly
// accepted connection: read the magic, reply with opcode 4 + magic, then
// read the remote's advertised listening address. The session is created
// with confirmed = true — the acceptor trusts the magic it already
// verified (§4.1).
func acceptPeer(conn net.Conn, now time.Time) (*PeerSession, error) {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	conn.SetDeadline(time.Now().Add(ReadWriteTimeout))

	magicBuf := make([]byte, len(Magic))
	if _, err := io.ReadFull(conn, magicBuf); err != nil {
		return nil, &HandshakeError{Addr: conn.RemoteAddr().String(), Reason: err.Error()}
	}
	if string(magicBuf) != Magic {
		return nil, &HandshakeError{Addr: conn.RemoteAddr().String(), Reason: "magic mismatch"}
	}

	if err := writeConfirmation(conn); err != nil {
		return nil, &HandshakeError{Addr: conn.RemoteAddr().String(), Reason: err.Error()}
	}

	advertised, err := readAddress(conn)
	if err != nil {
		return nil, &HandshakeError{Addr: conn.RemoteAddr().String(), Reason: err.Error()}
	}

	conn.SetDeadline(time.Time{})
	return newSession(conn, advertised, true, now), nil
}

package gossip

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// addrTagV4 and addrTagV6 are the wire tag bytes identifying the address
// family in a handshake address or a peer-exchange address record.
const (
	addrTagV4 byte = 0
	addrTagV6 byte = 1
)

// PeerAddress is the (IP, port) pair a peer advertises as its listening
// endpoint. It is never the ephemeral source port of an inbound connection.
type PeerAddress struct {
	IP   net.IP // 4-byte form for IPv4, 16-byte form for IPv6
	Port uint16
}

// Equal reports whether two addresses have the same IP and port. IPs are
// compared with net.IP.Equal, so the 4-byte and 16-byte forms of one IPv4
// address are equal.
func (a PeerAddress) Equal(other PeerAddress) bool {
	return a.Port == other.Port && a.IP.Equal(other.IP)
}

func (a PeerAddress) String() string {
	return net.JoinHostPort(a.IP.String(), fmt.Sprintf("%d", a.Port))
}

// isV6 reports whether the address should be encoded with the IPv6 tag.
func (a PeerAddress) isV6() bool {
	return a.IP.To4() == nil
}

// writeAddress encodes an address record: tag byte, then 4 octets (IPv4) or
// 8 big-endian u16 segments (IPv6), then the port as a big-endian u16.
func writeAddress(w io.Writer, addr PeerAddress) error {
	if addr.isV6() {
		ip16 := addr.IP.To16()
		if ip16 == nil {
			return fmt.Errorf("gossip: invalid IPv6 address %v", addr.IP)
		}
		if _, err := w.Write([]byte{addrTagV6}); err != nil {
			return err
		}
		for i := 0; i < 8; i++ {
			segment := binary.BigEndian.Uint16(ip16[i*2 : i*2+2])
			if err := binary.Write(w, binary.BigEndian, segment); err != nil {
				return err
			}
		}
	} else {
		ip4 := addr.IP.To4()
		if _, err := w.Write([]byte{addrTagV4}); err != nil {
			return err
		}
		if _, err := w.Write(ip4); err != nil {
			return err
		}
	}
	return binary.Write(w, binary.BigEndian, addr.Port)
}

// readAddress decodes an address record written by writeAddress. An unknown
// tag byte is a protocol violation.
func readAddress(r io.Reader) (PeerAddress, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return PeerAddress{}, err
	}

	switch tag[0] {
	case addrTagV4:
		var octets [4]byte
		if _, err := io.ReadFull(r, octets[:]); err != nil {
			return PeerAddress{}, err
		}
		var port uint16
		if err := binary.Read(r, binary.BigEndian, &port); err != nil {
			return PeerAddress{}, err
		}
		return PeerAddress{IP: net.IPv4(octets[0], octets[1], octets[2], octets[3]).To4(), Port: port}, nil
	case addrTagV6:
		ip := make(net.IP, 16)
		for i := 0; i < 8; i++ {
			var segment uint16
			if err := binary.Read(r, binary.BigEndian, &segment); err != nil {
				return PeerAddress{}, err
			}
			binary.BigEndian.PutUint16(ip[i*2:i*2+2], segment)
		}
		var port uint16
		if err := binary.Read(r, binary.BigEndian, &port); err != nil {
			return PeerAddress{}, err
		}
		return PeerAddress{IP: ip, Port: port}, nil
	default:
		return PeerAddress{}, &ProtocolViolation{Reason: fmt.Sprintf("unknown address tag %d", tag[0])}
	}
}

// ParsePeerAddress parses a "host:port" string (IPv4 or bracketed IPv6) into
// a PeerAddress, resolving a hostname if necessary.
func ParsePeerAddress(s string) (PeerAddress, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return PeerAddress{}, fmt.Errorf("gossip: invalid address %q: %w", s, err)
	}
	var port uint16
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return PeerAddress{}, fmt.Errorf("gossip: invalid port in %q: %w", s, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return PeerAddress{}, fmt.Errorf("gossip: cannot resolve host %q", host)
		}
		ip = ips[0]
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return PeerAddress{IP: ip, Port: port}, nil
}

// fromNetAddr converts a net.Addr (as returned by net.Conn.LocalAddr, for
// example) into a PeerAddress. NewNode uses it to derive the node's own
// advertised address from its bound listener.
func fromNetAddr(a net.Addr) (PeerAddress, error) {
	host, portStr, err := net.SplitHostPort(a.String())
	if err != nil {
		return PeerAddress{}, err
	}
	var port uint16
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return PeerAddress{}, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return PeerAddress{}, fmt.Errorf("gossip: cannot parse ip %q", host)
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return PeerAddress{IP: ip, Port: port}, nil
}

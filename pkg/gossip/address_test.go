package gossip

import (
	"bytes"
	"net"
	"testing"
)

func TestAddressRoundTripV4(t *testing.T) {
	t.Parallel()
	addr := PeerAddress{IP: net.ParseIP("192.168.1.7").To4(), Port: 4242}

	var buf bytes.Buffer
	if err := writeAddress(&buf, addr); err != nil {
		t.Fatalf("writeAddress: %v", err)
	}

	got, err := readAddress(&buf)
	if err != nil {
		t.Fatalf("readAddress: %v", err)
	}
	if !got.Equal(addr) {
		t.Errorf("got %v, want %v", got, addr)
	}
}

func TestAddressRoundTripV6(t *testing.T) {
	t.Parallel()
	addr := PeerAddress{IP: net.ParseIP("fe80::1"), Port: 51820}

	var buf bytes.Buffer
	if err := writeAddress(&buf, addr); err != nil {
		t.Fatalf("writeAddress: %v", err)
	}

	got, err := readAddress(&buf)
	if err != nil {
		t.Fatalf("readAddress: %v", err)
	}
	if !got.Equal(addr) {
		t.Errorf("got %v, want %v", got, addr)
	}
}

func TestReadAddressUnknownTag(t *testing.T) {
	t.Parallel()
	buf := bytes.NewBuffer([]byte{7, 0, 0, 0, 0, 0, 0})

	_, err := readAddress(buf)
	if err == nil {
		t.Fatal("expected an error for an unknown address tag")
	}
	if _, ok := err.(*ProtocolViolation); !ok {
		t.Errorf("expected *ProtocolViolation, got %T", err)
	}
}

func TestPeerAddressStringBracketsIPv6(t *testing.T) {
	t.Parallel()
	addr := PeerAddress{IP: net.ParseIP("::1"), Port: 9000}
	want := "[::1]:9000"
	if got := addr.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestParsePeerAddress(t *testing.T) {
	t.Parallel()
	addr, err := ParsePeerAddress("127.0.0.1:9001")
	if err != nil {
		t.Fatalf("ParsePeerAddress: %v", err)
	}
	want := PeerAddress{IP: net.ParseIP("127.0.0.1").To4(), Port: 9001}
	if !addr.Equal(want) {
		t.Errorf("got %v, want %v", addr, want)
	}
}

func TestParsePeerAddressInvalid(t *testing.T) {
	t.Parallel()
	if _, err := ParsePeerAddress("not-an-address"); err == nil {
		t.Fatal("expected an error for a malformed address")
	}
}

func TestPeerAddressEqualIgnoresRepresentation(t *testing.T) {
	t.Parallel()
	a := PeerAddress{IP: net.ParseIP("10.0.0.1").To4(), Port: 100}
	b := PeerAddress{IP: net.ParseIP("10.0.0.1"), Port: 100}
	if !a.Equal(b) {
		t.Error("addresses with the same IP/port should be equal regardless of net.IP byte-length representation")
	}
}

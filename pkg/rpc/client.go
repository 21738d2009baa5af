package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
)

// Client talks JSON-RPC 2.0 to a running gossipnode's control socket.
type Client struct {
	socketPath string
	conn       net.Conn
	nextID     atomic.Int64
}

// NewClient dials the control socket at socketPath (see GetSocketPath for
// the default resolution order).
func NewClient(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("gossipnode: failed to connect to control socket %s: %w", socketPath, err)
	}

	client := &Client{
		socketPath: socketPath,
		conn:       conn,
	}
	client.nextID.Store(1)

	return client, nil
}

// Call issues one JSON-RPC request and returns its raw, still-JSON-encoded
// result. The typed PeersList/PeersCount/DaemonStatus/DaemonPing/
// GossipAwareness helpers below decode it into the matching result struct;
// Call itself stays generic so a caller can reach a method this client
// hasn't grown a typed wrapper for yet.
func (c *Client) Call(method string, params map[string]interface{}) (interface{}, error) {
	req := &Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}

	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gossipnode: failed to encode %s request: %w", method, err)
	}

	if _, err := c.conn.Write(append(reqData, '\n')); err != nil {
		return nil, fmt.Errorf("gossipnode: failed to send %s request: %w", method, err)
	}

	reader := bufio.NewReader(c.conn)
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("gossipnode: failed to read %s response: %w", method, err)
	}

	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("gossipnode: failed to decode %s response: %w", method, err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("gossipnode: %s rpc error %d: %s", method, resp.Error.Code, resp.Error.Message)
	}

	return resp.Result, nil
}

// callInto issues method and unmarshals its result into out via a JSON
// round trip, since Call returns result as interface{} (already decoded
// once into map[string]interface{} by encoding/json).
func (c *Client) callInto(method string, out interface{}) error {
	result, err := c.Call(method, nil)
	if err != nil {
		return err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("gossipnode: failed to re-encode %s result: %w", method, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("gossipnode: failed to decode %s result: %w", method, err)
	}
	return nil
}

// PeersList calls peers.list and returns the node's current peer sessions.
func (c *Client) PeersList() (*PeersListResult, error) {
	var out PeersListResult
	if err := c.callInto("peers.list", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PeersCount calls peers.count and returns confirmed/pending/total tallies.
func (c *Client) PeersCount() (*PeersCountResult, error) {
	var out PeersCountResult
	if err := c.callInto("peers.count", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DaemonStatus calls daemon.status and returns the node's own address,
// uptime, and version.
func (c *Client) DaemonStatus() (*DaemonStatusResult, error) {
	var out DaemonStatusResult
	if err := c.callInto("daemon.status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DaemonPing calls daemon.ping as a liveness check.
func (c *Client) DaemonPing() (*DaemonPingResult, error) {
	var out DaemonPingResult
	if err := c.callInto("daemon.ping", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GossipAwareness calls gossip.awareness and returns every gossip id the
// node has seen or originated, if --awareness was enabled.
func (c *Client) GossipAwareness() (*GossipAwarenessResult, error) {
	var out GossipAwarenessResult
	if err := c.callInto("gossip.awareness", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Close closes the connection to the control socket.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

package rpc

import (
	"encoding/json"
	"testing"
)

func TestRequestSerialization(t *testing.T) {
	req := &Request{
		JSONRPC: "2.0",
		Method:  "peers.list",
		Params:  map[string]interface{}{"test": "value"},
		ID:      1,
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	var decoded Request
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal request: %v", err)
	}

	if decoded.JSONRPC != "2.0" {
		t.Errorf("expected JSONRPC 2.0, got %s", decoded.JSONRPC)
	}
	if decoded.Method != "peers.list" {
		t.Errorf("expected method peers.list, got %s", decoded.Method)
	}
}

func TestResponseSerialization(t *testing.T) {
	resp := &Response{
		JSONRPC: "2.0",
		Result:  map[string]interface{}{"peers": []interface{}{}},
		ID:      1,
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("failed to marshal response: %v", err)
	}

	var decoded Response
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if decoded.JSONRPC != "2.0" {
		t.Errorf("expected JSONRPC 2.0, got %s", decoded.JSONRPC)
	}
}

func TestErrorResponse(t *testing.T) {
	resp := &Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: ErrCodeMethodNotFound, Message: "method not found"},
		ID:      1,
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("failed to marshal error response: %v", err)
	}

	var decoded Response
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal error response: %v", err)
	}

	if decoded.Error == nil {
		t.Fatal("expected error to be present")
	}
	if decoded.Error.Code != ErrCodeMethodNotFound {
		t.Errorf("expected error code %d, got %d", ErrCodeMethodNotFound, decoded.Error.Code)
	}
}

func TestPeersListResult(t *testing.T) {
	result := &PeersListResult{
		Peers: []*PeerInfo{
			{Addr: "10.0.0.1:9000", Confirmed: true, AgeSeconds: 12.5},
		},
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}

	var decoded PeersListResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if len(decoded.Peers) != 1 {
		t.Errorf("expected 1 peer, got %d", len(decoded.Peers))
	}
	if decoded.Peers[0].Addr != "10.0.0.1:9000" {
		t.Errorf("expected addr 10.0.0.1:9000, got %s", decoded.Peers[0].Addr)
	}
	if !decoded.Peers[0].Confirmed {
		t.Error("expected peer to be confirmed")
	}
}

func TestPeersCountResult(t *testing.T) {
	result := &PeersCountResult{Confirmed: 5, Pending: 2, Total: 7}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}

	var decoded PeersCountResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if decoded.Confirmed != 5 {
		t.Errorf("expected 5 confirmed peers, got %d", decoded.Confirmed)
	}
	if decoded.Total != 7 {
		t.Errorf("expected 7 total peers, got %d", decoded.Total)
	}
}

func TestGossipAwarenessResult(t *testing.T) {
	result := &GossipAwarenessResult{Enabled: true, Count: 2, Ids: []string{"AA", "BB"}}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}

	var decoded GossipAwarenessResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if !decoded.Enabled || decoded.Count != 2 || len(decoded.Ids) != 2 {
		t.Errorf("unexpected round trip: %+v", decoded)
	}
}

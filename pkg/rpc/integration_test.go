package rpc

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestClientServerIntegration(t *testing.T) {
	// Unix socket paths are limited to ~104 chars on macOS. Use /tmp directly
	// with a short unique name rather than t.TempDir() which produces long paths.
	socketPath := filepath.Join(os.TempDir(), fmt.Sprintf("gn-rpc-%d.sock", os.Getpid()))
	t.Cleanup(func() { os.Remove(socketPath) })

	mockSnapshot := []PeerSnapshotData{
		{Addr: "203.0.113.10:9000", Confirmed: true, Age: 5 * time.Minute},
		{Addr: "203.0.113.11:9000", Confirmed: false, Age: time.Second},
	}
	startedAt := time.Now().Add(-10 * time.Minute)

	config := ServerConfig{
		SocketPath:   socketPath,
		Version:      "test-v1.0",
		GetSnapshot:  func() []PeerSnapshotData { return mockSnapshot },
		GetOwnAddr:   func() string { return "127.0.0.1:9001" },
		GetStartedAt: func() time.Time { return startedAt },
		GetAwareness: func() ([]string, bool) { return []string{"AABBCC"}, true },
	}

	server, err := NewServer(config)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer server.Stop()

	var client *Client
	maxRetries := 10
	for i := 0; i < maxRetries; i++ {
		client, err = NewClient(socketPath)
		if err == nil {
			break
		}
		if i == maxRetries-1 {
			t.Fatalf("failed to create client after %d retries: %v", maxRetries, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer client.Close()

	t.Run("daemon.ping", func(t *testing.T) {
		result, err := client.Call("daemon.ping", nil)
		if err != nil {
			t.Fatalf("daemon.ping failed: %v", err)
		}
		resultMap := result.(map[string]interface{})
		if resultMap["pong"] != true {
			t.Error("expected pong to be true")
		}
		if resultMap["version"] != "test-v1.0" {
			t.Errorf("expected version test-v1.0, got %v", resultMap["version"])
		}
	})

	t.Run("peers.list", func(t *testing.T) {
		result, err := client.Call("peers.list", nil)
		if err != nil {
			t.Fatalf("peers.list failed: %v", err)
		}
		resultMap := result.(map[string]interface{})
		peers := resultMap["peers"].([]interface{})
		if len(peers) != 2 {
			t.Fatalf("expected 2 peers, got %d", len(peers))
		}
		peer := peers[0].(map[string]interface{})
		if peer["addr"] != mockSnapshot[0].Addr {
			t.Errorf("expected addr %s, got %v", mockSnapshot[0].Addr, peer["addr"])
		}
		if peer["confirmed"] != true {
			t.Error("expected first peer to be confirmed")
		}
	})

	t.Run("peers.count", func(t *testing.T) {
		result, err := client.Call("peers.count", nil)
		if err != nil {
			t.Fatalf("peers.count failed: %v", err)
		}
		counts := result.(map[string]interface{})
		if int(counts["confirmed"].(float64)) != 1 {
			t.Errorf("expected 1 confirmed peer, got %v", counts["confirmed"])
		}
		if int(counts["pending"].(float64)) != 1 {
			t.Errorf("expected 1 pending peer, got %v", counts["pending"])
		}
		if int(counts["total"].(float64)) != 2 {
			t.Errorf("expected 2 total peers, got %v", counts["total"])
		}
	})

	t.Run("daemon.status", func(t *testing.T) {
		result, err := client.Call("daemon.status", nil)
		if err != nil {
			t.Fatalf("daemon.status failed: %v", err)
		}
		status := result.(map[string]interface{})
		if status["own_addr"] != "127.0.0.1:9001" {
			t.Errorf("expected own_addr 127.0.0.1:9001, got %v", status["own_addr"])
		}
	})

	t.Run("gossip.awareness", func(t *testing.T) {
		result, err := client.Call("gossip.awareness", nil)
		if err != nil {
			t.Fatalf("gossip.awareness failed: %v", err)
		}
		awareness := result.(map[string]interface{})
		if awareness["enabled"] != true {
			t.Error("expected awareness to be enabled")
		}
		if int(awareness["count"].(float64)) != 1 {
			t.Errorf("expected count 1, got %v", awareness["count"])
		}
	})

	t.Run("invalid method", func(t *testing.T) {
		_, err := client.Call("invalid.method", nil)
		if err == nil {
			t.Error("expected error for invalid method")
		}
	})

	t.Run("typed PeersList", func(t *testing.T) {
		result, err := client.PeersList()
		if err != nil {
			t.Fatalf("PeersList failed: %v", err)
		}
		if len(result.Peers) != 2 {
			t.Fatalf("expected 2 peers, got %d", len(result.Peers))
		}
		if result.Peers[0].Addr != mockSnapshot[0].Addr || !result.Peers[0].Confirmed {
			t.Errorf("unexpected first peer: %+v", result.Peers[0])
		}
	})

	t.Run("typed PeersCount", func(t *testing.T) {
		result, err := client.PeersCount()
		if err != nil {
			t.Fatalf("PeersCount failed: %v", err)
		}
		if result.Confirmed != 1 || result.Pending != 1 || result.Total != 2 {
			t.Errorf("unexpected counts: %+v", result)
		}
	})

	t.Run("typed DaemonStatus", func(t *testing.T) {
		result, err := client.DaemonStatus()
		if err != nil {
			t.Fatalf("DaemonStatus failed: %v", err)
		}
		if result.OwnAddr != "127.0.0.1:9001" {
			t.Errorf("expected own addr 127.0.0.1:9001, got %s", result.OwnAddr)
		}
	})

	t.Run("typed DaemonPing", func(t *testing.T) {
		result, err := client.DaemonPing()
		if err != nil {
			t.Fatalf("DaemonPing failed: %v", err)
		}
		if !result.Pong || result.Version != "test-v1.0" {
			t.Errorf("unexpected ping result: %+v", result)
		}
	})

	t.Run("typed GossipAwareness", func(t *testing.T) {
		result, err := client.GossipAwareness()
		if err != nil {
			t.Fatalf("GossipAwareness failed: %v", err)
		}
		if !result.Enabled || result.Count != 1 {
			t.Errorf("unexpected awareness result: %+v", result)
		}
	})
}

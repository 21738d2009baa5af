package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peergossip/gossipnode/pkg/gossip"
)

// DirectoryPublishInterval is how often a RedisDirectory refreshes its own
// membership entry and re-scans for peers.
const DirectoryPublishInterval = 10 * time.Second

// directoryTTL is the expiry set on the swarm's whole membership set each
// time any member publishes. Three publish intervals gives ample margin for
// one or two missed ticks.
const directoryTTL = 3 * DirectoryPublishInterval

func directoryKey(swarmName string) string {
	return "gossipnode:swarm:" + swarmName
}

// RedisDirectory is an optional rendezvous directory: every member
// periodically republishes its own address into a Redis set with an
// expiring key, and scans the same set for addresses other members have
// published. It requires no coordination beyond a shared Redis instance and
// swarm name.
type RedisDirectory struct {
	rdb       *redis.Client
	swarmName string
	ownAddr   gossip.PeerAddress
	peers     chan gossip.PeerAddress
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewRedisDirectory connects to redisAddr and verifies reachability with a
// Ping before returning.
func NewRedisDirectory(redisAddr, swarmName string, ownAddr gossip.PeerAddress) (*RedisDirectory, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("bootstrap: redis connection failed: %w", err)
	}

	ctx, cancelRun := context.WithCancel(context.Background())
	return &RedisDirectory{
		rdb:       rdb,
		swarmName: swarmName,
		ownAddr:   ownAddr,
		peers:     make(chan gossip.PeerAddress, 32),
		ctx:       ctx,
		cancel:    cancelRun,
	}, nil
}

// Peers is the channel of discovered candidate addresses.
func (d *RedisDirectory) Peers() <-chan gossip.PeerAddress { return d.peers }

// Start begins the publish/scan loop in the background.
func (d *RedisDirectory) Start() {
	go d.loop()
}

// Close stops the loop, closes the Redis client, and closes the Peers
// channel.
func (d *RedisDirectory) Close() {
	d.cancel()
	d.rdb.Close()
	close(d.peers)
}

func (d *RedisDirectory) loop() {
	d.tick()
	ticker := time.NewTicker(DirectoryPublishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *RedisDirectory) tick() {
	d.publish()
	d.scan()
}

// publish adds this member's own address to the swarm's set and refreshes
// the set's TTL. The TTL covers the whole set, not this one entry: the set
// expires only once no member has published for directoryTTL.
func (d *RedisDirectory) publish() {
	ctx, cancel := context.WithTimeout(d.ctx, 2*time.Second)
	defer cancel()

	key := directoryKey(d.swarmName)
	member := d.ownAddr.String()
	if err := d.rdb.SAdd(ctx, key, member).Err(); err != nil {
		log.Printf("[Bootstrap] redis publish failed: %v", err)
		return
	}
	if err := d.rdb.Expire(ctx, key, directoryTTL).Err(); err != nil {
		log.Printf("[Bootstrap] redis refresh-ttl failed: %v", err)
	}
}

// scan reads every member currently published in the swarm's set and
// forwards addresses other than its own onto Peers. Members are never
// removed one by one: a member that stops publishing stays listed as long as
// any other member keeps refreshing the key-wide TTL in publish.
func (d *RedisDirectory) scan() {
	ctx, cancel := context.WithTimeout(d.ctx, 2*time.Second)
	defer cancel()

	key := directoryKey(d.swarmName)
	var cursor uint64
	for {
		members, next, err := d.rdb.SScan(ctx, key, cursor, "*", 50).Result()
		if err != nil {
			log.Printf("[Bootstrap] redis scan failed: %v", err)
			return
		}
		for _, member := range members {
			addr, err := gossip.ParsePeerAddress(member)
			if err != nil {
				continue
			}
			if addr.Equal(d.ownAddr) {
				continue
			}
			select {
			case d.peers <- addr:
			case <-d.ctx.Done():
				return
			default:
			}
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}

package bootstrap

import "github.com/peergossip/gossipnode/pkg/gossip"

// Merge fans multiple discovery channels into one, for Options.BootstrapChan.
// The returned channel closes once every source channel has closed.
func Merge(sources ...<-chan gossip.PeerAddress) <-chan gossip.PeerAddress {
	out := make(chan gossip.PeerAddress, 32)
	if len(sources) == 0 {
		close(out)
		return out
	}

	done := make(chan struct{}, len(sources))
	for _, src := range sources {
		go func(src <-chan gossip.PeerAddress) {
			for addr := range src {
				out <- addr
			}
			done <- struct{}{}
		}(src)
	}

	go func() {
		for range sources {
			<-done
		}
		close(out)
	}()

	return out
}

package gossip

import (
	"math/rand"
	"time"
)

// Clock is the monotonic-time collaborator the control loop consumes. Timer
// decisions (confirmation timeout, decay, self-origination, peer polling)
// read the time through it so tests can inject a fake clock; socket I/O
// deadlines are set from time.Now() directly.
type Clock interface {
	Now() time.Time
}

// systemClock is the production Clock, backed by the real wall/monotonic
// clock the Go runtime maintains on every time.Time value.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the default Clock used when none is supplied.
var SystemClock Clock = systemClock{}

// RandomSource is the collaborator the control loop consumes to mint new
// GossipIds for self-origination. The spec explicitly requires no
// cryptographic property here, only unpredictability sufficient to avoid
// accidental collisions.
type RandomSource interface {
	GossipID() GossipID
}

// mathRandSource is the production RandomSource, matching the teacher's use
// of math/rand for non-cryptographic peer selection elsewhere in the corpus.
type mathRandSource struct{}

func (mathRandSource) GossipID() GossipID {
	var id GossipID
	for i := range id {
		id[i] = byte(rand.Intn(256))
	}
	return id
}

// DefaultRandomSource is the default RandomSource used when none is supplied.
var DefaultRandomSource RandomSource = mathRandSource{}

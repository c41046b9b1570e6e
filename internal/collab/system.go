package collab

import (
	"encoding/binary"
	"math/rand"
	"sync"
	"time"
)

// SystemClock is the default Clock, backed by the wall clock. Hosts that
// need deterministic tests should inject a fake instead.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// MathRng is a default Rng backed by a mutex-guarded math/rand source. It
// is not cryptographically secure and exists only so cmd/ binaries have a
// concrete entropy source to wire; hosts that need reproducible tests
// should inject a fake instead.
type MathRng struct {
	mu  sync.Mutex
	src *rand.Rand
}

// NewMathRng creates a MathRng seeded from the given value.
func NewMathRng(seed int64) *MathRng {
	return &MathRng{src: rand.New(rand.NewSource(seed))}
}

func (r *MathRng) Random() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Float64()
}

// PassthroughEncryptor is a placeholder Encryptor for local development and
// tests: it serializes the histogram as a big-endian uint64 array without
// any actual encryption. Production hosts must inject a real Encryptor;
// this exists only because the six operations need a concrete collaborator
// to exercise end to end (the wire encoding itself is a declared non-goal).
type PassthroughEncryptor struct{}

func (PassthroughEncryptor) Encrypt(histogram []uint64) ([]byte, error) {
	buf := make([]byte, 8*len(histogram))
	for i, v := range histogram {
		binary.BigEndian.PutUint64(buf[i*8:], v)
	}
	return buf, nil
}

// IdentityCanonicalizer treats its input as already canonical. Production
// hosts must inject a real eTLD+1 SiteCanonicalizer; URL/site
// canonicalization is a declared non-goal of this core.
type IdentityCanonicalizer struct{}

func (IdentityCanonicalizer) CanonicalizeSite(raw string) (string, error) {
	return raw, nil
}

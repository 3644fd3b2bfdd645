package seed

import (
	"encoding/binary"
	"io"
	"math/rand"
)

// prngReader is a deterministic io.Reader backed by a math/rand RNG, so
// a demo dataset can be regenerated byte-for-byte from the same seed.
type prngReader struct {
	r *rand.Rand
}

// NewDeterministicSource returns an io.Reader of pseudorandom bytes
// seeded by an integer, for callers (faker's own rand source) that want
// reproducible output instead of crypto/rand-style entropy.
func NewDeterministicSource(seed int64) io.Reader {
	return &prngReader{r: rand.New(rand.NewSource(seed))}
}

func (r *prngReader) Read(p []byte) (int, error) {
	n := len(p)
	for i := 0; i < n; i += 8 {
		v := r.r.Int63()
		binary.LittleEndian.PutUint64(p[i:], uint64(v))
	}
	return n, nil
}

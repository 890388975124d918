package shortcode

import (
	"crypto/rand"
	"math/big"
	mathrand "math/rand/v2"
)

// Source draws uniformly distributed integers in [0, n).
type Source interface {
	IntN(n int) int
}

// CryptoSource draws from crypto/rand
type CryptoSource struct{}

// IntN returns a uniform value in [0, n). It falls back to math/rand if the
// system source fails.
func (CryptoSource) IntN(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return mathrand.IntN(n)
	}
	return int(v.Int64())
}

// SeededSource is a deterministic Source. Two sources built from the same
// seed produce the same candidates.
func SeededSource(seed uint64) Source {
	return mathrand.New(mathrand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

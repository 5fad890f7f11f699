package sampling

import (
	crand "crypto/rand"
	"fmt"
	mrand "math/rand/v2"
)

// sampleSize returns ceil(n * pct / 100). Any non-empty batch yields a
// sample of at least one response.
func sampleSize(n, pct int) int {
	if n <= 0 {
		return 0
	}
	k := (n*pct + 99) / 100
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

// drawSample partitions ids into a uniform random sample of sampleSize(n,pct)
// and the remainder. The input slice is left untouched. The generator is
// seeded from the OS entropy source so interviewers cannot predict which of
// their responses will be inspected.
func drawSample(ids []string, pct int) (sample, remainder []string, err error) {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return nil, nil, fmt.Errorf("seeding sampler: %w", err)
	}
	rng := mrand.New(mrand.NewChaCha8(seed))

	shuffled := make([]string, len(ids))
	copy(shuffled, ids)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	k := sampleSize(len(shuffled), pct)
	return shuffled[:k], shuffled[k:], nil
}

package rateless

import (
	"math"
	"math/rand"
)

// DegreeDistribution returns a robust-soliton probability mass function
// over degrees 1..k (index 0 is degree 1), per SPEC_FULL.md §4.4's
// "robust-soliton is the intended choice." c and delta are the usual
// tuning constants: c controls the spike width, delta bounds the
// decoding failure probability. Typical values are c in [0.03, 0.1] and
// delta in [0.05, 0.5].
func DegreeDistribution(k int, c, delta float64) []float64 {
	if k <= 0 {
		return nil
	}
	if k == 1 {
		return []float64{1.0}
	}

	rho := make([]float64, k+1) // 1-indexed, rho[0] unused
	rho[1] = 1.0 / float64(k)
	for i := 2; i <= k; i++ {
		rho[i] = 1.0 / (float64(i) * float64(i-1))
	}

	r := c * math.Log(float64(k)/delta) * math.Sqrt(float64(k))
	spike := int(float64(k) / r)
	if spike < 1 {
		spike = 1
	}

	tau := make([]float64, k+1)
	for i := 1; i < spike && i <= k; i++ {
		tau[i] = r / (float64(i) * float64(k))
	}
	if spike <= k {
		tau[spike] = r * math.Log(r/delta) / float64(k)
	}

	mu := make([]float64, k)
	sum := 0.0
	for i := 1; i <= k; i++ {
		mu[i-1] = rho[i] + tau[i]
		sum += mu[i-1]
	}
	if sum > 0 {
		for i := range mu {
			mu[i] /= sum
		}
	}
	return mu
}

// degreeSampler draws degrees from a fixed distribution using a
// replica-owned random source, clamped to the number of entries
// actually available to sample from.
type degreeSampler struct {
	dist []float64
	rng  *rand.Rand
}

func newDegreeSampler(dist []float64, rng *rand.Rand) *degreeSampler {
	return &degreeSampler{dist: dist, rng: rng}
}

// sample draws one degree in [1, available]. available <= 0 yields 0,
// signaling the caller has nothing to encode.
func (s *degreeSampler) sample(available int) int {
	if available <= 0 {
		return 0
	}
	if len(s.dist) == 0 {
		return 1
	}
	x := s.rng.Float64()
	cum := 0.0
	d := len(s.dist)
	for i, p := range s.dist {
		cum += p
		if x < cum {
			d = i + 1
			break
		}
	}
	if d > available {
		d = available
	}
	if d < 1 {
		d = 1
	}
	return d
}

// samplePositions picks d distinct integers from [lo, hi) uniformly
// without replacement, via a partial Fisher-Yates shuffle.
func samplePositions(rng *rand.Rand, lo, hi, d int) []int {
	n := hi - lo
	if d > n {
		d = n
	}
	pool := make([]int, n)
	for i := range pool {
		pool[i] = lo + i
	}
	for i := 0; i < d; i++ {
		j := i + rng.Intn(n-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	out := make([]int, d)
	copy(out, pool[:d])
	return out
}

package remix

// rng is a mulberry32 generator: 32-bit state advanced by a fixed increment,
// mixed with multiply-xor-shift steps, normalized to [0,1). Replaying the
// same seed reproduces the exact same draw sequence, which is what makes
// remix output byte-reproducible.
type rng struct {
	state uint32
}

func newRNG(seed uint32) *rng {
	return &rng{state: seed}
}

// next returns the next draw in [0,1).
func (r *rng) next() float64 {
	r.state += 0x6D2B79F5
	t := r.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	t ^= t >> 14
	return float64(t) / 4294967296.0
}

// intn returns a draw in [0,n). n <= 0 yields 0.
func (r *rng) intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.next() * float64(n))
}

// pick returns one element; the empty string for an empty list. A draw is
// consumed even for single-element lists so the draw sequence stays stable
// when list lengths vary between descriptors.
func (r *rng) pick(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[r.intn(len(list))]
}

// sample draws up to k distinct elements, preserving draw order.
func (r *rng) sample(list []string, k int) []string {
	if k <= 0 || len(list) == 0 {
		return nil
	}
	if k > len(list) {
		k = len(list)
	}
	idx := make([]int, len(list))
	for i := range idx {
		idx[i] = i
	}
	out := make([]string, 0, k)
	for i := 0; i < k; i++ {
		j := i + r.intn(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		out = append(out, list[idx[i]])
	}
	return out
}

package coverage

// TransitionHash computes the 64-bit SimHash over a cumulative bucketed
// edge map. Cells with bucket 0 (never hit) contribute nothing. Returns
// (hash, true), or (0, false) when no cell has been hit at all (no
// signal to report).
//
// internal/capture calls this in Go on the cumulative map it keeps after
// pulling the page's raw counters; the page itself computes no hash.
func TransitionHash(cumulative [Size]uint8) (uint64, bool) {
	var acc [64]int32
	any := false
	for i, bucket := range cumulative {
		if bucket == 0 {
			continue
		}
		any = true
		weight := int32(log2(uint32(bucket)))
		if weight < 1 {
			weight = 1
		}
		if weight > 3 {
			weight = 3
		}
		h := mix64(uint64(i))
		for b := 0; b < 64; b++ {
			if h&(1<<uint(b)) != 0 {
				acc[b] += weight
			} else {
				acc[b] -= weight
			}
		}
	}
	if !any {
		return 0, false
	}
	var out uint64
	for b := 0; b < 64; b++ {
		if acc[b] > 0 {
			out |= 1 << uint(b)
		}
	}
	return out, true
}

func log2(n uint32) int {
	l := 0
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}

// mix64 is splitmix64's finalizer, used as a cheap avalanching hash of
// the edge-map index.
func mix64(x uint64) uint64 {
	h := x + 0x9e3779b97f4a7c15
	h = (h ^ (h >> 30)) * 0xbf58476d1ce4e5b9
	h = (h ^ (h >> 27)) * 0x94d049bb133111eb
	return h ^ (h >> 31)
}

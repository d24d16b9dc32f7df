package coverage

import "testing"

func TestBucket(t *testing.T) {
	cases := []struct {
		hits uint8
		want uint8
	}{
		{0, 0}, {1, 1}, {2, 2}, {3, 3}, {4, 3}, {5, 3}, {7, 3},
		{8, 4}, {15, 4}, {16, 5}, {255, 8},
	}
	for _, c := range cases {
		if got := Bucket(c.hits); got != c.want {
			t.Errorf("Bucket(%d) = %d, want %d", c.hits, got, c.want)
		}
	}
}

func TestDeltaRoundTrip(t *testing.T) {
	var previous, raw [Size]uint8
	previous[10] = 2
	previous[20] = 5
	raw[10] = 2 // unchanged, bucketed to 2
	raw[20] = 9 // bucketed to 4, changed from 5
	raw[30] = 1 // new edge

	delta := Delta(previous, raw)
	got := Apply(previous, delta)

	var want [Size]uint8
	for i := range want {
		want[i] = Bucket(raw[i])
	}
	if got != want {
		t.Fatalf("round-trip mismatch")
	}
}

func TestMaxUpdateIsMonotone(t *testing.T) {
	m := NewMax()
	m.Update([]Edge{{Index: 5, Bucket: 3}})
	m.Update([]Edge{{Index: 5, Bucket: 2}})
	if m.cells[5] != 3 {
		t.Fatalf("expected max to stay at 3, got %d", m.cells[5])
	}
	m.Update([]Edge{{Index: 5, Bucket: 4}})
	if m.cells[5] != 4 {
		t.Fatalf("expected max to rise to 4, got %d", m.cells[5])
	}
}

func TestTransitionHashNilWhenEmpty(t *testing.T) {
	var cumulative [Size]uint8
	if _, ok := TransitionHash(cumulative); ok {
		t.Fatalf("expected no hash for an all-zero map")
	}
}

func TestTransitionHashStable(t *testing.T) {
	var cumulative [Size]uint8
	cumulative[100] = 3
	cumulative[200] = 5
	h1, ok1 := TransitionHash(cumulative)
	h2, ok2 := TransitionHash(cumulative)
	if !ok1 || !ok2 || h1 != h2 {
		t.Fatalf("expected a stable hash for a fixed map")
	}
}

package ordering

import "testing"

func TestTail(t *testing.T) {
	tests := []struct {
		last int
		want int
	}{
		{-1, Stride},
		{0, Stride},
		{Stride, 2 * Stride},
		{1500, 2500},
	}
	for _, tt := range tests {
		if got := Tail(tt.last); got != tt.want {
			t.Errorf("Tail(%d) = %d, want %d", tt.last, got, tt.want)
		}
	}
}

func TestHead(t *testing.T) {
	if pos, ok := Head(Stride); !ok || pos != Stride/2 {
		t.Errorf("Head(%d) = %d, %v", Stride, pos, ok)
	}
	if _, ok := Head(0); ok {
		t.Error("Head(0) should report no room")
	}
	if pos, ok := Head(1); !ok || pos != 0 {
		t.Errorf("Head(1) = %d, %v, want 0 with room", pos, ok)
	}
}

func TestBetween(t *testing.T) {
	tests := []struct {
		before, after int
		want          int
		ok            bool
	}{
		{0, Stride, Stride / 2, true},
		{0, 2, 1, true},
		{0, 1, 0, false},
		{5, 5, 0, false},
		{999, 1000, 0, false},
		{1000, 3000, 2000, true},
	}
	for _, tt := range tests {
		got, ok := Between(tt.before, tt.after)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("Between(%d, %d) = %d, %v, want %d, %v", tt.before, tt.after, got, ok, tt.want, tt.ok)
		}
		if ok && (got <= tt.before || got >= tt.after) {
			t.Errorf("Between(%d, %d) = %d, not strictly between", tt.before, tt.after, got)
		}
	}
}

func TestRebalanced(t *testing.T) {
	got := Rebalanced(4)
	want := []int{1000, 2000, 3000, 4000}
	if len(got) != len(want) {
		t.Fatalf("Rebalanced(4) has %d entries", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Rebalanced(4)[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if len(Rebalanced(0)) != 0 {
		t.Error("Rebalanced(0) should be empty")
	}
}

func TestPlanInsert(t *testing.T) {
	existing := []int{1000, 2000, 3000}
	tests := []struct {
		at            int
		want          int
		needRebalance bool
	}{
		{0, 500, false},
		{1, 1500, false},
		{2, 2500, false},
		{3, 4000, false},
		{99, 4000, false},
		{-1, 500, false},
	}
	for _, tt := range tests {
		pos, need := PlanInsert(existing, tt.at)
		if need != tt.needRebalance || (!need && pos != tt.want) {
			t.Errorf("PlanInsert(at=%d) = %d, %v, want %d, %v", tt.at, pos, need, tt.want, tt.needRebalance)
		}
	}

	if pos, need := PlanInsert(nil, 0); pos != Stride || need {
		t.Errorf("PlanInsert(empty) = %d, %v, want %d with no rebalance", pos, need, Stride)
	}
	if _, need := PlanInsert([]int{10, 11}, 1); !need {
		t.Error("PlanInsert between adjacent positions should need a rebalance")
	}
	if _, need := PlanInsert([]int{0, 1000}, 0); !need {
		t.Error("PlanInsert before a row at 0 should need a rebalance")
	}
}

// A rebalance must always make room at every index, including the head.
// Otherwise a head insert whose retry rebalances and plans again could
// loop forever on a list whose first position is 0.
func TestPlanInsertAfterRebalanceNeverLoops(t *testing.T) {
	for n := 1; n <= 6; n++ {
		fresh := Rebalanced(n)
		for at := 0; at <= n; at++ {
			pos, need := PlanInsert(fresh, at)
			if need {
				t.Fatalf("PlanInsert(Rebalanced(%d), %d) still demands a rebalance", n, at)
			}
			for _, taken := range fresh {
				if pos == taken {
					t.Fatalf("PlanInsert(Rebalanced(%d), %d) = %d collides with an existing position", n, at, pos)
				}
			}
			if pos < 0 {
				t.Fatalf("PlanInsert(Rebalanced(%d), %d) = %d overlaps the parking range", n, at, pos)
			}
		}
	}
}

// Repeated midpoint inserts at the same slot must eventually demand a
// rebalance rather than loop forever or collide.
func TestBetweenExhaustsGap(t *testing.T) {
	before, after := 0, Stride
	steps := 0
	for {
		mid, ok := Between(before, after)
		if !ok {
			break
		}
		after = mid
		steps++
		if steps > 64 {
			t.Fatal("gap never exhausted")
		}
	}
	if steps == 0 {
		t.Fatal("expected at least one midpoint insert")
	}
}

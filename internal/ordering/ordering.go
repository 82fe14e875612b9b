// Package ordering computes integer list positions with gaps, so a single
// row update reorders an item without touching its neighbors. Positions
// start at Stride and advance by Stride, leaving the (0, Stride) range
// open for head insertion; an insert between neighbors takes the
// midpoint. When two neighbors become adjacent there is no midpoint left
// and the whole list is rewritten with fresh gaps.
package ordering

// Stride is the gap between consecutive positions after a rebalance and
// the step used when appending.
const Stride = 1000

// Spaced returns the canonical position for index i in a rebalanced
// list. Index 0 sits at Stride, never 0, so a later head insert still
// has room below it.
func Spaced(i int) int {
	return (i + 1) * Stride
}

// Tail returns the position for appending after the current last
// position. Pass the largest existing position; for an empty list use
// Tail(-1) which yields Stride.
func Tail(last int) int {
	if last < 0 {
		return Stride
	}
	return last + Stride
}

// Head returns a position before first, or ok=false when no integer
// fits and the list needs rebalancing.
func Head(first int) (int, bool) {
	if first <= 0 {
		return 0, false
	}
	return first / 2, true
}

// Between returns the midpoint position strictly between before and
// after, or ok=false when they are adjacent and no integer fits.
func Between(before, after int) (int, bool) {
	if after-before < 2 {
		return 0, false
	}
	return before + (after-before)/2, true
}

// Rebalanced returns fresh spaced positions for a list of n items.
func Rebalanced(n int) []int {
	positions := make([]int, n)
	for i := range positions {
		positions[i] = Spaced(i)
	}
	return positions
}

// PlanInsert picks a position for inserting into a sorted list of
// existing positions at index at (0 = before everything, len = append).
// It returns needRebalance=true when the gap at the insertion point is
// exhausted; the caller then rewrites the list with Rebalanced positions
// and calls PlanInsert again, which succeeds because every gap is now
// Stride wide.
func PlanInsert(existing []int, at int) (pos int, needRebalance bool) {
	n := len(existing)
	if at < 0 {
		at = 0
	}
	if at > n {
		at = n
	}
	switch {
	case n == 0:
		return Tail(-1), false
	case at == n:
		return Tail(existing[n-1]), false
	case at == 0:
		pos, ok := Head(existing[0])
		return pos, !ok
	default:
		pos, ok := Between(existing[at-1], existing[at])
		return pos, !ok
	}
}

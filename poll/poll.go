// Package poll bounds the busy-wait loops that watch device status.
//
// Completion detection is active polling bounded by an iteration
// counter, not wall-clock time, so the effective timeout is
// CPU-speed-dependent. The budget is an explicit parameter so tests
// can inject a zero budget and hit the timeout path deterministically.
package poll

// Budget is the iteration budget for one spin loop.
type Budget struct {
	Iterations int
}

// DefaultBudget matches the iteration counts the poll loops were
// tuned with on hardware.
var DefaultBudget = Budget{Iterations: 1000000}

// Poll spins until done reports true or the budget is exhausted and
// reports whether done was observed. done is always evaluated at
// least once.
func (b Budget) Poll(done func() bool) bool {
	for i := 0; ; i++ {
		if done() {
			return true
		}

		if i >= b.Iterations {
			return false
		}
	}
}

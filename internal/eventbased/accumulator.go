package eventbased

import (
	"sort"
	"sync"

	"github.com/rewired-gh/quakeloss/internal/models"
)

// Accumulator sums asset losses per stochastic event across one calculation
// run. Events are keyed by their event-set index, so assets whose fields cover
// different subsets of the event set still line up. Only events some asset
// reported are stored, whatever their index. It is safe for concurrent use.
type Accumulator struct {
	mu     sync.Mutex
	sums   map[int]float64
	assets int
}

func NewAccumulator() *Accumulator {
	return &Accumulator{sums: make(map[int]float64)}
}

// Add folds one asset's per-event losses into the running sums. losses[i]
// belongs to event gmf.EventID(i).
func (a *Accumulator) Add(gmf models.GroundMotionField, losses []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, loss := range losses {
		a.sums[gmf.EventID(i)] += loss
	}
	a.assets++
}

// Events returns the reported event indices in ascending order and the
// aggregate loss of each.
func (a *Accumulator) Events() ([]int, []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]int, 0, len(a.sums))
	for id := range a.sums {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	losses := make([]float64, len(ids))
	for i, id := range ids {
		losses[i] = a.sums[id]
	}
	return ids, losses
}

func (a *Accumulator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.assets
}

// Reset discards all accumulated losses.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sums = make(map[int]float64)
	a.assets = 0
}

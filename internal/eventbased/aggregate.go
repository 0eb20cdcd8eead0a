package eventbased

import (
	"fmt"
	"math"
	"sort"

	"github.com/rewired-gh/quakeloss/internal/losscurve"
	"github.com/rewired-gh/quakeloss/internal/models"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// AggregateOptions controls how the aggregate loss curve is built.
type AggregateOptions struct {
	// Bins, when positive, pre-aggregates losses into equal-width bins whose
	// midpoints stand in for the losses they hold.
	Bins int
	// Resolution is passed to losscurve.Build.
	Resolution int
}

// AggregateLossCurve builds the portfolio loss curve from event-indexed
// aggregate loss vectors. The vectors are summed element-wise, shorter ones
// padded with zero losses, so every event contributes its joint portfolio loss.
func AggregateLossCurve(sets [][]float64, tses, timeSpan float64, opts AggregateOptions) (models.Curve, error) {
	if opts.Bins < 0 {
		return models.Curve{}, fmt.Errorf("aggregate bins must not be negative, got %d", opts.Bins)
	}

	var total []float64
	for _, set := range sets {
		if len(set) > len(total) {
			total = append(total, make([]float64, len(set)-len(total))...)
		}
		floats.Add(total[:len(set)], set)
	}
	if len(total) == 0 {
		return models.Curve{}, losscurve.ErrEmptyObservationSet
	}

	if opts.Bins == 0 {
		return losscurve.Build(total, tses, timeSpan, opts.Resolution)
	}
	midpoints, counts := binLosses(total, opts.Bins)
	return losscurve.BuildWeighted(midpoints, counts, tses, timeSpan, opts.Resolution)
}

// binLosses partitions losses into bins equal-width bins between their minimum
// and maximum and returns each bin's midpoint and occupancy.
func binLosses(losses []float64, bins int) (midpoints, counts []float64) {
	sorted := append([]float64(nil), losses...)
	sort.Float64s(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		return []float64{lo}, []float64{float64(len(sorted))}
	}

	edges := floats.Span(make([]float64, bins+1), lo, hi)
	edges[bins] = hi
	dividers := append([]float64(nil), edges...)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	counts = stat.Histogram(nil, dividers, sorted, nil)

	midpoints = make([]float64, bins)
	for i := range midpoints {
		midpoints[i] = (edges[i] + edges[i+1]) / 2
	}
	return midpoints, counts
}

// Package losscurve builds empirical exceedance-probability curves from
// simulated loss observations and reads conditional losses off them.
package losscurve

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rewired-gh/quakeloss/internal/models"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
)

var (
	ErrEmptyObservationSet = errors.New("empty observation set")
	ErrInvalidDuration     = errors.New("invalid duration")
)

// Magnitudes closer than this are one tie group and share a rank.
const (
	tieRelTol = 1e-5
	tieAbsTol = 1e-8
)

type rankedPoint struct {
	magnitude float64
	// exceedances is the number of observations at or above magnitude.
	exceedances float64
	poe         float64
}

// Build converts loss (or loss-ratio) observations, one per stochastic event,
// into an exceedance curve. tses is the simulated duration of the event set and
// timeSpan the exposure period of the resulting probabilities, both in years.
//
// A resolution of 0 keeps one point per distinct magnitude, ranked from 1 so
// the largest magnitude gets the rate 1/tses. Resolution n >= 2 ranks from 0
// (the largest magnitude is never exceeded and gets probability 0) and
// resamples the ranked points onto n evenly spaced probabilities between the
// smallest and largest ranked one. Fewer than two distinct magnitudes cannot be
// resampled and keep the resolution 0 curve.
func Build(magnitudes []float64, tses, timeSpan float64, resolution int) (models.Curve, error) {
	return BuildWeighted(magnitudes, nil, tses, timeSpan, resolution)
}

// BuildWeighted is Build where counts[i] is the multiplicity of magnitudes[i].
// A nil counts slice means every magnitude occurs once.
func BuildWeighted(magnitudes, counts []float64, tses, timeSpan float64, resolution int) (models.Curve, error) {
	if len(magnitudes) == 0 {
		return models.Curve{}, ErrEmptyObservationSet
	}
	if counts != nil && len(counts) != len(magnitudes) {
		return models.Curve{}, fmt.Errorf("%d counts for %d magnitudes", len(counts), len(magnitudes))
	}
	if !(tses > 0) || math.IsInf(tses, 0) {
		return models.Curve{}, fmt.Errorf("%w: TSES must be positive, got %g", ErrInvalidDuration, tses)
	}
	if !(timeSpan > 0) || math.IsInf(timeSpan, 0) {
		return models.Curve{}, fmt.Errorf("%w: time span must be positive, got %g", ErrInvalidDuration, timeSpan)
	}
	if resolution == 1 || resolution < 0 {
		return models.Curve{}, fmt.Errorf("curve resolution must be 0 or at least 2, got %d", resolution)
	}

	points := rank(magnitudes, counts)
	if resolution >= 2 && len(points) >= 2 {
		setPoEs(points, tses, timeSpan, 1)
		if resampled, ok := resample(points, resolution); ok {
			return assemble(resampled), nil
		}
	}
	setPoEs(points, tses, timeSpan, 0)
	return assemble(points), nil
}

// rank returns one point per distinct positive magnitude in descending order of
// magnitude. A tie group is anchored on its largest member, reports that
// magnitude, and counts every member as exceeding it.
func rank(magnitudes, counts []float64) []rankedPoint {
	type obs struct {
		magnitude float64
		count     float64
	}
	observed := make([]obs, 0, len(magnitudes))
	for i, m := range magnitudes {
		c := 1.0
		if counts != nil {
			c = counts[i]
		}
		if m > 0 && c > 0 {
			observed = append(observed, obs{magnitude: m, count: c})
		}
	}
	sort.Slice(observed, func(i, j int) bool {
		return observed[i].magnitude > observed[j].magnitude
	})

	var points []rankedPoint
	var exceedances float64
	anchor := 0
	for i, o := range observed {
		exceedances += o.count
		last := i == len(observed)-1
		if !last && sameMagnitude(observed[anchor].magnitude, observed[i+1].magnitude) {
			continue
		}
		points = append(points, rankedPoint{
			magnitude:   observed[anchor].magnitude,
			exceedances: exceedances,
		})
		anchor = i + 1
	}
	return points
}

func sameMagnitude(anchor, m float64) bool {
	return math.Abs(anchor-m) <= tieAbsTol+tieRelTol*math.Abs(m)
}

// setPoEs converts exceedance counts to Poisson probabilities, discounting
// offset observations from every count.
func setPoEs(points []rankedPoint, tses, timeSpan, offset float64) {
	for i := range points {
		rate := math.Max(points[i].exceedances-offset, 0) / tses
		points[i].poe = -math.Expm1(-rate * timeSpan)
	}
}

// resample interpolates magnitude against probability at resolution evenly
// spaced probabilities. Probabilities that saturate to an earlier value keep
// the smallest magnitude reaching them so the knots stay strictly increasing.
func resample(points []rankedPoint, resolution int) ([]rankedPoint, bool) {
	poes := make([]float64, 0, len(points))
	mags := make([]float64, 0, len(points))
	for _, p := range points {
		if len(poes) > 0 && p.poe <= poes[len(poes)-1] {
			mags[len(mags)-1] = p.magnitude
			continue
		}
		poes = append(poes, p.poe)
		mags = append(mags, p.magnitude)
	}
	if len(poes) < 2 {
		return nil, false
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(poes, mags); err != nil {
		return nil, false
	}
	grid := floats.Span(make([]float64, resolution), poes[0], poes[len(poes)-1])
	grid[0] = poes[0]
	grid[len(grid)-1] = poes[len(poes)-1]
	out := make([]rankedPoint, len(grid))
	for i, p := range grid {
		out[i] = rankedPoint{magnitude: pl.Predict(p), poe: p}
	}
	return out, true
}

// assemble lays the points out in ascending magnitude behind the synthetic
// (0, 1) head.
func assemble(points []rankedPoint) models.Curve {
	c := models.Curve{
		XValues: make([]float64, 0, len(points)+1),
		YValues: make([]float64, 0, len(points)+1),
	}
	c.XValues = append(c.XValues, 0)
	c.YValues = append(c.YValues, 1)
	for i := len(points) - 1; i >= 0; i-- {
		c.XValues = append(c.XValues, points[i].magnitude)
		c.YValues = append(c.YValues, points[i].poe)
	}
	return c
}

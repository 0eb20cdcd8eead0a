// Package vulnerability maps ground-motion intensity to loss-ratio distributions
// and draws per-event loss ratios from them.
package vulnerability

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidVulnerabilityData is returned for malformed function tables.
var ErrInvalidVulnerabilityData = errors.New("invalid vulnerability data")

// Function is a discrete vulnerability function: for each intensity measure
// level it stores the mean loss ratio and its coefficient of variation.
// A Function is immutable and safe for concurrent use.
type Function struct {
	imls   []float64
	means  []float64
	covs   []float64
	family Family
}

// NewFunction builds a vulnerability function from its table columns.
func NewFunction(imls, meanLossRatios, covs []float64, family Family) (*Function, error) {
	if len(imls) == 0 {
		return nil, fmt.Errorf("%w: empty IML table", ErrInvalidVulnerabilityData)
	}
	if len(imls) != len(meanLossRatios) || len(imls) != len(covs) {
		return nil, fmt.Errorf("%w: %d IMLs, %d loss ratios, %d CoVs",
			ErrInvalidVulnerabilityData, len(imls), len(meanLossRatios), len(covs))
	}
	if !family.valid() {
		return nil, fmt.Errorf("%w: unknown distribution family %d", ErrInvalidVulnerabilityData, family)
	}
	for i := range imls {
		if i > 0 && imls[i] <= imls[i-1] {
			return nil, fmt.Errorf("%w: IMLs not strictly increasing at index %d", ErrInvalidVulnerabilityData, i)
		}
		if meanLossRatios[i] < 0 || meanLossRatios[i] > 1 {
			return nil, fmt.Errorf("%w: loss ratio %g at index %d outside [0, 1]", ErrInvalidVulnerabilityData, meanLossRatios[i], i)
		}
		if covs[i] < 0 {
			return nil, fmt.Errorf("%w: negative CoV %g at index %d", ErrInvalidVulnerabilityData, covs[i], i)
		}
	}

	f := &Function{
		imls:   append([]float64(nil), imls...),
		means:  append([]float64(nil), meanLossRatios...),
		covs:   append([]float64(nil), covs...),
		family: family,
	}
	return f, nil
}

// Family returns the distribution family that consumes this function's moments.
func (f *Function) Family() Family {
	return f.family
}

// LossRatioDistribution returns the mean loss ratio and coefficient of
// variation at iml, interpolating linearly between the bracketing table rows.
// Levels outside the table are clamped to the nearest boundary row.
func (f *Function) LossRatioDistribution(iml float64) (mean, cov float64) {
	n := len(f.imls)
	if iml <= f.imls[0] {
		return f.means[0], f.covs[0]
	}
	if iml >= f.imls[n-1] {
		return f.means[n-1], f.covs[n-1]
	}

	j := sort.SearchFloat64s(f.imls, iml)
	if f.imls[j] == iml {
		return f.means[j], f.covs[j]
	}
	i := j - 1
	t := (iml - f.imls[i]) / (f.imls[j] - f.imls[i])
	mean = f.means[i] + t*(f.means[j]-f.means[i])
	cov = f.covs[i] + t*(f.covs[j]-f.covs[i])
	return mean, cov
}

// LossRatios derives one loss ratio per ground-motion value using s.
// Results are clamped to [0, 1].
func (f *Function) LossRatios(imls []float64, s Sampler) []float64 {
	ratios := make([]float64, len(imls))
	for i, iml := range imls {
		mean, cov := f.LossRatioDistribution(iml)
		ratios[i] = clampRatio(s.Sample(mean, cov))
	}
	return ratios
}

func clampRatio(r float64) float64 {
	switch {
	case r < 0 || math.IsNaN(r):
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}

// Model maps asset taxonomies to vulnerability functions.
type Model map[string]*Function

// Lookup returns the function registered for taxonomy.
func (m Model) Lookup(taxonomy string) (*Function, bool) {
	f, ok := m[taxonomy]
	return f, ok
}

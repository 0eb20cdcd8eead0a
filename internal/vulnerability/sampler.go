package vulnerability

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// Family is the probability distribution used to sample loss ratios.
type Family int

const (
	LogNormal Family = iota + 1
	Beta
)

// ParseFamily accepts the table tags "LN" and "BT" as well as the spelled-out names.
func ParseFamily(tag string) (Family, error) {
	switch strings.ToUpper(strings.TrimSpace(tag)) {
	case "LN", "LOGNORMAL":
		return LogNormal, nil
	case "BT", "BETA":
		return Beta, nil
	default:
		return 0, fmt.Errorf("%w: unknown distribution family %q", ErrInvalidVulnerabilityData, tag)
	}
}

func (f Family) String() string {
	switch f {
	case LogNormal:
		return "LN"
	case Beta:
		return "BT"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

func (f Family) valid() bool {
	return f == LogNormal || f == Beta
}

// Mode selects whether loss ratios are taken at the mean or sampled.
type Mode int

const (
	MeanBased Mode = iota
	SampleBased
)

// ParseMode accepts "mean" and "sample".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mean", "mean_based":
		return MeanBased, nil
	case "sample", "sample_based":
		return SampleBased, nil
	default:
		return 0, fmt.Errorf("unknown sampling mode %q", s)
	}
}

func (m Mode) String() string {
	if m == SampleBased {
		return "sample"
	}
	return "mean"
}

// Sampler turns the loss-ratio moments at one ground-motion value into a loss ratio.
type Sampler interface {
	Sample(mean, cov float64) float64
}

// NewSampler returns the sampler for mode and family. src is only consulted in
// sample-based mode; the same src always yields the same sequence.
func NewSampler(mode Mode, family Family, src rand.Source) Sampler {
	if mode == MeanBased {
		return meanSampler{}
	}
	switch family {
	case Beta:
		return betaSampler{src: src}
	default:
		return lognormalSampler{src: src}
	}
}

type meanSampler struct{}

func (meanSampler) Sample(mean, _ float64) float64 {
	return mean
}

type lognormalSampler struct {
	src rand.Source
}

// Sample maps (mean, cov) to the underlying normal parameters via the log-moment
// transform and draws once.
func (s lognormalSampler) Sample(mean, cov float64) float64 {
	if mean <= 0 || cov == 0 {
		return mean
	}
	variance := math.Log1p(cov * cov)
	dist := distuv.LogNormal{
		Mu:    math.Log(mean) - variance/2,
		Sigma: math.Sqrt(variance),
		Src:   s.src,
	}
	return dist.Rand()
}

type betaSampler struct {
	src rand.Source
}

// Sample matches the first two moments to Beta shape parameters. A zero CoV,
// a boundary mean or moments no Beta can reach degenerate to the mean.
func (s betaSampler) Sample(mean, cov float64) float64 {
	if cov == 0 || mean <= 0 || mean >= 1 {
		return mean
	}
	sd := cov * mean
	k := mean*(1-mean)/(sd*sd) - 1
	if k <= 0 {
		return mean
	}
	dist := distuv.Beta{
		Alpha: mean * k,
		Beta:  (1 - mean) * k,
		Src:   s.src,
	}
	return dist.Rand()
}

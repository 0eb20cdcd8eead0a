// Package eventbased computes probabilistic event-based losses: per-asset loss
// ratio and loss curves from ground-motion fields, conditional loss maps,
// insured variants and the portfolio aggregate curve.
package eventbased

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"github.com/rewired-gh/quakeloss/internal/logger"
	"github.com/rewired-gh/quakeloss/internal/losscurve"
	"github.com/rewired-gh/quakeloss/internal/models"
	"github.com/rewired-gh/quakeloss/internal/vulnerability"
)

// ErrUnknownTaxonomy is returned for an asset whose taxonomy has no
// vulnerability function in the model.
var ErrUnknownTaxonomy = errors.New("no vulnerability function for taxonomy")

// Config controls a calculation run.
type Config struct {
	// ConditionalLossPoEs are the probabilities the loss map is read at.
	ConditionalLossPoEs []float64

	// Insured enables insured curves for assets that carry a policy.
	Insured bool

	Mode vulnerability.Mode

	// Seed drives sample-based loss ratios. Each asset derives its own stream.
	Seed uint64

	// CurveResolution is 0 for one curve point per distinct loss, or the
	// number of evenly spaced probabilities to resample curves onto.
	CurveResolution int

	Workers int

	// AggregateBins, when positive, bins aggregate losses before ranking.
	AggregateBins int
}

// DefaultConfig returns mean-based sampling with the loss map at 0.5 and
// curves resampled onto 50 probabilities.
func DefaultConfig() Config {
	return Config{
		ConditionalLossPoEs: []float64{0.5},
		Mode:                vulnerability.MeanBased,
		Seed:                42,
		CurveResolution:     50,
		Workers:             1,
	}
}

// Calculator runs the event-based loss calculation for one run. It owns the
// aggregate accumulator shared by every asset it processes.
type Calculator struct {
	model     vulnerability.Model
	config    Config
	aggregate *Accumulator
}

// New returns a calculator over model. Fewer than one worker means one.
func New(model vulnerability.Model, config Config) *Calculator {
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &Calculator{
		model:     model,
		config:    config,
		aggregate: NewAccumulator(),
	}
}

// ComputeAsset derives the asset's loss ratio curve, loss curve and
// conditional losses from its ground-motion field, and adds its per-event
// losses to the aggregate.
//
// An invalid conditional-loss target does not fail the asset: the output is
// returned together with an error wrapping losscurve.ErrInvalidProbability.
// Any other error returns a nil output and leaves the aggregate untouched.
func (c *Calculator) ComputeAsset(asset models.Asset, gmf models.GroundMotionField) (*models.AssetOutput, error) {
	if err := asset.Validate(); err != nil {
		return nil, fmt.Errorf("invalid asset %q: %w", asset.ID, err)
	}
	if err := gmf.Validate(); err != nil {
		return nil, fmt.Errorf("asset %s: invalid ground motion field: %w", asset.ID, err)
	}
	fn, ok := c.model.Lookup(asset.Taxonomy)
	if !ok {
		return nil, fmt.Errorf("asset %s: %w %q", asset.ID, ErrUnknownTaxonomy, asset.Taxonomy)
	}

	sampler := vulnerability.NewSampler(c.config.Mode, fn.Family(), c.source(asset.ID))
	ratios := fn.LossRatios(gmf.IMLs, sampler)

	lossRatioCurve, err := losscurve.Build(ratios, gmf.TSES, gmf.TimeSpan, c.config.CurveResolution)
	if err != nil {
		return nil, fmt.Errorf("asset %s: loss ratio curve: %w", asset.ID, err)
	}
	lossCurve := lossRatioCurve.Scale(asset.Value)
	losses := scale(ratios, asset.Value)

	out := &models.AssetOutput{
		Asset:          asset,
		Losses:         losses,
		LossRatioCurve: lossRatioCurve,
		LossCurve:      lossCurve,
	}

	var errs []error
	out.ConditionalLosses, err = losscurve.ConditionalLosses(lossCurve, c.config.ConditionalLossPoEs)
	if err != nil {
		errs = append(errs, err)
	}

	if c.config.Insured && asset.Insured() {
		insured := InsuredLosses(asset, losses)
		insuredRatioCurve, err := losscurve.Build(scale(insured, 1/asset.Value), gmf.TSES, gmf.TimeSpan, c.config.CurveResolution)
		if err != nil {
			return nil, fmt.Errorf("asset %s: insured loss ratio curve: %w", asset.ID, err)
		}
		insuredCurve := insuredRatioCurve.Scale(asset.Value)

		out.InsuredLosses = insured
		out.InsuredLossRatioCurve = &insuredRatioCurve
		out.InsuredLossCurve = &insuredCurve
		out.InsuredConditionalLosses, err = losscurve.ConditionalLosses(insuredCurve, c.config.ConditionalLossPoEs)
		if err != nil {
			errs = append(errs, fmt.Errorf("insured: %w", err))
		}
	}

	c.aggregate.Add(gmf, losses)
	logger.Debug("Asset %s (%s): %d events, %d curve points, max loss %.2f",
		asset.ID, asset.Taxonomy, len(gmf.IMLs), lossCurve.Len(), lossCurve.XValues[lossCurve.Len()-1])

	if len(errs) > 0 {
		return out, fmt.Errorf("asset %s: conditional losses: %w", asset.ID, errors.Join(errs...))
	}
	return out, nil
}

// AggregateLosses returns the indices of the events reported so far, in
// ascending order, and the portfolio loss of each.
func (c *Calculator) AggregateLosses() (eventIDs []int, losses []float64) {
	return c.aggregate.Events()
}

// Reset starts a new calculation run by clearing the aggregate.
func (c *Calculator) Reset() {
	c.aggregate.Reset()
}

// source returns the asset's own random stream so sampled ratios do not depend
// on the order in which assets are processed.
func (c *Calculator) source(assetID string) rand.Source {
	h := fnv.New64a()
	_, _ = h.Write([]byte(assetID))
	return rand.NewPCG(c.config.Seed, h.Sum64())
}

func scale(values []float64, factor float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v * factor
	}
	return out
}

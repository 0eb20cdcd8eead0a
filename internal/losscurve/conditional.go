package losscurve

import (
	"errors"
	"fmt"

	"github.com/rewired-gh/quakeloss/internal/models"
)

var ErrInvalidProbability = errors.New("invalid probability of exceedance")

// ConditionalLoss returns the loss whose probability of exceedance on c is poe,
// interpolating linearly in probability between the bracketing points. On a
// plateau the largest loss at that probability is returned. Probabilities above
// the curve clamp to its smallest loss and below it to its largest.
func ConditionalLoss(c models.Curve, poe float64) (float64, error) {
	if !(poe > 0 && poe <= 1) {
		return 0, fmt.Errorf("%w: %g not in (0, 1]", ErrInvalidProbability, poe)
	}
	if c.Len() == 0 || len(c.YValues) != c.Len() {
		return 0, fmt.Errorf("%w: curve has no points", ErrEmptyObservationSet)
	}

	xs, ys := c.XValues, c.YValues
	for i := range ys {
		if ys[i] >= poe {
			continue
		}
		if i == 0 {
			return xs[0], nil
		}
		x0, y0 := xs[i-1], ys[i-1]
		x1, y1 := xs[i], ys[i]
		return x0 + (poe-y0)*(x1-x0)/(y1-y0), nil
	}
	return xs[len(xs)-1], nil
}

// ConditionalLosses extracts one loss per requested probability. Invalid
// targets are reported in the joined error; the remaining targets are still
// returned.
func ConditionalLosses(c models.Curve, poes []float64) (map[float64]float64, error) {
	losses := make(map[float64]float64, len(poes))
	var errs []error
	for _, poe := range poes {
		loss, err := ConditionalLoss(c, poe)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		losses[poe] = loss
	}
	return losses, errors.Join(errs...)
}

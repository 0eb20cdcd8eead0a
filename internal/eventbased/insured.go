package eventbased

import "github.com/rewired-gh/quakeloss/internal/models"

// InsuredLosses applies the asset's deductible and limit to each ground-up
// loss: min(max(loss - deductible, 0), limit - deductible). Uninsured assets
// get their losses back unchanged.
func InsuredLosses(asset models.Asset, losses []float64) []float64 {
	if !asset.Insured() {
		return losses
	}

	deductible := asset.Insurance.Deductible
	cover := asset.Insurance.Limit - deductible
	insured := make([]float64, len(losses))
	for i, loss := range losses {
		insured[i] = min(max(loss-deductible, 0), cover)
	}
	return insured
}

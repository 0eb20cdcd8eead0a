package eventbased

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/quakeloss/internal/logger"
	"github.com/rewired-gh/quakeloss/internal/models"
	"golang.org/x/sync/errgroup"
)

// Job pairs an asset with the ground-motion field at its site.
type Job struct {
	Asset models.Asset
	GMF   models.GroundMotionField
}

type jobResult struct {
	output *models.AssetOutput
	err    error
}

// Run processes a batch of assets as one calculation run. The aggregate is
// reset first. A failing asset is recorded in the summary and does not stop
// the others; outputs keep the order of jobs.
func (c *Calculator) Run(ctx context.Context, jobs []Job) models.RunSummary {
	summary := models.RunSummary{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}
	c.Reset()
	logger.Info("Starting run %s: %d assets, %d workers, sampling=%s",
		summary.ID, len(jobs), c.config.Workers, c.config.Mode)

	results := make([]jobResult, len(jobs))
	var g errgroup.Group
	g.SetLimit(c.config.Workers)
	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = jobResult{err: fmt.Errorf("asset %s: %w", job.Asset.ID, err)}
				return nil
			}
			out, err := c.ComputeAsset(job.Asset, job.GMF)
			results[i] = jobResult{output: out, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range results {
		if r.output != nil {
			summary.Outputs = append(summary.Outputs, *r.output)
		}
		if r.err != nil {
			logger.Warn("Asset %s failed: %v", jobs[i].Asset.ID, r.err)
			summary.Failures = append(summary.Failures, models.AssetFailure{
				AssetID: jobs[i].Asset.ID,
				Err:     r.err,
			})
		}
	}

	summary.AggregateEventIDs, summary.AggregateLosses = c.AggregateLosses()
	summary.AggregateCurve, summary.AggregateErr = c.aggregateCurve(jobs, results, summary.AggregateLosses)
	if summary.AggregateErr != nil {
		logger.Warn("Aggregate loss curve not built: %v", summary.AggregateErr)
	}

	summary.FinishedAt = time.Now()
	logger.Info("Run %s finished in %v: %d outputs, %d failures",
		summary.ID, summary.FinishedAt.Sub(summary.StartedAt), len(summary.Outputs), len(summary.Failures))
	return summary
}

// aggregateCurve builds the portfolio curve over the successfully processed
// assets, which must share one event set duration and time span.
func (c *Calculator) aggregateCurve(jobs []Job, results []jobResult, losses []float64) (*models.Curve, error) {
	var tses, timeSpan float64
	found := false
	for i, r := range results {
		if r.output == nil {
			continue
		}
		gmf := jobs[i].GMF
		if !found {
			tses, timeSpan, found = gmf.TSES, gmf.TimeSpan, true
			continue
		}
		if gmf.TSES != tses || gmf.TimeSpan != timeSpan {
			return nil, fmt.Errorf("asset %s: event set (TSES %g, time span %g) differs from run (TSES %g, time span %g)",
				jobs[i].Asset.ID, gmf.TSES, gmf.TimeSpan, tses, timeSpan)
		}
	}
	if !found {
		return nil, fmt.Errorf("no asset completed")
	}

	curve, err := AggregateLossCurve([][]float64{losses}, tses, timeSpan, AggregateOptions{
		Bins:       c.config.AggregateBins,
		Resolution: c.config.CurveResolution,
	})
	if err != nil {
		return nil, err
	}
	return &curve, nil
}

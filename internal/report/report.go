// Package report renders a calculation run as a plain-text summary.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rewired-gh/quakeloss/internal/models"
	"github.com/shopspring/decimal"
)

// Losses are shown to cents; probabilities to four places.
const (
	lossPlaces = 2
	poePlaces  = 4
)

// maxCurveRows caps how many aggregate curve points are printed.
const maxCurveRows = 20

// Format renders the run's loss map, aggregate curve and failures.
func Format(summary *models.RunSummary) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Run %s\n", summary.ID)
	fmt.Fprintf(&buf, "Duration: %v\n", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(&buf, "Assets: %d computed, %d failed\n", len(summary.Outputs), len(summary.Failures))

	if len(summary.Outputs) > 0 {
		buf.WriteString("\nLoss map\n")
		tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "asset\ttaxonomy\tvalue\tpoe\tloss\tinsured loss\t")
		for _, out := range summary.Outputs {
			for _, poe := range sortedPoEs(out.ConditionalLosses) {
				insured := "-"
				if loss, ok := out.InsuredConditionalLosses[poe]; ok {
					insured = money(loss)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
					out.Asset.ID, out.Asset.Taxonomy, money(out.Asset.Value),
					probability(poe), money(out.ConditionalLosses[poe]), insured)
			}
		}
		_ = tw.Flush()
	}

	switch {
	case summary.AggregateCurve != nil:
		c := summary.AggregateCurve
		fmt.Fprintf(&buf, "\nAggregate loss curve (%d points)\n", c.Len())
		tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "loss\tpoe\t")
		for _, i := range curveRows(c.Len()) {
			fmt.Fprintf(tw, "%s\t%s\t\n", money(c.XValues[i]), probability(c.YValues[i]))
		}
		_ = tw.Flush()
	case summary.AggregateErr != nil:
		fmt.Fprintf(&buf, "\nAggregate loss curve unavailable: %v\n", summary.AggregateErr)
	}

	if len(summary.Failures) > 0 {
		buf.WriteString("\nFailures\n")
		for _, f := range summary.Failures {
			fmt.Fprintf(&buf, "  %s: %v\n", f.AssetID, f.Err)
		}
	}

	return buf.String()
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(lossPlaces)
}

func probability(p float64) string {
	return decimal.NewFromFloat(p).StringFixed(poePlaces)
}

func sortedPoEs(m map[float64]float64) []float64 {
	poes := make([]float64, 0, len(m))
	for poe := range m {
		poes = append(poes, poe)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(poes)))
	return poes
}

// curveRows picks at most maxCurveRows evenly spread indices, always keeping
// the first and last point.
func curveRows(n int) []int {
	if n <= maxCurveRows {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	rows := make([]int, maxCurveRows)
	for i := range rows {
		rows[i] = i * (n - 1) / (maxCurveRows - 1)
	}
	return rows
}

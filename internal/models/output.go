package models

import (
	"time"
)

type AssetOutput struct {
	Asset Asset

	Losses            []float64
	LossRatioCurve    Curve
	LossCurve         Curve
	ConditionalLosses map[float64]float64

	InsuredLosses            []float64
	InsuredLossRatioCurve    *Curve
	InsuredLossCurve         *Curve
	InsuredConditionalLosses map[float64]float64
}

type AssetFailure struct {
	AssetID string
	Err     error
}

type RunSummary struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time

	Outputs  []AssetOutput
	Failures []AssetFailure

	// AggregateLosses[i] is the portfolio loss of event AggregateEventIDs[i].
	AggregateEventIDs []int
	AggregateLosses   []float64
	AggregateCurve    *Curve
	AggregateErr      error
}

// Package models defines the core domain entities: exposed assets, ground-motion
// fields, exceedance curves and per-asset calculation outputs.
package models

import (
	"errors"
	"math"
)

// Insurance holds the policy terms applied to an asset's ground-up losses.
type Insurance struct {
	Deductible float64 `json:"deductible" yaml:"deductible"`
	Limit      float64 `json:"limit" yaml:"limit"`
}

// Asset is a single exposed element of the portfolio.
// Assets are never mutated by calculators.
type Asset struct {
	ID        string     `json:"id" yaml:"id"`
	Taxonomy  string     `json:"taxonomy" yaml:"taxonomy"`
	Value     float64    `json:"value" yaml:"value"`
	Insurance *Insurance `json:"insurance,omitempty" yaml:"insurance,omitempty"`
}

// Insured reports whether the asset carries deductible and limit terms.
func (a Asset) Insured() bool {
	return a.Insurance != nil
}

// Validate checks asset field constraints.
func (a *Asset) Validate() error {
	if a.ID == "" {
		return errors.New("asset ID must not be empty")
	}
	if a.Taxonomy == "" {
		return errors.New("asset taxonomy must not be empty")
	}
	if a.Value <= 0 || math.IsInf(a.Value, 0) || math.IsNaN(a.Value) {
		return errors.New("asset value must be a positive finite number")
	}
	if a.Insurance != nil {
		if a.Insurance.Deductible < 0 {
			return errors.New("deductible must not be negative")
		}
		if a.Insurance.Limit < a.Insurance.Deductible {
			return errors.New("insurance limit must be >= deductible")
		}
	}
	return nil
}

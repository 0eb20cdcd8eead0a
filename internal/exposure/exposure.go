// Package exposure reads the calculation inputs (assets, vulnerability
// functions and per-site ground-motion fields) from a YAML document.
package exposure

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/rewired-gh/quakeloss/internal/eventbased"
	"github.com/rewired-gh/quakeloss/internal/logger"
	"github.com/rewired-gh/quakeloss/internal/models"
	"github.com/rewired-gh/quakeloss/internal/vulnerability"
	"gopkg.in/yaml.v3"
)

// Document is the on-disk layout of an exposure file.
type Document struct {
	// TSES and TimeSpan apply to every field that does not set its own.
	TSES          float64                             `yaml:"tses"`
	TimeSpan      float64                             `yaml:"time_span"`
	Vulnerability []FunctionEntry                     `yaml:"vulnerability"`
	Assets        []models.Asset                      `yaml:"assets"`
	GroundMotion  map[string]models.GroundMotionField `yaml:"ground_motion"`
}

// FunctionEntry is one vulnerability function table.
type FunctionEntry struct {
	Taxonomy       string    `yaml:"taxonomy"`
	Family         string    `yaml:"family"`
	IMLs           []float64 `yaml:"imls"`
	MeanLossRatios []float64 `yaml:"mean_loss_ratios"`
	CoVs           []float64 `yaml:"covs"`
}

// Portfolio is a document resolved into calculator inputs.
type Portfolio struct {
	Model vulnerability.Model
	Jobs  []eventbased.Job
	// Rejected holds the taxonomies whose tables were malformed. Assets of a
	// rejected taxonomy still produce jobs and fail individually in the run.
	Rejected map[string]error
}

// Load reads and resolves the exposure document at path.
func Load(path string) (*Portfolio, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read exposure: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("exposure %s: %w", path, err)
	}
	return p, nil
}

// Parse resolves an exposure document held in memory.
func Parse(data []byte) (*Portfolio, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse exposure: %w", err)
	}
	return doc.Resolve()
}

// Resolve builds the vulnerability model and one job per asset. Structural
// problems (duplicate ids, an asset without a ground-motion field) fail the
// whole document; a malformed vulnerability table only rejects its taxonomy.
func (d *Document) Resolve() (*Portfolio, error) {
	p := &Portfolio{
		Model:    make(vulnerability.Model, len(d.Vulnerability)),
		Rejected: make(map[string]error),
	}

	for _, entry := range d.Vulnerability {
		if entry.Taxonomy == "" {
			return nil, errors.New("vulnerability function without taxonomy")
		}
		if _, dup := p.Model[entry.Taxonomy]; dup {
			return nil, fmt.Errorf("duplicate vulnerability function for taxonomy %q", entry.Taxonomy)
		}
		if _, dup := p.Rejected[entry.Taxonomy]; dup {
			return nil, fmt.Errorf("duplicate vulnerability function for taxonomy %q", entry.Taxonomy)
		}
		fn, err := entry.function()
		if err != nil {
			logger.Warn("Rejecting vulnerability function %s: %v", entry.Taxonomy, err)
			p.Rejected[entry.Taxonomy] = err
			continue
		}
		p.Model[entry.Taxonomy] = fn
	}

	seen := make(map[string]bool, len(d.Assets))
	for _, asset := range d.Assets {
		if asset.ID == "" {
			return nil, errors.New("asset without id")
		}
		if seen[asset.ID] {
			return nil, fmt.Errorf("duplicate asset id %q", asset.ID)
		}
		seen[asset.ID] = true

		gmf, ok := d.GroundMotion[asset.ID]
		if !ok {
			return nil, fmt.Errorf("asset %s has no ground motion field", asset.ID)
		}
		if gmf.TSES == 0 {
			gmf.TSES = d.TSES
		}
		if gmf.TimeSpan == 0 {
			gmf.TimeSpan = d.TimeSpan
		}
		p.Jobs = append(p.Jobs, eventbased.Job{Asset: asset, GMF: gmf})
	}

	var orphans []string
	for id := range d.GroundMotion {
		if !seen[id] {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) > 0 {
		sort.Strings(orphans)
		logger.Warn("Ignoring ground motion fields for unknown assets: %v", orphans)
	}

	logger.Info("Loaded exposure: %d assets, %d vulnerability functions, %d rejected",
		len(p.Jobs), len(p.Model), len(p.Rejected))
	return p, nil
}

func (e FunctionEntry) function() (*vulnerability.Function, error) {
	family, err := vulnerability.ParseFamily(e.Family)
	if err != nil {
		return nil, err
	}
	return vulnerability.NewFunction(e.IMLs, e.MeanLossRatios, e.CoVs, family)
}

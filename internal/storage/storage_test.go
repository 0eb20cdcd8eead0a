package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rewired-gh/quakeloss/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(100, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testSummary(id string, startedAt time.Time) *models.RunSummary {
	lossRatio := models.Curve{XValues: []float64{0, 0.1, 0.2}, YValues: []float64{1, 0.86, 0.63}}
	insuredRatio := models.Curve{XValues: []float64{0, 0.01}, YValues: []float64{1, 0.63}}
	insured := insuredRatio.Scale(3000)
	aggregate := models.Curve{XValues: []float64{0, 500, 900}, YValues: []float64{1, 0.86, 0.63}}

	return &models.RunSummary{
		ID:         id,
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(time.Second),
		Outputs: []models.AssetOutput{
			{
				Asset:                    models.Asset{ID: "a1", Taxonomy: "RM", Value: 3000},
				Losses:                   []float64{300, 600},
				LossRatioCurve:           lossRatio,
				LossCurve:                lossRatio.Scale(3000),
				ConditionalLosses:        map[float64]float64{0.5: 173.30456, 0.1: 600},
				InsuredLossRatioCurve:    &insuredRatio,
				InsuredLossCurve:         &insured,
				InsuredConditionalLosses: map[float64]float64{0.5: 30.005},
			},
			{
				Asset:             models.Asset{ID: "a2", Taxonomy: "RC", Value: 2000},
				LossRatioCurve:    lossRatio,
				LossCurve:         lossRatio.Scale(2000),
				ConditionalLosses: map[float64]float64{0.5: 120},
			},
		},
		Failures: []models.AssetFailure{
			{AssetID: "bad", Err: errors.New("no vulnerability function for taxonomy \"W\"")},
		},
		AggregateCurve: &aggregate,
	}
}

func TestStorage_SaveAndGetRun(t *testing.T) {
	s := newTestStorage(t)
	started := time.Now()
	if err := s.SaveRun(testSummary("run-1", started)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	r, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r.Assets != 2 || r.Failures != 1 {
		t.Errorf("got %d assets and %d failures", r.Assets, r.Failures)
	}
	if !r.StartedAt.Equal(time.Unix(0, started.UnixNano())) {
		t.Errorf("started at %v, want %v", r.StartedAt, started)
	}
	if r.AggregateError != "" {
		t.Errorf("unexpected aggregate error %q", r.AggregateError)
	}

	failures, err := s.GetFailures("run-1")
	if err != nil {
		t.Fatalf("GetFailures: %v", err)
	}
	if len(failures) != 1 || failures[0].AssetID != "bad" {
		t.Errorf("unexpected failures: %+v", failures)
	}
}

func TestStorage_GetRun_NotFound(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.GetRun("nonexistent"); err == nil {
		t.Error("expected error for missing run")
	}
}

func TestStorage_SaveRun_EmptyID(t *testing.T) {
	s := newTestStorage(t)
	if err := s.SaveRun(&models.RunSummary{}); err == nil {
		t.Error("expected error for run without ID")
	}
}

func TestStorage_SaveRun_Duplicate(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()
	if err := s.SaveRun(testSummary("run-1", now)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.SaveRun(testSummary("run-1", now)); err == nil {
		t.Error("expected error for duplicate run ID")
	}
	runs, _ := s.ListRuns(10)
	if len(runs) != 1 {
		t.Errorf("failed save left partial state: %d runs", len(runs))
	}
}

func TestStorage_GetLossMap(t *testing.T) {
	s := newTestStorage(t)
	if err := s.SaveRun(testSummary("run-1", time.Now())); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	entries, err := s.GetLossMap("run-1")
	if err != nil {
		t.Fatalf("GetLossMap: %v", err)
	}

	want := []struct {
		asset   string
		poe     float64
		loss    string
		insured bool
	}{
		{"a1", 0.1, "600", false},
		{"a1", 0.5, "173.3", false},
		{"a1", 0.5, "30.01", true},
		{"a2", 0.5, "120", false},
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(entries), len(want), entries)
	}
	for i, w := range want {
		e := entries[i]
		if e.AssetID != w.asset || e.PoE != w.poe || e.Insured != w.insured {
			t.Errorf("entry %d = %+v, want %+v", i, e, w)
		}
		if e.Loss.String() != w.loss {
			t.Errorf("entry %d loss = %s, want %s", i, e.Loss.String(), w.loss)
		}
	}
}

func TestStorage_GetLossCurve(t *testing.T) {
	s := newTestStorage(t)
	summary := testSummary("run-1", time.Now())
	if err := s.SaveRun(summary); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	c, err := s.GetLossCurve("run-1", "a1", false)
	if err != nil {
		t.Fatalf("GetLossCurve: %v", err)
	}
	want := summary.Outputs[0].LossCurve
	if c.Len() != want.Len() {
		t.Fatalf("got %d points, want %d", c.Len(), want.Len())
	}
	for i := range want.XValues {
		if c.XValues[i] != want.XValues[i] || c.YValues[i] != want.YValues[i] {
			t.Errorf("point %d = (%g, %g), want (%g, %g)", i, c.XValues[i], c.YValues[i], want.XValues[i], want.YValues[i])
		}
	}

	insured, err := s.GetLossCurve("run-1", "a1", true)
	if err != nil || insured == nil || insured.XValues[1] != 30 {
		t.Errorf("insured curve = %+v, err %v", insured, err)
	}
	none, err := s.GetLossCurve("run-1", "a2", true)
	if err != nil || none != nil {
		t.Errorf("expected no insured curve for a2, got %+v, err %v", none, err)
	}
	if _, err := s.GetLossCurve("run-1", "a9", false); err == nil {
		t.Error("expected error for unknown asset")
	}
}

func TestStorage_GetAggregateCurve(t *testing.T) {
	s := newTestStorage(t)
	if err := s.SaveRun(testSummary("run-1", time.Now())); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	c, err := s.GetAggregateCurve("run-1")
	if err != nil {
		t.Fatalf("GetAggregateCurve: %v", err)
	}
	if c == nil || c.Len() != 3 || c.XValues[2] != 900 {
		t.Errorf("unexpected aggregate curve: %+v", c)
	}

	failed := testSummary("run-2", time.Now())
	failed.AggregateCurve = nil
	failed.AggregateErr = errors.New("event sets differ")
	if err := s.SaveRun(failed); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	c, err = s.GetAggregateCurve("run-2")
	if err != nil || c != nil {
		t.Errorf("expected no aggregate curve, got %+v, err %v", c, err)
	}
	r, _ := s.GetRun("run-2")
	if r.AggregateError != "event sets differ" {
		t.Errorf("aggregate error = %q", r.AggregateError)
	}
}

func TestStorage_ListRuns(t *testing.T) {
	s := newTestStorage(t)
	base := time.Now()
	for i := 0; i < 3; i++ {
		if err := s.SaveRun(testSummary(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("SaveRun %d: %v", i, err)
		}
	}

	runs, err := s.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" || runs[1].ID != "run-1" {
		t.Errorf("unexpected runs: %+v", runs)
	}
}

func TestStorage_RotateRuns(t *testing.T) {
	s, err := New(5, ":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	base := time.Now()
	for i := 0; i < 10; i++ {
		if err := s.SaveRun(testSummary(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("SaveRun %d: %v", i, err)
		}
	}
	if err := s.RotateRuns(); err != nil {
		t.Fatalf("RotateRuns: %v", err)
	}

	runs, _ := s.ListRuns(100)
	if len(runs) != 5 {
		t.Errorf("got %d runs after rotation, want 5", len(runs))
	}
	if _, err := s.GetRun("run-0"); err == nil {
		t.Error("oldest run survived rotation")
	}
	entries, _ := s.GetLossMap("run-0")
	if len(entries) != 0 {
		t.Errorf("loss map of rotated run not removed: %d entries", len(entries))
	}
}

func TestStorage_DefaultPath(t *testing.T) {
	s, err := New(10, "")
	if err != nil {
		t.Fatalf("New with empty path: %v", err)
	}
	defer s.Close()
}

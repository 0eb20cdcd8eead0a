// Package storage provides SQLite-backed persistence for calculation runs,
// asset curves, loss maps and aggregate curves.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rewired-gh/quakeloss/internal/models"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Monetary amounts are stored rounded to this many decimal places.
const lossPlaces = 2

// RunRecord is the stored header of one calculation run.
type RunRecord struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	Assets         int
	Failures       int
	AggregateError string
}

// LossMapEntry is one conditional loss of one asset.
type LossMapEntry struct {
	AssetID string
	PoE     float64
	Loss    decimal.Decimal
	Insured bool
}

// FailureRecord is a stored per-asset failure.
type FailureRecord struct {
	AssetID string
	Error   string
}

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db      *sql.DB
	maxRuns int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/quakeloss/results.db.
func New(maxRuns int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "quakeloss", "results.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db, maxRuns: maxRuns}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id              TEXT PRIMARY KEY,
			started_at      INTEGER NOT NULL,
			finished_at     INTEGER NOT NULL,
			assets          INTEGER NOT NULL,
			failures        INTEGER NOT NULL,
			aggregate_error TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS asset_outputs (
			run_id                   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			asset_id                 TEXT NOT NULL,
			taxonomy                 TEXT NOT NULL,
			value                    REAL NOT NULL,
			loss_ratio_curve         TEXT NOT NULL,
			loss_curve               TEXT NOT NULL,
			insured_loss_ratio_curve TEXT,
			insured_loss_curve       TEXT,
			PRIMARY KEY (run_id, asset_id)
		)`,
		`CREATE TABLE IF NOT EXISTS loss_maps (
			run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			asset_id TEXT NOT NULL,
			poe      REAL NOT NULL,
			insured  INTEGER NOT NULL,
			loss     TEXT NOT NULL,
			PRIMARY KEY (run_id, asset_id, poe, insured)
		)`,
		`CREATE TABLE IF NOT EXISTS aggregate_curves (
			run_id TEXT PRIMARY KEY REFERENCES runs(id) ON DELETE CASCADE,
			curve  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_failures (
			run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			asset_id TEXT NOT NULL,
			error    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun stores a run summary with its asset curves, loss maps, failures and
// aggregate curve, then trims the oldest runs beyond the retention cap.
func (s *Storage) SaveRun(summary *models.RunSummary) error {
	if summary.ID == "" {
		return fmt.Errorf("invalid run: empty ID")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var aggregateErr sql.NullString
	if summary.AggregateErr != nil {
		aggregateErr = sql.NullString{String: summary.AggregateErr.Error(), Valid: true}
	}
	_, err = tx.Exec(`
		INSERT INTO runs (id, started_at, finished_at, assets, failures, aggregate_error)
		VALUES (?,?,?,?,?,?)`,
		summary.ID, summary.StartedAt.UnixNano(), summary.FinishedAt.UnixNano(),
		len(summary.Outputs), len(summary.Failures), aggregateErr,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i := range summary.Outputs {
		if err := insertOutput(tx, summary.ID, &summary.Outputs[i]); err != nil {
			return err
		}
	}

	for _, f := range summary.Failures {
		if _, err := tx.Exec(`INSERT INTO run_failures (run_id, asset_id, error) VALUES (?,?,?)`,
			summary.ID, f.AssetID, f.Err.Error()); err != nil {
			return fmt.Errorf("failed to insert failure: %w", err)
		}
	}

	if summary.AggregateCurve != nil {
		curve, err := json.Marshal(summary.AggregateCurve)
		if err != nil {
			return fmt.Errorf("failed to marshal aggregate curve: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO aggregate_curves (run_id, curve) VALUES (?,?)`,
			summary.ID, string(curve)); err != nil {
			return fmt.Errorf("failed to insert aggregate curve: %w", err)
		}
	}

	if _, err = tx.Exec(`
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC LIMIT ?
		)`, s.maxRuns); err != nil {
		return fmt.Errorf("failed to enforce run cap: %w", err)
	}

	return tx.Commit()
}

func insertOutput(tx *sql.Tx, runID string, out *models.AssetOutput) error {
	lossRatioCurve, err := json.Marshal(out.LossRatioCurve)
	if err != nil {
		return fmt.Errorf("failed to marshal loss ratio curve: %w", err)
	}
	lossCurve, err := json.Marshal(out.LossCurve)
	if err != nil {
		return fmt.Errorf("failed to marshal loss curve: %w", err)
	}
	insuredRatio, err := marshalOptional(out.InsuredLossRatioCurve)
	if err != nil {
		return fmt.Errorf("failed to marshal insured loss ratio curve: %w", err)
	}
	insured, err := marshalOptional(out.InsuredLossCurve)
	if err != nil {
		return fmt.Errorf("failed to marshal insured loss curve: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO asset_outputs
			(run_id, asset_id, taxonomy, value, loss_ratio_curve, loss_curve,
			 insured_loss_ratio_curve, insured_loss_curve)
		VALUES (?,?,?,?,?,?,?,?)`,
		runID, out.Asset.ID, out.Asset.Taxonomy, out.Asset.Value,
		string(lossRatioCurve), string(lossCurve), insuredRatio, insured,
	)
	if err != nil {
		return fmt.Errorf("failed to insert output for asset %s: %w", out.Asset.ID, err)
	}

	if err := insertLossMap(tx, runID, out.Asset.ID, out.ConditionalLosses, false); err != nil {
		return err
	}
	return insertLossMap(tx, runID, out.Asset.ID, out.InsuredConditionalLosses, true)
}

func insertLossMap(tx *sql.Tx, runID, assetID string, losses map[float64]float64, insured bool) error {
	poes := make([]float64, 0, len(losses))
	for poe := range losses {
		poes = append(poes, poe)
	}
	sort.Float64s(poes)
	for _, poe := range poes {
		loss := decimal.NewFromFloat(losses[poe]).StringFixed(lossPlaces)
		if _, err := tx.Exec(`
			INSERT INTO loss_maps (run_id, asset_id, poe, insured, loss)
			VALUES (?,?,?,?,?)`,
			runID, assetID, poe, boolToInt(insured), loss); err != nil {
			return fmt.Errorf("failed to insert loss map for asset %s: %w", assetID, err)
		}
	}
	return nil
}

func marshalOptional(c *models.Curve) (sql.NullString, error) {
	if c == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func (s *Storage) GetRun(id string) (*RunRecord, error) {
	row := s.db.QueryRow(`SELECT `+runCols+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Storage) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(`SELECT `+runCols+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetLossMap returns every stored conditional loss of a run ordered by asset,
// then ground-up before insured, then probability.
func (s *Storage) GetLossMap(runID string) ([]LossMapEntry, error) {
	rows, err := s.db.Query(`
		SELECT asset_id, poe, insured, loss FROM loss_maps
		WHERE run_id = ? ORDER BY asset_id, insured, poe`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query loss map: %w", err)
	}
	defer rows.Close()

	var entries []LossMapEntry
	for rows.Next() {
		var e LossMapEntry
		var insured int
		var loss string
		if err := rows.Scan(&e.AssetID, &e.PoE, &insured, &loss); err != nil {
			return nil, fmt.Errorf("failed to scan loss map: %w", err)
		}
		e.Loss, err = decimal.NewFromString(loss)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored loss %q: %w", loss, err)
		}
		e.Insured = insured != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetLossCurve returns an asset's stored loss curve, or its insured loss
// curve when insured is set. A run without insured curves for the asset
// returns nil.
func (s *Storage) GetLossCurve(runID, assetID string, insured bool) (*models.Curve, error) {
	col := "loss_curve"
	if insured {
		col = "insured_loss_curve"
	}
	var raw sql.NullString
	err := s.db.QueryRow(`SELECT `+col+` FROM asset_outputs WHERE run_id = ? AND asset_id = ?`,
		runID, assetID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("asset %s not found in run %s", assetID, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loss curve: %w", err)
	}
	if !raw.Valid {
		return nil, nil
	}
	return unmarshalCurve(raw.String)
}

// GetAggregateCurve returns the run's portfolio curve, or nil when the run
// produced none.
func (s *Storage) GetAggregateCurve(runID string) (*models.Curve, error) {
	var raw string
	err := s.db.QueryRow(`SELECT curve FROM aggregate_curves WHERE run_id = ?`, runID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate curve: %w", err)
	}
	return unmarshalCurve(raw)
}

func (s *Storage) GetFailures(runID string) ([]FailureRecord, error) {
	rows, err := s.db.Query(`SELECT asset_id, error FROM run_failures WHERE run_id = ? ORDER BY asset_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var failures []FailureRecord
	for rows.Next() {
		var f FailureRecord
		if err := rows.Scan(&f.AssetID, &f.Error); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// RotateRuns keeps at most maxRuns newest runs by start time.
// Cascading deletes remove their outputs, loss maps and curves.
func (s *Storage) RotateRuns() error {
	_, err := s.db.Exec(`
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC LIMIT ?
		)`, s.maxRuns)
	if err != nil {
		return fmt.Errorf("failed to rotate runs: %w", err)
	}
	return nil
}

const runCols = `id, started_at, finished_at, assets, failures, aggregate_error`

func scanRun(scan func(...any) error) (*RunRecord, error) {
	var r RunRecord
	var startedAtNano, finishedAtNano int64
	var aggregateErr sql.NullString
	err := scan(&r.ID, &startedAtNano, &finishedAtNano, &r.Assets, &r.Failures, &aggregateErr)
	if err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, startedAtNano)
	r.FinishedAt = time.Unix(0, finishedAtNano)
	r.AggregateError = aggregateErr.String
	return &r, nil
}

func unmarshalCurve(raw string) (*models.Curve, error) {
	var c models.Curve
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal curve: %w", err)
	}
	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

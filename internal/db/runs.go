package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/eqlayer/internal/eql"
)

// ErrNotFound is returned when a run id is not in the catalog.
var ErrNotFound = errors.New("run not found")

// FitRun is one catalogued fit.
type FitRun struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Kernel        string    `json:"kernel"`
	Layout        string    `json:"layout"`
	RelativeDepth float64   `json:"relative_depth"`
	Damping       float64   `json:"damping"`
	Observations  int       `json:"observations"`
	Sources       int       `json:"sources"`
	Condition     float64   `json:"condition"`
	ResidualNorm  float64   `json:"residual_norm"`
	Score         *float64  `json:"score,omitempty"` // nil until SetFitScore
}

// GridField records one output field of a grid run.
type GridField struct {
	Name   string  `json:"name"`
	Upward float64 `json:"upward"`
}

// GridRun is one catalogued grid.
type GridRun struct {
	ID              string      `json:"id"`
	FitID           string      `json:"fit_id"`
	CreatedAt       time.Time   `json:"created_at"`
	Rows            int         `json:"rows"`
	Cols            int         `json:"cols"`
	SpacingNorthing float64     `json:"spacing_northing"`
	SpacingEasting  float64     `json:"spacing_easting"`
	Region          eql.Region  `json:"region"`
	Fields          []GridField `json:"fields"`
}

// RecordFit stores the provenance of a fitted layer under the layer's id.
func (db *DB) RecordFit(layer *eql.Layer) (*FitRun, error) {
	if layer == nil {
		return nil, fmt.Errorf("cannot record a nil layer: %w", eql.ErrNotFitted)
	}
	diag := layer.Diagnostics()
	run := &FitRun{
		ID:            layer.ID().String(),
		CreatedAt:     layer.FittedAt(),
		Kernel:        layer.KernelName(),
		Layout:        layer.LayoutName(),
		RelativeDepth: layer.RelativeDepth(),
		Damping:       layer.Damping(),
		Observations:  diag.Observations,
		Sources:       diag.Sources,
		Condition:     diag.Condition,
		ResidualNorm:  diag.ResidualNorm,
	}

	_, err := db.Exec(`
		INSERT INTO fit_runs (id, created_at, kernel, layout, relative_depth, damping,
			observations, sources, condition, residual_norm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UnixNano(), run.Kernel, run.Layout, run.RelativeDepth, run.Damping,
		run.Observations, run.Sources, run.Condition, run.ResidualNorm)
	if err != nil {
		return nil, fmt.Errorf("failed to insert fit run: %w", err)
	}
	return run, nil
}

// SetFitScore attaches an R² score to a recorded fit.
func (db *DB) SetFitScore(fitID string, score float64) error {
	res, err := db.Exec(`UPDATE fit_runs SET score = ? WHERE id = ?`, score, fitID)
	if err != nil {
		return fmt.Errorf("failed to update fit score: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update fit score: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("fit %s: %w", fitID, ErrNotFound)
	}
	return nil
}

// RecordGrid stores the provenance of a grid. The fit named by the grid's
// LayerID must already be recorded.
func (db *DB) RecordGrid(g *eql.GridResult) (*GridRun, error) {
	if g == nil {
		return nil, fmt.Errorf("cannot record a nil grid")
	}
	rows, cols := g.Dims()
	run := &GridRun{
		ID:              uuid.NewString(),
		FitID:           g.Attrs.LayerID,
		CreatedAt:       db.clock.Now(),
		Rows:            rows,
		Cols:            cols,
		SpacingNorthing: g.Attrs.Spacing[0],
		SpacingEasting:  g.Attrs.Spacing[1],
		Region:          g.Attrs.Region,
		Fields:          make([]GridField, len(g.Fields)),
	}
	for i, f := range g.Fields {
		run.Fields[i] = GridField{Name: f.Name, Upward: f.Upward}
	}
	fields, err := json.Marshal(run.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode grid fields: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO grid_runs (id, fit_id, created_at, n_rows, n_cols,
			spacing_northing, spacing_easting, west, east, south, north, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.FitID, run.CreatedAt.UnixNano(), run.Rows, run.Cols,
		run.SpacingNorthing, run.SpacingEasting,
		run.Region.West, run.Region.East, run.Region.South, run.Region.North, string(fields))
	if err != nil {
		return nil, fmt.Errorf("failed to insert grid run: %w", err)
	}
	return run, nil
}

// FitRuns returns the most recent fits, newest first. limit <= 0 returns all.
func (db *DB) FitRuns(limit int) ([]FitRun, error) {
	query := `
		SELECT id, created_at, kernel, layout, relative_depth, damping,
			observations, sources, condition, residual_norm, score
		FROM fit_runs
		ORDER BY created_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fit runs: %w", err)
	}
	defer rows.Close()

	var runs []FitRun
	for rows.Next() {
		var (
			r       FitRun
			created int64
			score   sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &created, &r.Kernel, &r.Layout, &r.RelativeDepth, &r.Damping,
			&r.Observations, &r.Sources, &r.Condition, &r.ResidualNorm, &score); err != nil {
			return nil, fmt.Errorf("failed to scan fit run: %w", err)
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		if score.Valid {
			s := score.Float64
			r.Score = &s
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// FitRun looks up a single fit by id.
func (db *DB) FitRun(id string) (*FitRun, error) {
	var (
		r       FitRun
		created int64
		score   sql.NullFloat64
	)
	err := db.QueryRow(`
		SELECT id, created_at, kernel, layout, relative_depth, damping,
			observations, sources, condition, residual_norm, score
		FROM fit_runs WHERE id = ?`, id).
		Scan(&r.ID, &created, &r.Kernel, &r.Layout, &r.RelativeDepth, &r.Damping,
			&r.Observations, &r.Sources, &r.Condition, &r.ResidualNorm, &score)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fit %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query fit run: %w", err)
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	if score.Valid {
		s := score.Float64
		r.Score = &s
	}
	return &r, nil
}

// GridRuns returns the grids produced from a fit, oldest first.
func (db *DB) GridRuns(fitID string) ([]GridRun, error) {
	rows, err := db.Query(`
		SELECT id, fit_id, created_at, n_rows, n_cols, spacing_northing, spacing_easting,
			west, east, south, north, fields
		FROM grid_runs
		WHERE fit_id = ?
		ORDER BY created_at, id`, fitID)
	if err != nil {
		return nil, fmt.Errorf("failed to query grid runs: %w", err)
	}
	defer rows.Close()

	var runs []GridRun
	for rows.Next() {
		var (
			r       GridRun
			created int64
			fields  string
		)
		if err := rows.Scan(&r.ID, &r.FitID, &created, &r.Rows, &r.Cols, &r.SpacingNorthing, &r.SpacingEasting,
			&r.Region.West, &r.Region.East, &r.Region.South, &r.Region.North, &fields); err != nil {
			return nil, fmt.Errorf("failed to scan grid run: %w", err)
		}
		if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
			return nil, fmt.Errorf("grid %s: failed to decode fields: %w", r.ID, err)
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

package db

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/eqlayer/internal/eql"
	"github.com/banshee-data/eqlayer/internal/timeutil"
)

func newTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

// fitLayer fits a small harmonic layer with the clock pinned at `at`.
func fitLayer(t *testing.T, at time.Time, damping float64) *eql.Layer {
	t.Helper()
	pts := []eql.Point{{Easting: 0, Northing: 0, Upward: 10}, {Easting: 100, Northing: 0, Upward: 12}, {Easting: 0, Northing: 100, Upward: 9}, {Easting: 100, Northing: 100, Upward: 11}, {Easting: 50, Northing: 50, Upward: 10}}
	coords := eql.CoordinatesFromPoints(pts)
	obs, err := eql.NewObservations(coords, []float64{1.5, 2.1, 0.7, 1.9, 2.4}, nil)
	require.NoError(t, err)

	e, err := eql.NewEstimator(eql.DefaultConfig().WithRelativeDepth(80).WithDamping(damping),
		eql.WithClock(timeutil.NewFakeClock(at)))
	require.NoError(t, err)
	layer, err := e.Fit(obs)
	require.NoError(t, err)
	return layer
}

func TestOpen_AppliesMigrations(t *testing.T) {
	db, _ := newTestDB(t)
	fsys, err := MigrationsFS()
	require.NoError(t, err)

	version, dirty, err := db.MigrateVersion(fsys)
	require.NoError(t, err)
	assert.False(t, dirty)

	latest, err := LatestMigrationVersion(fsys)
	require.NoError(t, err)
	assert.Equal(t, latest, version)
	assert.Equal(t, uint(1), latest)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestMigrateDownAndUp(t *testing.T) {
	db, _ := newTestDB(t)
	fsys, err := MigrationsFS()
	require.NoError(t, err)

	require.NoError(t, db.MigrateDown(fsys))
	version, _, err := db.MigrateVersion(fsys)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	_, err = db.FitRuns(0)
	assert.Error(t, err, "tables are dropped")

	require.NoError(t, db.MigrateUp(fsys))
	runs, err := db.FitRuns(0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRecordFit(t *testing.T) {
	db, _ := newTestDB(t)
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	older := fitLayer(t, t0, 0)
	newer := fitLayer(t, t0.Add(time.Hour), 1e-3)

	rec, err := db.RecordFit(older)
	require.NoError(t, err)
	assert.Equal(t, older.ID().String(), rec.ID)
	_, err = db.RecordFit(newer)
	require.NoError(t, err)

	runs, err := db.FitRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID().String(), runs[0].ID, "newest first")
	assert.Equal(t, older.ID().String(), runs[1].ID)
	assert.True(t, t0.Equal(runs[1].CreatedAt))
	assert.Equal(t, eql.KernelHarmonic, runs[0].Kernel)
	assert.Equal(t, eql.LayoutRelativeDepth, runs[0].Layout)
	assert.Equal(t, 80.0, runs[0].RelativeDepth)
	assert.Equal(t, 1e-3, runs[0].Damping)
	assert.Equal(t, 5, runs[0].Observations)
	assert.Equal(t, 5, runs[0].Sources)
	assert.Equal(t, newer.Diagnostics().Condition, runs[0].Condition)
	assert.Nil(t, runs[0].Score)

	limited, err := db.FitRuns(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, newer.ID().String(), limited[0].ID)

	_, err = db.RecordFit(older)
	assert.Error(t, err, "fit ids are unique")
	_, err = db.RecordFit(nil)
	assert.ErrorIs(t, err, eql.ErrNotFitted)
}

func TestSetFitScore(t *testing.T) {
	db, _ := newTestDB(t)
	layer := fitLayer(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), 0)
	_, err := db.RecordFit(layer)
	require.NoError(t, err)

	require.NoError(t, db.SetFitScore(layer.ID().String(), 0.987))
	run, err := db.FitRun(layer.ID().String())
	require.NoError(t, err)
	require.NotNil(t, run.Score)
	assert.Equal(t, 0.987, *run.Score)

	assert.ErrorIs(t, db.SetFitScore("missing", 0.5), ErrNotFound)
	_, err = db.FitRun("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordGrid(t *testing.T) {
	db, _ := newTestDB(t)
	at := time.Date(2024, 3, 2, 15, 30, 0, 0, time.UTC)
	db.SetClock(timeutil.NewFakeClock(at))

	layer := fitLayer(t, at.Add(-time.Minute), 0)
	_, err := db.RecordFit(layer)
	require.NoError(t, err)

	g, err := layer.Grid(eql.GridRequest{Spacing: 25, Upward: []float64{10, 60}, DataNames: []string{"field", "field_up"}})
	require.NoError(t, err)
	rec, err := db.RecordGrid(g)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)

	runs, err := db.GridRuns(layer.ID().String())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	got := runs[0]
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, layer.ID().String(), got.FitID)
	assert.True(t, at.Equal(got.CreatedAt))
	assert.Equal(t, 5, got.Rows)
	assert.Equal(t, 5, got.Cols)
	assert.Equal(t, 25.0, got.SpacingNorthing)
	assert.Equal(t, 25.0, got.SpacingEasting)
	assert.Equal(t, eql.Region{West: 0, East: 100, South: 0, North: 100}, got.Region)
	assert.Equal(t, []GridField{{Name: "field", Upward: 10}, {Name: "field_up", Upward: 60}}, got.Fields)

	none, err := db.GridRuns("missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordGrid_RequiresKnownFit(t *testing.T) {
	db, _ := newTestDB(t)
	layer := fitLayer(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), 0)

	g, err := layer.Grid(eql.GridRequest{Shape: [2]int{2, 2}})
	require.NoError(t, err)
	_, err = db.RecordGrid(g)
	assert.Error(t, err, "foreign keys are enforced")
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")
	var out bytes.Buffer

	require.NoError(t, RunMigrateCommand(&out, []string{"status"}, path))
	assert.Contains(t, out.String(), "Current version: 0")
	assert.Contains(t, out.String(), "1 version(s) behind")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"up"}, path))
	assert.Contains(t, out.String(), "up to date")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"down"}, path))
	assert.Contains(t, out.String(), "Current version: 0")

	assert.Error(t, RunMigrateCommand(&out, []string{"sideways"}, path))
	assert.Error(t, RunMigrateCommand(&out, nil, path))
	assert.Error(t, RunMigrateCommand(&out, []string{"force"}, path))
}

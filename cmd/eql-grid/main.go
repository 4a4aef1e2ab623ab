// Command eql-grid fits an equivalent layer to scattered potential-field
// observations and interpolates them onto a regular grid.
//
// Usage:
//
//	eql-grid -data survey.csv -spacing 100 -out grid.csv [-png grid.png] [-html report.html] [-db runs.db] [-metrics run.prom]
//	eql-grid migrate up|down|status|force <version> [-db runs.db]
//
// Flags of the migrate subcommand may appear before or after the action.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/banshee-data/eqlayer/internal/config"
	"github.com/banshee-data/eqlayer/internal/dataset"
	"github.com/banshee-data/eqlayer/internal/db"
	"github.com/banshee-data/eqlayer/internal/eql"
	"github.com/banshee-data/eqlayer/internal/fsutil"
	"github.com/banshee-data/eqlayer/internal/monitoring"
	"github.com/banshee-data/eqlayer/internal/render"
	"github.com/banshee-data/eqlayer/internal/version"
)

const program = "eql-grid"

var errUsage = errors.New("usage error")

// options holds the parsed command line.
type options struct {
	data       string
	dataColumn string
	configPath string
	out        string
	png        string
	html       string
	dbPath     string
	metrics    string
	verbose    bool
	version    bool

	// Estimator overrides, applied only when the flag was given.
	relativeDepth float64
	damping       float64
	kernel        string
	layout        string
	blockSize     float64
	workers       int
	set           map[string]bool

	grid eql.GridRequest
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{set: make(map[string]bool)}
	fs := flag.NewFlagSet(program, flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.data, "data", "", "Observations CSV (easting,northing,upward,value[,weight])")
	fs.StringVar(&o.dataColumn, "data-column", "", "Name of the value column when it is not 'value' or 'data'")
	fs.StringVar(&o.configPath, "config", "", "Estimator config JSON (defaults to built-in values)")
	fs.Float64Var(&o.relativeDepth, "relative-depth", config.DefaultRelativeDepth, "Depth of the sources below the layout reference")
	fs.Float64Var(&o.damping, "damping", config.DefaultDamping, "Tikhonov damping")
	fs.StringVar(&o.kernel, "kernel", config.DefaultKernel, "Green's function: harmonic, gravity or dipole")
	fs.StringVar(&o.layout, "layout", config.DefaultLayout, "Source layout: relative-depth, constant-depth or block-averaged")
	fs.Float64Var(&o.blockSize, "block-size", 0, "Block edge for the block-averaged layout")
	fs.IntVar(&o.workers, "workers", 0, "Kernel matrix goroutines (0 = GOMAXPROCS)")

	var spacing float64
	var shape, region, upward, names, adjust string
	fs.Float64Var(&spacing, "spacing", 0, "Grid spacing (exclusive with -shape)")
	fs.StringVar(&shape, "shape", "", "Grid shape as rows,cols (exclusive with -spacing)")
	fs.StringVar(&region, "region", "", "Grid region as W,E,S,N (defaults to the data bounding box)")
	fs.StringVar(&adjust, "adjust", "spacing", "What gives way when the region is not a multiple of the spacing: spacing or region")
	fs.StringVar(&upward, "upward", "", "Comma-separated upward levels, one output field each (defaults to the mean data height)")
	fs.StringVar(&names, "names", "", "Comma-separated output field names, one per upward level")

	fs.StringVar(&o.out, "out", "", "Write the grid as CSV to this path")
	fs.StringVar(&o.png, "png", "", "Write a heat map of the first field to this PNG path")
	fs.StringVar(&o.html, "html", "", "Write an interactive HTML report to this path")
	fs.StringVar(&o.dbPath, "db", "", "Record the fit and grid in this SQLite catalog")
	fs.StringVar(&o.metrics, "metrics", "", "Write Prometheus metrics in text format to this path when the run ends")
	fs.BoolVar(&o.verbose, "verbose", false, "Log fit diagnostics")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	if o.version {
		return o, nil
	}
	if o.data == "" {
		return nil, fmt.Errorf("%w: -data is required", errUsage)
	}
	if o.out == "" && o.png == "" && o.html == "" && o.dbPath == "" {
		return nil, fmt.Errorf("%w: nothing to do, give at least one of -out, -png, -html or -db", errUsage)
	}

	o.grid.Spacing = spacing
	var err error
	if shape != "" {
		if o.grid.Shape, err = parseShape(shape); err != nil {
			return nil, err
		}
	}
	if spacing == 0 && shape == "" {
		return nil, fmt.Errorf("%w: one of -spacing or -shape is required", errUsage)
	}
	if region != "" {
		r, err := parseRegion(region)
		if err != nil {
			return nil, err
		}
		o.grid.Region = &r
	}
	switch adjust {
	case "spacing":
		o.grid.Adjust = eql.AdjustSpacing
	case "region":
		o.grid.Adjust = eql.AdjustRegion
	default:
		return nil, fmt.Errorf("%w: -adjust must be spacing or region, got %q", errUsage, adjust)
	}
	if upward != "" {
		if o.grid.Upward, err = parseFloats(upward); err != nil {
			return nil, fmt.Errorf("-upward: %w", err)
		}
	}
	if names != "" {
		o.grid.DataNames = splitList(names)
	}
	return o, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseFloats(s string) ([]float64, error) {
	parts := splitList(s)
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", errUsage, p)
		}
		out[i] = v
	}
	return out, nil
}

func parseShape(s string) ([2]int, error) {
	parts := splitList(s)
	if len(parts) != 2 {
		return [2]int{}, fmt.Errorf("%w: -shape must be rows,cols, got %q", errUsage, s)
	}
	var shape [2]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 1 {
			return [2]int{}, fmt.Errorf("%w: -shape values must be positive integers, got %q", errUsage, p)
		}
		shape[i] = v
	}
	return shape, nil
}

func parseRegion(s string) (eql.Region, error) {
	v, err := parseFloats(s)
	if err != nil {
		return eql.Region{}, fmt.Errorf("-region: %w", err)
	}
	if len(v) != 4 {
		return eql.Region{}, fmt.Errorf("%w: -region must be W,E,S,N, got %q", errUsage, s)
	}
	r := eql.Region{West: v[0], East: v[1], South: v[2], North: v[3]}
	if err := r.Validate(); err != nil {
		return eql.Region{}, fmt.Errorf("-region: %w", err)
	}
	return r, nil
}

// estimatorConfig merges the config file (or defaults) with explicit flags.
func (o *options) estimatorConfig(fsys fsutil.FileSystem) (*eql.Config, error) {
	fc := config.EmptyEstimatorConfig()
	if o.configPath != "" {
		var err error
		if fc, err = config.ReadEstimatorConfig(fsys, o.configPath); err != nil {
			return nil, err
		}
	}
	cfg := eql.ConfigFromFile(fc)
	if o.set["relative-depth"] {
		cfg.WithRelativeDepth(o.relativeDepth)
	}
	if o.set["damping"] {
		cfg.WithDamping(o.damping)
	}
	if o.set["kernel"] {
		cfg.WithKernel(o.kernel)
	}
	if o.set["layout"] || o.set["block-size"] {
		layout := cfg.Layout
		if o.set["layout"] {
			layout = o.layout
		}
		blockSize := cfg.BlockSize
		if o.set["block-size"] {
			blockSize = o.blockSize
		}
		cfg.WithLayout(layout, blockSize)
	}
	if o.set["workers"] {
		cfg.WithWorkers(o.workers)
	}
	return cfg, cfg.Validate()
}

// run executes one fit-and-grid pass and returns the R² score.
func run(o *options, fsys fsutil.FileSystem, est *eql.Estimator) (float64, error) {
	logf := monitoring.Component(program)

	obs, err := dataset.ReadObservations(fsys, o.data, dataset.ReadOptions{DataColumn: o.dataColumn})
	if err != nil {
		return 0, err
	}
	logf("loaded %d observations from %s, region %s", obs.Len(), o.data, obs.Coordinates.Region())

	layer, err := est.Fit(obs)
	if err != nil {
		return 0, fmt.Errorf("fit failed: %w", err)
	}
	score, err := layer.Score(obs)
	if err != nil {
		return 0, fmt.Errorf("score failed: %w", err)
	}
	diag := layer.Diagnostics()
	logf("fit %s: %d sources, R²=%.6f, cond=%.3g", layer.ID(), diag.Sources, score, diag.Condition)

	g, err := layer.Grid(o.grid)
	if err != nil {
		return score, fmt.Errorf("grid failed: %w", err)
	}
	rows, cols := g.Dims()
	logf("grid %d×%d over %s, spacing %v, fields %v", rows, cols, g.Attrs.Region, g.Attrs.Spacing, g.Names())

	if o.out != "" {
		if err := dataset.WriteGrid(fsys, o.out, g); err != nil {
			return score, err
		}
		logf("wrote %s", o.out)
	}
	first := g.Fields[0].Name
	if o.png != "" {
		if err := render.WriteGridPNG(fsys, o.png, g, first, &obs.Coordinates); err != nil {
			return score, err
		}
		logf("wrote %s", o.png)
	}
	if o.html != "" {
		if err := render.WriteReportHTML(fsys, o.html, obs, g, first); err != nil {
			return score, err
		}
		logf("wrote %s", o.html)
	}
	if o.dbPath != "" {
		if err := catalog(o.dbPath, layer, score, g); err != nil {
			return score, err
		}
		logf("recorded fit %s in %s", layer.ID(), o.dbPath)
	}
	return score, nil
}

func catalog(path string, layer *eql.Layer, score float64, g *eql.GridResult) error {
	runs, err := db.Open(path)
	if err != nil {
		return err
	}
	defer runs.Close()

	fit, err := runs.RecordFit(layer)
	if err != nil {
		return err
	}
	if err := runs.SetFitScore(fit.ID, score); err != nil {
		return err
	}
	_, err = runs.RecordGrid(g)
	return err
}

// writeMetrics dumps everything g gathers to path on fsys.
func writeMetrics(fsys fsutil.FileSystem, path string, g prometheus.Gatherer) error {
	var b strings.Builder
	if err := monitoring.WriteText(&b, g); err != nil {
		return err
	}
	if err := fsys.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

// runMigrate handles `eql-grid migrate <action> [args] [-db path]`. Flags
// and positional arguments may be interleaved.
func runMigrate(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet(program+" migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "eql_runs.db", "SQLite catalog path")

	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
	return db.RunMigrateCommand(stdout, positional, *dbPath)
}

func main() {
	log.SetFlags(log.LstdFlags)
	monitoring.SetLogger(log.Printf)

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(os.Args[2:], os.Stdout, os.Stderr); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	o, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("%v (see -help)", err)
	}
	if o.version {
		fmt.Println(version.String(program))
		return
	}

	var diag io.Writer
	if o.verbose {
		diag = os.Stderr
	}
	eql.SetLogWriters(os.Stderr, diag, nil)

	fsys := fsutil.OSFileSystem{}
	cfg, err := o.estimatorConfig(fsys)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	est, err := eql.NewEstimator(cfg, eql.WithMetrics(monitoring.NewMetrics()))
	if err != nil {
		log.Fatalf("failed to create estimator: %v", err)
	}

	_, runErr := run(o, fsys, est)
	if o.metrics != "" {
		if err := writeMetrics(fsys, o.metrics, prometheus.DefaultGatherer); err != nil {
			log.Printf("%v", err)
		}
	}
	if runErr != nil {
		log.Fatalf("%v", runErr)
	}
}

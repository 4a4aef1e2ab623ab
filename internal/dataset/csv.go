// Package dataset reads survey observations from CSV and writes gridded
// results back out.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/eqlayer/internal/eql"
	"github.com/banshee-data/eqlayer/internal/fsutil"
)

// Column aliases accepted in a header row. Matching is case-insensitive.
var columnAliases = map[string][]string{
	"easting":     {"easting", "x", "east"},
	"northing":    {"northing", "y", "north"},
	"upward":      {"upward", "z", "height", "elevation"},
	"value":       {"value", "data"},
	"weight":      {"weight", "weights"},
	"uncertainty": {"uncertainty", "sigma", "std"},
}

// ReadOptions tunes how observation files are interpreted.
type ReadOptions struct {
	// DataColumn names the value column when it is not one of the usual
	// aliases, for example "total_field_anomaly_nt".
	DataColumn string
}

type columns struct {
	easting, northing, upward, value int
	weight, uncertainty              int // -1 when absent
}

// ReadObservations loads observations from a CSV file on fsys.
func ReadObservations(fsys fsutil.FileSystem, path string, opts ReadOptions) (eql.Observations, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return eql.Observations{}, fmt.Errorf("failed to open observations: %w", err)
	}
	defer f.Close()

	obs, err := ParseObservations(f, opts)
	if err != nil {
		return eql.Observations{}, fmt.Errorf("%s: %w", path, err)
	}
	return obs, nil
}

// ParseObservations reads CSV observations. A header row is optional: when
// the first row is not numeric, its names pick the columns. Without a
// header the columns are easting, northing, upward, value and an optional
// weight. Lines starting with '#' are comments.
func ParseObservations(r io.Reader, opts ReadOptions) (eql.Observations, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return eql.Observations{}, fmt.Errorf("no observations")
	}
	if err != nil {
		return eql.Observations{}, fmt.Errorf("failed to read CSV: %w", err)
	}

	var (
		cols    columns
		pending [][]string
	)
	if isNumericRow(first) {
		cols, err = positionalColumns(len(first))
		pending = append(pending, first)
	} else {
		cols, err = headerColumns(first, opts)
	}
	if err != nil {
		return eql.Observations{}, err
	}

	var e, n, u, d, w, sigma []float64
	line := 1
	handle := func(rec []string) error {
		vals, err := parseRecord(rec, cols)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		e = append(e, vals[0])
		n = append(n, vals[1])
		u = append(u, vals[2])
		d = append(d, vals[3])
		if cols.weight >= 0 {
			w = append(w, vals[4])
		}
		if cols.uncertainty >= 0 {
			sigma = append(sigma, vals[5])
		}
		return nil
	}
	for _, rec := range pending {
		if err := handle(rec); err != nil {
			return eql.Observations{}, err
		}
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return eql.Observations{}, fmt.Errorf("failed to read CSV: %w", err)
		}
		line, _ = cr.FieldPos(0)
		if err := handle(rec); err != nil {
			return eql.Observations{}, err
		}
	}

	if sigma != nil {
		if w, err = eql.WeightsFromUncertainty(sigma); err != nil {
			return eql.Observations{}, err
		}
	}
	coords, err := eql.NewCoordinates(e, n, u)
	if err != nil {
		return eql.Observations{}, err
	}
	return eql.NewObservations(coords, d, w)
}

func isNumericRow(rec []string) bool {
	for _, field := range rec {
		if _, err := strconv.ParseFloat(strings.TrimSpace(field), 64); err != nil {
			return false
		}
	}
	return len(rec) > 0
}

func positionalColumns(width int) (columns, error) {
	switch width {
	case 4:
		return columns{0, 1, 2, 3, -1, -1}, nil
	case 5:
		return columns{0, 1, 2, 3, 4, -1}, nil
	default:
		return columns{}, fmt.Errorf("headerless CSV needs 4 or 5 columns, got %d", width)
	}
}

func headerColumns(header []string, opts ReadOptions) (columns, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	find := func(key string) int {
		for _, alias := range columnAliases[key] {
			if i, ok := index[alias]; ok {
				return i
			}
		}
		return -1
	}

	cols := columns{
		easting:     find("easting"),
		northing:    find("northing"),
		upward:      find("upward"),
		value:       find("value"),
		weight:      find("weight"),
		uncertainty: find("uncertainty"),
	}
	if opts.DataColumn != "" {
		i, ok := index[strings.ToLower(opts.DataColumn)]
		if !ok {
			return columns{}, fmt.Errorf("data column %q not found in header", opts.DataColumn)
		}
		cols.value = i
	}
	required := [4]int{cols.easting, cols.northing, cols.upward, cols.value}
	for k, name := range [4]string{"easting", "northing", "upward", "value"} {
		if required[k] < 0 {
			return columns{}, fmt.Errorf("header has no %s column", name)
		}
	}
	if cols.weight >= 0 && cols.uncertainty >= 0 {
		return columns{}, fmt.Errorf("header has both weight and uncertainty columns")
	}
	return cols, nil
}

// parseRecord returns easting, northing, upward, value, weight, uncertainty.
func parseRecord(rec []string, cols columns) ([6]float64, error) {
	var out [6]float64
	for k, i := range [6]int{cols.easting, cols.northing, cols.upward, cols.value, cols.weight, cols.uncertainty} {
		if i < 0 {
			continue
		}
		if i >= len(rec) {
			return out, fmt.Errorf("expected at least %d fields, got %d", i+1, len(rec))
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		if err != nil {
			return out, fmt.Errorf("field %d: %w", i+1, err)
		}
		out[k] = v
	}
	return out, nil
}

// WriteGrid writes every field of g in long format:
// field,easting,northing,upward,value with one row per node per field.
func WriteGrid(fsys fsutil.FileSystem, path string, g *eql.GridResult) error {
	f, err := fsutil.CreateAll(fsys, path)
	if err != nil {
		return fmt.Errorf("failed to create grid file: %w", err)
	}
	if err := EncodeGrid(f, g); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

// EncodeGrid writes g as CSV to w.
func EncodeGrid(w io.Writer, g *eql.GridResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"field", "easting", "northing", "upward", "value"}); err != nil {
		return err
	}
	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for _, field := range g.Fields {
		up := format(field.Upward)
		for i, n := range g.Northing {
			for j, e := range g.Easting {
				rec := []string{field.Name, format(e), format(n), up, format(field.Values.At(i, j))}
				if err := cw.Write(rec); err != nil {
					return err
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

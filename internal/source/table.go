package source

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geojoin/internal/feature"
	"github.com/sells-group/geojoin/internal/fetcher"
)

// ReadCSVFile reads a delimited text file whose header names the coordinate
// columns.
func ReadCSVFile(ctx context.Context, path string, opts Options) (*feature.Collection, error) {
	opts = opts.withDefaults()
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	header, rows, err := fetcher.ReadCSV(ctx, f, fetcher.CSVOptions{
		Delimiter:  opts.Delimiter,
		LazyQuotes: true,
		TrimSpace:  true,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "source: read %s", path)
	}
	return tableCollection(layerName(path), header, rows, opts)
}

// ReadXLSX reads the first worksheet of an Excel workbook, or the one named
// by opts.Sheet.
func ReadXLSX(path string, opts Options) (*feature.Collection, error) {
	opts = opts.withDefaults()
	header, rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: opts.Sheet})
	if err != nil {
		return nil, eris.Wrapf(err, "source: read %s", path)
	}
	return tableCollection(layerName(path), header, rows, opts)
}

// tableCollection turns header and rows into points. Column lookup ignores
// case. Columns other than the coordinates and the ID become attributes
// with inferred types.
func tableCollection(name string, header []string, rows [][]string, opts Options) (*feature.Collection, error) {
	col := func(want string) int {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), want) {
				return i
			}
		}
		return -1
	}

	xi, yi := col(opts.XColumn), col(opts.YColumn)
	if xi < 0 || yi < 0 {
		return nil, &feature.ValidationError{
			Layer:  name,
			Reason: fmt.Sprintf("coordinate columns %q and %q not both found in header %v", opts.XColumn, opts.YColumn, header),
		}
	}
	idi := -1
	if opts.IDColumn != "" {
		if idi = col(opts.IDColumn); idi < 0 {
			return nil, &feature.ValidationError{Layer: name, Reason: fmt.Sprintf("id column %q not found", opts.IDColumn)}
		}
	}

	var attrs []int
	for i := range header {
		if i != xi && i != yi && i != idi {
			attrs = append(attrs, i)
		}
	}

	cell := func(row []string, i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	schema := make(feature.Schema, len(attrs))
	for j, i := range attrs {
		samples := make([]string, len(rows))
		for r, row := range rows {
			samples[r] = cell(row, i)
		}
		schema[j] = feature.Field{Name: strings.TrimSpace(header[i]), Type: feature.InferType(samples)}
	}

	coll := &feature.Collection{Name: name, Schema: schema, Features: make([]feature.Feature, 0, len(rows))}
	for r, row := range rows {
		// Row numbers in messages count the header as row 1.
		line := r + 2
		x, err := parseCoord(cell(row, xi))
		if err != nil {
			return nil, &feature.ValidationError{Layer: name, Reason: fmt.Sprintf("row %d: invalid %s %q", line, opts.XColumn, cell(row, xi)), Index: r}
		}
		y, err := parseCoord(cell(row, yi))
		if err != nil {
			return nil, &feature.ValidationError{Layer: name, Reason: fmt.Sprintf("row %d: invalid %s %q", line, opts.YColumn, cell(row, yi)), Index: r}
		}

		id := int64(r)
		if idi >= 0 {
			id, err = strconv.ParseInt(cell(row, idi), 10, 64)
			if err != nil {
				return nil, &feature.ValidationError{Layer: name, Reason: fmt.Sprintf("row %d: invalid id %q", line, cell(row, idi)), Index: r}
			}
		}

		values := make([]feature.Value, len(attrs))
		for j, i := range attrs {
			v, err := feature.ParseValue(schema[j].Type, cell(row, i))
			if err != nil {
				return nil, eris.Wrapf(err, "source: row %d column %s", line, schema[j].Name)
			}
			values[j] = v
		}
		coll.Features = append(coll.Features, feature.Feature{ID: id, X: x, Y: y, Values: values})
	}
	return coll, nil
}

// parseCoord accepts a decimal comma when no point is present.
func parseCoord(s string) (float64, error) {
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	return strconv.ParseFloat(s, 64)
}

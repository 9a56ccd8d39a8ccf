package hdx

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-gota/gota/dataframe"

	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/pipeline"
	"github.com/derickschaefer/pricetrack/internal/util"
)

// Price columns tried, in order, when no column is configured.
var defaultPriceColumns = []string{"usdprice", "price"}

// frame is a string-typed view of a CSV table with the HXL hashtag row
// (the row after the header whose cells start with '#') removed.
type frame struct {
	cols map[string][]string
	rows []int
}

// readFrame loads r with every column kept as text. A header-only input
// yields an empty frame.
func readFrame(r io.Reader) (*frame, error) {
	df := dataframe.ReadCSV(r,
		dataframe.DetectTypes(false),
		dataframe.HasHeader(true),
		dataframe.WithLazyQuotes(true),
	)
	if df.Err != nil {
		if strings.Contains(df.Err.Error(), "empty DataFrame") {
			return &frame{cols: map[string][]string{}}, nil
		}
		return nil, fmt.Errorf("reading CSV: %w", df.Err)
	}

	f := &frame{cols: make(map[string][]string, df.Ncol())}
	for _, name := range df.Names() {
		f.cols[strings.ToLower(strings.TrimSpace(name))] = df.Col(name).Records()
	}
	for i := 0; i < df.Nrow(); i++ {
		if i == 0 && f.isHXL(0) {
			continue
		}
		f.rows = append(f.rows, i)
	}
	return f, nil
}

func (f *frame) isHXL(i int) bool {
	for _, col := range f.cols {
		if strings.HasPrefix(strings.TrimSpace(col[i]), "#") {
			return true
		}
	}
	return false
}

func (f *frame) has(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// cell returns the value at row i of column name. Missing columns and gota's
// NaN marker read as empty.
func (f *frame) cell(name string, i int) string {
	col, ok := f.cols[name]
	if !ok {
		return ""
	}
	if v := col[i]; v != "NaN" {
		return v
	}
	return ""
}

// ParseCSV parses a WFP country price table into observations. priceColumn
// names the price column; empty tries usdprice then price. Rows are
// validated with pipeline.ValidateRecords under opts.
func ParseCSV(r io.Reader, priceColumn string, opts pipeline.SchemaOptions) ([]model.Observation, []string, error) {
	f, err := readFrame(r)
	if err != nil {
		return nil, nil, err
	}
	if len(f.cols) == 0 {
		return []model.Observation{}, nil, nil
	}

	price, err := resolvePriceColumn(f, priceColumn)
	if err != nil {
		return nil, nil, err
	}
	for _, name := range []string{"date", "market", "commodity", "unit"} {
		if !f.has(name) {
			return nil, nil, &model.SchemaError{Field: name, Reason: "missing required column"}
		}
	}

	recs := make([]pipeline.Record, 0, len(f.rows))
	for _, i := range f.rows {
		recs = append(recs, pipeline.Record{
			Date:      f.cell("date", i),
			Market:    f.cell("market", i),
			Latitude:  f.cell("latitude", i),
			Longitude: f.cell("longitude", i),
			Commodity: f.cell("commodity", i),
			Unit:      f.cell("unit", i),
			Price:     f.cell(price, i),
		})
	}
	return pipeline.ValidateRecords(recs, opts)
}

func resolvePriceColumn(f *frame, configured string) (string, error) {
	if configured != "" {
		name := strings.ToLower(configured)
		if !f.has(name) {
			return "", &model.SchemaError{Field: name, Reason: "missing required column"}
		}
		return name, nil
	}
	for _, name := range defaultPriceColumns {
		if f.has(name) {
			return name, nil
		}
	}
	return "", &model.SchemaError{Field: "price", Reason: "missing required column (tried usdprice, price)"}
}

// ParseCountryIndex parses the global country index table. Rows without an
// ISO3 code or dataset URL are skipped.
func ParseCountryIndex(r io.Reader) ([]model.Country, error) {
	f, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{"countryiso3", "url"} {
		if len(f.cols) > 0 && !f.has(name) {
			return nil, &model.SchemaError{Field: name, Reason: "missing required column"}
		}
	}

	out := make([]model.Country, 0, len(f.rows))
	for _, i := range f.rows {
		iso3 := strings.ToUpper(strings.TrimSpace(f.cell("countryiso3", i)))
		u := strings.TrimSpace(f.cell("url", i))
		if iso3 == "" || u == "" {
			continue
		}
		c := model.Country{
			ISO3:          iso3,
			URL:           u,
			HDXIdentifier: identifierFromURL(u),
		}
		if d, err := util.ParseDate(f.cell("start_date", i)); err == nil {
			c.StartDate = d
		}
		if d, err := util.ParseDate(f.cell("end_date", i)); err == nil {
			c.EndDate = d
		}
		out = append(out, c)
	}
	return out, nil
}

// identifierFromURL returns the last path segment of a dataset URL.
func identifierFromURL(u string) string {
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}

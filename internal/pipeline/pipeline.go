// Package pipeline provides the panel stream codec (JSONL over stdin/stdout,
// the canonical pipe format), ingestion-time schema validation and the
// runner that threads a panel through every stage.
package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/util"
)

// jsonlRow is the on-the-wire shape of one panel row.
type jsonlRow struct {
	Date      string  `json:"date"`
	Market    string  `json:"market"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Commodity string  `json:"commodity"`
	Unit      string  `json:"unit"`
	Price     float64 `json:"price"`
}

// ReadPanel reads JSONL rows from r and validates them into observations.
// Blank lines and lines beginning with "//" are skipped. Numeric fields may
// be JSON numbers or strings. Empty input yields an empty panel.
//
// With opts.Lenient, rows that fail validation are dropped and described in
// the returned warnings; otherwise the first violation is returned as a
// *model.SchemaError.
func ReadPanel(r io.Reader, opts SchemaOptions) ([]model.Observation, []string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var recs []Record
	lineNum := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNum++
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(line))
		dec.UseNumber()
		var fields map[string]interface{}
		if err := dec.Decode(&fields); err != nil {
			return nil, nil, fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}
		recs = append(recs, Record{
			Date:      cell(fields["date"]),
			Market:    cell(fields["market"]),
			Latitude:  cell(fields["latitude"]),
			Longitude: cell(fields["longitude"]),
			Commodity: cell(fields["commodity"]),
			Unit:      cell(fields["unit"]),
			Price:     cell(fields["price"]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading input: %w", err)
	}
	return ValidateRecords(recs, opts)
}

// cell renders a decoded JSON value as the raw text a CSV cell would hold.
func cell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// WriteJSONL writes observations as JSONL to w, dates as YYYY-MM-DD.
func WriteJSONL(w io.Writer, obs []model.Observation) error {
	enc := json.NewEncoder(w)
	for _, o := range obs {
		rec := jsonlRow{
			Date:      util.FormatDate(o.Date),
			Market:    o.Market,
			Latitude:  o.Latitude,
			Longitude: o.Longitude,
			Commodity: o.Commodity,
			Unit:      o.Unit,
			Price:     o.Price,
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// IsTTY returns true if stdout is a terminal (not a pipe).
func IsTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// Package render converts Result values into human-readable or machine-parseable
// output. Every Kind is first flattened into a Table; the per-format writers
// then work on that one shape. JSON keeps the typed payload intact.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/xuri/excelize/v2"

	"github.com/derickschaefer/pricetrack/internal/analyze"
	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/pipeline"
	"github.com/derickschaefer/pricetrack/internal/util"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatMD    = "md"
	FormatXLSX  = "xlsx"
)

// Table is a generic header-plus-rows payload for Kind "table" results such
// as cache stats, snapshot listings and stage timings.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string) error {
	if format == FormatJSON {
		return renderJSON(w, result)
	}
	if format == FormatJSONL {
		return renderJSONL(w, result)
	}
	tbl, err := ToTable(result)
	if err != nil {
		return err
	}
	switch format {
	case FormatCSV:
		return renderDelimited(w, tbl, ',')
	case FormatTSV:
		return renderDelimited(w, tbl, '\t')
	case FormatMD:
		return renderMarkdown(w, tbl)
	case FormatXLSX:
		return renderXLSX(w, tbl, result.Kind)
	default:
		return renderTable(w, tbl)
	}
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

func renderJSONL(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	switch data := result.Data.(type) {
	case *model.Panel:
		return pipeline.WriteJSONL(w, data.Obs)
	case []model.Observation:
		return pipeline.WriteJSONL(w, data)
	case []model.SummaryRecord:
		return encodeEach(enc, data)
	case []analyze.Summary:
		return encodeEach(enc, data)
	case []analyze.TrendResult:
		return encodeEach(enc, data)
	case []model.Country:
		return encodeEach(enc, data)
	case *Table:
		for _, r := range data.Rows {
			rec := make(map[string]string, len(data.Headers))
			for i, h := range data.Headers {
				if i < len(r) {
					rec[strings.ToLower(h)] = r[i]
				}
			}
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	default:
		return enc.Encode(result.Data)
	}
}

func encodeEach[T any](enc *json.Encoder, rows []T) error {
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// ─── Flattening ───────────────────────────────────────────────────────────────

// ToTable flattens a result payload into headers and string rows.
func ToTable(result *model.Result) (*Table, error) {
	switch data := result.Data.(type) {
	case *Table:
		return data, nil
	case *model.Panel:
		return panelTable(data.Obs), nil
	case []model.Observation:
		return panelTable(data), nil
	case []model.SummaryRecord:
		return summaryTable(data), nil
	case []analyze.Summary:
		return statsTable(data), nil
	case []analyze.TrendResult:
		return trendTable(data), nil
	case []model.Country:
		return countryTable(data), nil
	default:
		return nil, fmt.Errorf("cannot render %s payload of type %T as a table", result.Kind, result.Data)
	}
}

func panelTable(obs []model.Observation) *Table {
	t := &Table{Headers: []string{"DATE", "MARKET", "LATITUDE", "LONGITUDE", "COMMODITY", "UNIT", "PRICE"}}
	for _, o := range obs {
		t.Rows = append(t.Rows, []string{
			util.FormatDate(o.Date),
			o.Market,
			util.FormatValue(o.Latitude),
			util.FormatValue(o.Longitude),
			o.Commodity,
			o.Unit,
			formatValue(o.Price),
		})
	}
	return t
}

func summaryTable(recs []model.SummaryRecord) *Table {
	t := &Table{Headers: []string{"MARKET", "COMMODITY", "UNIT", "DATE", "PRICE", "MOM", "QOQ", "YOY"}}
	for _, r := range recs {
		t.Rows = append(t.Rows, []string{
			r.Market,
			r.Commodity,
			r.Unit,
			util.FormatDate(r.Date),
			formatValue(r.Price),
			formatPct(r.MoM),
			formatPct(r.QoQ),
			formatPct(r.YoY),
		})
	}
	return t
}

func statsTable(sums []analyze.Summary) *Table {
	t := &Table{Headers: []string{"MARKET", "COMMODITY", "UNIT", "COUNT", "START", "END", "MEAN", "STD", "MIN", "MEDIAN", "MAX", "CHANGE %"}}
	for _, s := range sums {
		t.Rows = append(t.Rows, []string{
			s.Market,
			s.Commodity,
			s.Unit,
			strconv.Itoa(s.Count),
			util.FormatDate(s.Start),
			util.FormatDate(s.End),
			round(s.Mean),
			round(s.Std),
			round(s.Min),
			round(s.Median),
			round(s.Max),
			formatPlain(s.ChangePct),
		})
	}
	return t
}

func trendTable(trs []analyze.TrendResult) *Table {
	t := &Table{Headers: []string{"MARKET", "COMMODITY", "UNIT", "METHOD", "POINTS", "SLOPE/YR", "%/YR", "R2", "DIRECTION"}}
	for _, tr := range trs {
		t.Rows = append(t.Rows, []string{
			tr.Market,
			tr.Commodity,
			tr.Unit,
			string(tr.Method),
			strconv.Itoa(tr.Points),
			round(tr.SlopePerYear),
			formatPlain(tr.PctPerYear),
			round(tr.R2),
			tr.Direction,
		})
	}
	return t
}

func countryTable(cs []model.Country) *Table {
	t := &Table{Headers: []string{"ISO3", "DATASET", "START", "END"}}
	for _, c := range cs {
		t.Rows = append(t.Rows, []string{
			c.ISO3,
			c.HDXIdentifier,
			formatDate(c.StartDate),
			formatDate(c.EndDate),
		})
	}
	return t
}

// ─── Table ────────────────────────────────────────────────────────────────────

func renderTable(w io.Writer, t *Table) error {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(t.Headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)
	tw.SetColWidth(40)
	for _, r := range t.Rows {
		tw.Append(r)
	}
	tw.Render()
	return nil
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, t *Table, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep
	headers := make([]string, len(t.Headers))
	for i, h := range t.Headers {
		headers[i] = strings.ToLower(h)
	}
	if err := cw.Write(headers); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, t *Table) error {
	fmt.Fprintf(w, "| %s |\n", strings.Join(t.Headers, " | "))
	seps := make([]string, len(t.Headers))
	for i := range seps {
		seps[i] = "---"
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))
	for _, r := range t.Rows {
		cells := make([]string, len(r))
		for i, c := range r {
			cells[i] = mdEscape(c)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	return nil
}

// ─── XLSX ─────────────────────────────────────────────────────────────────────

// renderXLSX writes a single-sheet workbook. Cells that parse as numbers are
// stored numerically so spreadsheet formulas work on them.
func renderXLSX(w io.Writer, t *Table, sheet string) error {
	if sheet == "" {
		sheet = "data"
	}
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	header := make([]interface{}, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	for i, r := range t.Rows {
		row := make([]interface{}, len(r))
		for j, c := range r {
			if v, err := strconv.ParseFloat(c, 64); err == nil {
				row[j] = v
			} else {
				row[j] = c
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("xlsx: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("xlsx: %w", err)
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	return nil
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		src := "live"
		if result.Stats.CacheHit {
			src = "cache"
		}
		fmt.Fprintf(w, "\n[%s • %d items • %dms • %s]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.Items,
			result.Stats.DurationMs,
			src,
		)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// formatValue shows at most four decimals and trims trailing zeros.
func formatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func round(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

// formatPct renders a fractional change as a percentage; nil renders empty.
func formatPct(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p*100, 'f', 2, 64)
}

func formatPlain(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', 2, 64)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return util.FormatDate(t)
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/util"
)

// Record is one untyped input row as read from CSV or JSONL, before
// validation. All cells are raw text.
type Record struct {
	Date      string `json:"date" validate:"required"`
	Market    string `json:"market" validate:"required"`
	Latitude  string `json:"latitude" validate:"omitempty,latitude"`
	Longitude string `json:"longitude" validate:"omitempty,longitude"`
	Commodity string `json:"commodity" validate:"required"`
	Unit      string `json:"unit" validate:"required"`
	Price     string `json:"price" validate:"required"`
}

// SchemaOptions controls ValidateRecords.
type SchemaOptions struct {
	// Lenient drops offending rows with a warning instead of failing.
	Lenient bool
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func recordValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		// Report JSON field names, which match the CSV column names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidateRecords converts raw records into observations, enforcing the
// panel schema: non-empty market, commodity and unit, a parseable date and a
// finite non-negative price. Coordinates are optional and default to zero.
func ValidateRecords(recs []Record, opts SchemaOptions) ([]model.Observation, []string, error) {
	out := make([]model.Observation, 0, len(recs))
	var warnings []string
	for i, rec := range recs {
		o, err := validateRecord(i+1, rec)
		if err != nil {
			if !opts.Lenient {
				return nil, nil, err
			}
			warnings = append(warnings, err.Error())
			continue
		}
		out = append(out, o)
	}
	if len(warnings) > 0 {
		slog.Warn("skipped invalid rows", "skipped", len(warnings), "kept", len(out))
	}
	return out, warnings, nil
}

// ValidatePanel checks already-typed observations against the same schema,
// for panels that did not come through ValidateRecords (e.g. the store).
func ValidatePanel(obs []model.Observation) error {
	for i, o := range obs {
		row := i + 1
		switch {
		case o.Date.IsZero():
			return &model.SchemaError{Row: row, Field: "date", Reason: "missing"}
		case strings.TrimSpace(o.Market) == "":
			return &model.SchemaError{Row: row, Field: "market", Reason: "empty"}
		case strings.TrimSpace(o.Commodity) == "":
			return &model.SchemaError{Row: row, Field: "commodity", Reason: "empty"}
		case strings.TrimSpace(o.Unit) == "":
			return &model.SchemaError{Row: row, Field: "unit", Reason: "empty"}
		case math.IsNaN(o.Price) || math.IsInf(o.Price, 0):
			return &model.SchemaError{Row: row, Field: "price", Reason: fmt.Sprintf("non-finite value %g", o.Price)}
		case o.Price < 0:
			return &model.SchemaError{Row: row, Field: "price", Reason: fmt.Sprintf("negative value %g", o.Price)}
		}
	}
	return nil
}

func validateRecord(row int, rec Record) (model.Observation, error) {
	rec = trimRecord(rec)
	if err := recordValidator().Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return model.Observation{}, &model.SchemaError{Row: row, Field: fe.Field(), Reason: describeTag(fe)}
		}
		return model.Observation{}, err
	}

	date, err := util.ParseDate(rec.Date)
	if err != nil {
		return model.Observation{}, &model.SchemaError{Row: row, Field: "date", Reason: err.Error()}
	}
	price, err := util.ParseFloat(rec.Price)
	if err != nil {
		return model.Observation{}, &model.SchemaError{Row: row, Field: "price", Reason: err.Error()}
	}
	if price < 0 {
		return model.Observation{}, &model.SchemaError{Row: row, Field: "price", Reason: fmt.Sprintf("negative value %g", price)}
	}

	o := model.Observation{
		Date:      date,
		Market:    rec.Market,
		Commodity: rec.Commodity,
		Unit:      rec.Unit,
		Price:     price,
	}
	// latitude/longitude were checked by the validator; parse cannot fail.
	if rec.Latitude != "" {
		o.Latitude, _ = util.ParseFloat(rec.Latitude)
	}
	if rec.Longitude != "" {
		o.Longitude, _ = util.ParseFloat(rec.Longitude)
	}
	return o, nil
}

func trimRecord(r Record) Record {
	return Record{
		Date:      strings.TrimSpace(r.Date),
		Market:    strings.TrimSpace(r.Market),
		Latitude:  strings.TrimSpace(r.Latitude),
		Longitude: strings.TrimSpace(r.Longitude),
		Commodity: strings.TrimSpace(r.Commodity),
		Unit:      strings.TrimSpace(r.Unit),
		Price:     strings.TrimSpace(r.Price),
	}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "empty"
	case "latitude", "longitude":
		return fmt.Sprintf("not a valid %s: %q", fe.Tag(), fe.Value())
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}

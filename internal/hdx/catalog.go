package hdx

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/pipeline"
)

// CountryIndex downloads and parses the country index dataset.
func (c *Client) CountryIndex(ctx context.Context) ([]model.Country, error) {
	u, err := c.firstResourceURL(ctx, c.indexDataset)
	if err != nil {
		return nil, fmt.Errorf("country index: %w", err)
	}
	body, err := c.download(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("country index: %w", err)
	}
	countries, err := ParseCountryIndex(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("country index: %w", err)
	}
	slog.Debug("country index", "countries", len(countries))
	return countries, nil
}

// FindCountry returns the index entry for iso3 (case-insensitive).
func FindCountry(index []model.Country, iso3 string) (model.Country, error) {
	want := strings.ToUpper(strings.TrimSpace(iso3))
	for _, c := range index {
		if c.ISO3 == want {
			return c, nil
		}
	}
	return model.Country{}, fmt.Errorf("country %q: %w", iso3, ErrNotFound)
}

// PanelOptions controls CountryPanel.
type PanelOptions struct {
	PriceColumn string
	Schema      pipeline.SchemaOptions
}

// CountryPanel downloads the price dataset for one index entry and parses
// it into a raw panel. Warnings list rows dropped under lenient validation.
func (c *Client) CountryPanel(ctx context.Context, country model.Country, opts PanelOptions) (*model.Panel, []string, error) {
	if country.HDXIdentifier == "" {
		return nil, nil, fmt.Errorf("country %s: no HDX dataset identifier", country.ISO3)
	}
	u, err := c.firstResourceURL(ctx, country.HDXIdentifier)
	if err != nil {
		return nil, nil, fmt.Errorf("panel %s: %w", country.ISO3, err)
	}
	body, err := c.download(ctx, u)
	if err != nil {
		return nil, nil, fmt.Errorf("panel %s: %w", country.ISO3, err)
	}
	obs, warnings, err := ParseCSV(bytes.NewReader(body), opts.PriceColumn, opts.Schema)
	if err != nil {
		return nil, nil, fmt.Errorf("panel %s: %w", country.ISO3, err)
	}
	slog.Debug("country panel", "country", country.ISO3, "rows", len(obs), "skipped", len(warnings))
	return &model.Panel{Country: country.ISO3, Obs: obs}, warnings, nil
}

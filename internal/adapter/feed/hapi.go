package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ochanalytics/slow-onset-monitor/internal/domain"
)

// HapiClient pulls national food-security phase rows from the HDX HAPI
// endpoint, one page at a time.
type HapiClient struct {
	baseURL       string
	appIdentifier string
	pageSize      int
	countries     map[string]struct{} // ISO3 allow-list
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewHapiClient creates a food-security feed client limited to the given
// countries (feed country name -> ISO3).
func NewHapiClient(baseURL, appIdentifier string, pageSize int, countries map[string]string, timeout time.Duration, logger *slog.Logger) *HapiClient {
	iso3s := make(map[string]struct{}, len(countries))
	for _, iso3 := range countries {
		iso3s[iso3] = struct{}{}
	}
	return &HapiClient{
		baseURL:       baseURL,
		appIdentifier: appIdentifier,
		pageSize:      pageSize,
		countries:     iso3s,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

// hapiRow is the wire form of one phase row.
type hapiRow struct {
	LocationCode              string  `json:"location_code"`
	AdminLevel                int     `json:"admin_level"`
	IpcPhase                  string  `json:"ipc_phase"`
	IpcType                   string  `json:"ipc_type"`
	PopulationInPhase         float64 `json:"population_in_phase"`
	PopulationFractionInPhase float64 `json:"population_fraction_in_phase"`
	ReferencePeriodStart      string  `json:"reference_period_start"`
	ReferencePeriodEnd        string  `json:"reference_period_end"`
}

type hapiPage struct {
	Data []hapiRow `json:"data"`
}

// FetchReports pages through the endpoint until a short page, keeping national
// (admin level 0) rows for the monitored countries.
func (c *HapiClient) FetchReports(ctx context.Context) ([]domain.IpcReport, error) {
	var reports []domain.IpcReport
	for offset := 0; ; offset += c.pageSize {
		page, err := c.fetchPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		for _, row := range page {
			if row.AdminLevel != 0 {
				continue
			}
			if _, ok := c.countries[row.LocationCode]; !ok {
				continue
			}
			report, err := parseHapiRow(row)
			if err != nil {
				return nil, err
			}
			reports = append(reports, report)
		}
		if len(page) < c.pageSize {
			break
		}
	}
	c.logger.Debug("food-security feed fetched", "reports", len(reports))
	return reports, nil
}

func (c *HapiClient) fetchPage(ctx context.Context, offset int) ([]hapiRow, error) {
	params := url.Values{
		"output_format": {"json"},
		"admin_level":   {"0"},
		"offset":        {strconv.Itoa(offset)},
		"limit":         {strconv.Itoa(c.pageSize)},
	}
	if c.appIdentifier != "" {
		params.Set("app_identifier", c.appIdentifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("food-security request at offset %d: %w", offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("food-security feed error: status %d: %s", resp.StatusCode, body)
	}

	var page hapiPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode food-security page: %w", err)
	}
	return page.Data, nil
}

func parseHapiRow(row hapiRow) (domain.IpcReport, error) {
	start, err := parseHapiTime(row.ReferencePeriodStart)
	if err != nil {
		return domain.IpcReport{}, fmt.Errorf("%s: bad period start: %w", row.LocationCode, err)
	}
	end, err := parseHapiTime(row.ReferencePeriodEnd)
	if err != nil {
		return domain.IpcReport{}, fmt.Errorf("%s: bad period end: %w", row.LocationCode, err)
	}
	return domain.IpcReport{
		LocationCode:       row.LocationCode,
		Phase:              row.IpcPhase,
		Type:               domain.IpcType(row.IpcType),
		PopulationFraction: row.PopulationFractionInPhase,
		Population:         row.PopulationInPhase,
		PeriodStart:        start,
		PeriodEnd:          end,
		Year:               end.Year(),
	}, nil
}

// parseHapiTime accepts both the dateonly and the timestamp form the API has
// been observed to emit.
func parseHapiTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}

// Package feed contains the ingest adapters for the upstream data sources:
// the ASAP hotspot archive, the HDX HAPI food-security API, and the local
// warning-grid and population reference files.
package feed

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ochanalytics/slow-onset-monitor/internal/domain"
)

const hotspotsArchiveEntry = "hotspots_ts.csv"

// HotspotClient downloads and parses the ASAP hotspot time-series archive.
type HotspotClient struct {
	url        string
	countries  map[string]string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHotspotClient creates a hotspot feed client limited to the given
// countries (feed country name -> ISO3).
func NewHotspotClient(url string, countries map[string]string, timeout time.Duration, logger *slog.Logger) *HotspotClient {
	return &HotspotClient{
		url:        url,
		countries:  countries,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// FetchHotspots downloads the zip archive and returns the full time series for
// the monitored countries.
func (c *HotspotClient) FetchHotspots(ctx context.Context) ([]domain.HotspotRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download hotspot archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hotspot feed error: status %d", resp.StatusCode)
	}

	// The archive is a few MB; zip needs random access, so buffer it whole.
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read hotspot archive: %w", err)
	}

	records, err := c.parseArchive(data)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("hotspot archive parsed", "records", len(records), "bytes", len(data))
	return records, nil
}

func (c *HotspotClient) parseArchive(data []byte) ([]domain.HotspotRecord, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open hotspot archive: %w", err)
	}

	for _, file := range archive.File {
		if file.Name != hotspotsArchiveEntry {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", file.Name, err)
		}
		defer rc.Close()
		return c.parseSeries(rc)
	}
	return nil, fmt.Errorf("hotspot archive has no %s entry", hotspotsArchiveEntry)
}

// parseSeries reads the semicolon-separated time series, keeping only the
// monitored countries.
func (c *HotspotClient) parseSeries(r io.Reader) ([]domain.HotspotRecord, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read hotspot header: %w", err)
	}
	cols, err := columnIndex(header, "asap0_name", "date", "hs_code", "comment")
	if err != nil {
		return nil, fmt.Errorf("hotspot series: %w", err)
	}

	var records []domain.HotspotRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read hotspot row %d: %w", line, err)
		}

		country := strings.TrimSpace(row[cols["asap0_name"]])
		if _, ok := c.countries[country]; !ok {
			continue
		}
		date, err := time.Parse(time.DateOnly, row[cols["date"]])
		if err != nil {
			return nil, fmt.Errorf("hotspot row %d: bad date %q", line, row[cols["date"]])
		}
		code, err := strconv.Atoi(strings.TrimSpace(row[cols["hs_code"]]))
		if err != nil {
			return nil, fmt.Errorf("hotspot row %d: bad code %q", line, row[cols["hs_code"]])
		}
		records = append(records, domain.HotspotRecord{
			Country: country,
			Date:    date,
			Code:    code,
			Comment: strings.TrimSpace(row[cols["comment"]]),
		})
	}
	return records, nil
}

// columnIndex maps the named columns to their positions in the header.
func columnIndex(header []string, names ...string) (map[string]int, error) {
	index := make(map[string]int, len(names))
	for i, col := range header {
		index[strings.TrimSpace(col)] = i
	}
	out := make(map[string]int, len(names))
	for _, name := range names {
		i, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
		out[name] = i
	}
	return out, nil
}

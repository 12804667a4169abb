package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/fleet"
)

// metricsClient scrapes a collector's Prometheus exposition endpoint and
// extracts per-exporter rates from the configured metric family. Each sample
// in the family becomes one reading, keyed by the configured label.
type metricsClient struct {
	src    config.Source
	client *http.Client
}

func (c *metricsClient) ID() string { return c.src.ID }

// Fetch scrapes the endpoint and converts the configured family's samples
// into readings. Samples missing the exporter label are skipped; a missing
// family yields zero readings with a warning, since an empty fleet and a
// misnamed metric look the same on the wire.
func (c *metricsClient) Fetch(ctx context.Context) ([]fleet.Reading, error) {
	mfs, err := fetchMetrics(ctx, c.client, c.src.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("source %q: scrape %s: %w", c.src.ID, c.src.Endpoint, err)
	}

	mf, ok := mfs[c.src.Metric]
	if !ok {
		slog.Warn("source: metric family not present in scrape",
			"source", c.src.ID, "metric", c.src.Metric)
		return nil, nil
	}

	var readings []fleet.Reading
	for _, m := range mf.GetMetric() {
		entity := labelValue(m, c.src.Label)
		if entity == "" {
			slog.Warn("source: sample missing exporter label — skipping",
				"source", c.src.ID, "metric", c.src.Metric, "label", c.src.Label)
			continue
		}
		readings = append(readings, fleet.Reading{
			Entity:   fleet.EntityID(entity),
			RateBPS:  sampleValue(m),
			SourceID: c.src.ID,
		})
	}
	return readings, nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric
// families. A partial result with a non-fatal parse warning is still returned
// successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// labelValue returns the value of the named label on a sample, or "".
func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// sampleValue reads the numeric value regardless of the family's type.
func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	default:
		return 0
	}
}

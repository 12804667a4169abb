package normalize

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/fleetwatch/fleetwatch/internal/fleet"
)

// ErrMalformedInput is returned when a table cannot be normalized at all —
// an empty reading or a header missing a required column. Per-row problems
// never produce this error; bad rows are skipped and counted instead.
var ErrMalformedInput = errors.New("normalize: malformed input")

// Canonical column names after header normalization. Collector exports label
// these with spaces ("Exporter Address"); spaces become underscores.
const (
	colEntity = "Exporter_Address"
	colRate   = "Current_NetFlow_bps"
)

// Readings parses one source's tab-separated device-stats table into readings
// tagged with sourceID. It returns the readings plus the number of rows that
// were skipped as malformed (missing fields, empty address, non-numeric rate).
//
// The first non-blank line must be a header containing the exporter address
// and current-bps columns; otherwise the whole table is rejected with an
// error wrapping ErrMalformedInput.
func Readings(r io.Reader, sourceID string) ([]fleet.Reading, int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	header, err := readHeader(sc)
	if err != nil {
		return nil, 0, err
	}

	entityIdx, ok := header[colEntity]
	if !ok {
		return nil, 0, fmt.Errorf("%w: missing column %q", ErrMalformedInput, colEntity)
	}
	rateIdx, ok := header[colRate]
	if !ok {
		return nil, 0, fmt.Errorf("%w: missing column %q", ErrMalformedInput, colRate)
	}

	var (
		readings []fleet.Reading
		skipped  int
		line     = 1 // header was line 1
	)
	for sc.Scan() {
		line++
		row := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(row) == "" {
			continue
		}

		fields := strings.Split(row, "\t")
		if entityIdx >= len(fields) || rateIdx >= len(fields) {
			slog.Warn("normalize: row has too few fields — skipping",
				"source", sourceID, "line", line, "fields", len(fields))
			skipped++
			continue
		}

		entity := strings.TrimSpace(fields[entityIdx])
		if entity == "" {
			slog.Warn("normalize: row has empty exporter address — skipping",
				"source", sourceID, "line", line)
			skipped++
			continue
		}

		rate, err := strconv.ParseFloat(strings.TrimSpace(fields[rateIdx]), 64)
		if err != nil {
			slog.Warn("normalize: row has non-numeric rate — skipping",
				"source", sourceID, "line", line, "value", fields[rateIdx])
			skipped++
			continue
		}

		readings = append(readings, fleet.Reading{
			Entity:   fleet.EntityID(entity),
			RateBPS:  rate,
			SourceID: sourceID,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, skipped, fmt.Errorf("normalize: read table: %w", err)
	}
	return readings, skipped, nil
}

// readHeader consumes lines until the first non-blank one and returns a map
// from canonical column name to field index.
func readHeader(sc *bufio.Scanner) (map[string]int, error) {
	for sc.Scan() {
		row := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(row) == "" {
			continue
		}
		header := make(map[string]int)
		for i, name := range strings.Split(row, "\t") {
			header[canonical(name)] = i
		}
		return header, nil
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("normalize: read header: %w", err)
	}
	return nil, fmt.Errorf("%w: empty table", ErrMalformedInput)
}

// canonical trims a header cell and replaces embedded spaces with
// underscores, so "Exporter Address" and "Exporter_Address" match the same
// column.
func canonical(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

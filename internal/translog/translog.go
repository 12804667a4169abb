package translog

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/fleet"
)

// header makes each log self-describing: a row can be read back without
// re-deriving anything from snapshots.
var header = []string{"entity", "previous_status", "new_status", "detected_at"}

// Log appends transitions to a CSV file at a fixed path. The file is opened
// per batch in append mode, so external rotation (rename + recreate) is safe
// between cycles.
type Log struct {
	mu   sync.Mutex
	path string
}

// New returns a Log writing to path. The file is created on first append.
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the log file location.
func (l *Log) Path() string { return l.path }

// Append writes each transition as one CSV row, in the order given, flushing
// after every row. When a write fails, the rows already flushed remain in the
// file and the error reports how many of the batch were persisted.
//
// Append does not deduplicate: persisting the same batch twice produces
// duplicate rows. The scheduler's one-cycle-at-a-time loop is what prevents
// that in practice.
func (l *Log) Append(transitions []fleet.Transition) error {
	if len(transitions) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("translog: open %s: %w", l.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)

	// Write the header only when the file is brand new (or was truncated).
	if st, err := f.Stat(); err == nil && st.Size() == 0 {
		if err := w.Write(header); err == nil {
			w.Flush()
		}
		if err := w.Error(); err != nil {
			return fmt.Errorf("translog: write header: %w", err)
		}
	}

	for i, tr := range transitions {
		record := []string{
			string(tr.Entity),
			tr.From, // empty on an exporter's first appearance
			tr.To,
			tr.DetectedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err == nil {
			w.Flush()
		}
		if err := w.Error(); err != nil {
			return fmt.Errorf("translog: append %s: persisted %d of %d transitions: %w",
				l.path, i, len(transitions), err)
		}
	}
	return nil
}

package translog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/fleet"
)

var logNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func tempLog(t *testing.T) *Log {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "transitions.csv"))
}

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return rows
}

func TestAppend_WritesHeaderOnce(t *testing.T) {
	l := tempLog(t)

	batch := []fleet.Transition{
		{Entity: "10.0.0.1", From: fleet.StatusUp, To: fleet.StatusDown, DetectedAt: logNow},
	}
	if err := l.Append(batch); err != nil {
		t.Fatalf("first Append() error = %v", err)
	}
	if err := l.Append(batch); err != nil {
		t.Fatalf("second Append() error = %v", err)
	}

	rows := readAll(t, l.Path())
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3 (header + 2 records)", len(rows))
	}
	if rows[0][0] != "entity" || rows[0][3] != "detected_at" {
		t.Errorf("header = %v", rows[0])
	}
	for _, row := range rows[1:] {
		if row[0] == "entity" {
			t.Error("header written more than once")
		}
	}
}

func TestAppend_RecordFields(t *testing.T) {
	l := tempLog(t)

	err := l.Append([]fleet.Transition{
		{Entity: "10.0.0.1", From: fleet.StatusUp, To: fleet.StatusDown, DetectedAt: logNow},
		{Entity: "10.0.0.2", From: "", To: fleet.StatusUp, DetectedAt: logNow},
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	rows := readAll(t, l.Path())
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	first := rows[1]
	if first[0] != "10.0.0.1" || first[1] != "up" || first[2] != "down" {
		t.Errorf("first record = %v", first)
	}
	if first[3] != "2026-03-14T09:30:00Z" {
		t.Errorf("detected_at = %q, want RFC3339 UTC", first[3])
	}

	// Newly observed exporter: previous_status column is empty.
	second := rows[2]
	if second[1] != "" {
		t.Errorf("previous_status for first appearance = %q, want empty", second[1])
	}
	if second[2] != "up" {
		t.Errorf("new_status = %q, want up", second[2])
	}
}

func TestAppend_EmptyBatchNoFile(t *testing.T) {
	l := tempLog(t)
	if err := l.Append(nil); err != nil {
		t.Fatalf("Append(nil) error = %v", err)
	}
	if _, err := os.Stat(l.Path()); !os.IsNotExist(err) {
		t.Error("empty batch should not create the log file")
	}
}

func TestAppend_PreservesOrder(t *testing.T) {
	l := tempLog(t)

	err := l.Append([]fleet.Transition{
		{Entity: "10.0.0.1", To: fleet.StatusUp, DetectedAt: logNow},
		{Entity: "10.0.0.2", To: fleet.StatusDown, DetectedAt: logNow},
		{Entity: "10.0.0.3", To: fleet.StatusUp, DetectedAt: logNow},
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	rows := readAll(t, l.Path())
	want := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	for i, w := range want {
		if rows[i+1][0] != w {
			t.Errorf("row %d entity = %q, want %q", i+1, rows[i+1][0], w)
		}
	}
}

func TestAppend_UnwritablePath(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "no-such-dir", "transitions.csv"))
	err := l.Append([]fleet.Transition{
		{Entity: "10.0.0.1", To: fleet.StatusUp, DetectedAt: logNow},
	})
	if err == nil {
		t.Fatal("expected error for unwritable path, got nil")
	}
}

func TestAppend_SurvivesRotation(t *testing.T) {
	l := tempLog(t)
	batch := []fleet.Transition{
		{Entity: "10.0.0.1", From: fleet.StatusUp, To: fleet.StatusDown, DetectedAt: logNow},
	}
	if err := l.Append(batch); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// Simulate logrotate between cycles.
	if err := os.Rename(l.Path(), l.Path()+".1"); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	if err := l.Append(batch); err != nil {
		t.Fatalf("Append() after rotation error = %v", err)
	}
	rows := readAll(t, l.Path())
	if len(rows) != 2 {
		t.Fatalf("got %d rows in fresh file, want 2 (header + record)", len(rows))
	}
	if rows[0][0] != "entity" {
		t.Errorf("fresh file should start with a header, got %v", rows[0])
	}
}

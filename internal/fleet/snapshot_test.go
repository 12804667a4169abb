package fleet

import (
	"math"
	"math/rand"
	"testing"
)

func TestAggregate_SumsAcrossSources(t *testing.T) {
	// Scenario: collector A and collector B both watch 10.0.0.1.
	readings := []Reading{
		{Entity: "10.0.0.1", RateBPS: 500, SourceID: "fc-a"},
		{Entity: "10.0.0.1", RateBPS: 300, SourceID: "fc-b"},
		{Entity: "10.0.0.2", RateBPS: 0, SourceID: "fc-b"},
	}
	snap := Aggregate(readings)

	if snap.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", snap.Len())
	}
	e1, ok := snap.Get("10.0.0.1")
	if !ok {
		t.Fatal("10.0.0.1 missing from snapshot")
	}
	if e1.RateBPS != 800 {
		t.Errorf("10.0.0.1 rate = %v, want 800 (summed, not overwritten)", e1.RateBPS)
	}
	if e1.Status != StatusUp {
		t.Errorf("10.0.0.1 status = %q, want %q", e1.Status, StatusUp)
	}
	e2, _ := snap.Get("10.0.0.2")
	if e2.Status != StatusDown {
		t.Errorf("10.0.0.2 status = %q, want %q", e2.Status, StatusDown)
	}
}

func TestAggregate_OrderIndependent(t *testing.T) {
	readings := []Reading{
		{Entity: "10.0.0.3", RateBPS: 10, SourceID: "a"},
		{Entity: "10.0.0.1", RateBPS: 20, SourceID: "b"},
		{Entity: "10.0.0.2", RateBPS: 0, SourceID: "a"},
		{Entity: "10.0.0.1", RateBPS: 5, SourceID: "c"},
		{Entity: "10.0.0.3", RateBPS: 1, SourceID: "b"},
	}
	want := Aggregate(readings)

	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 10; trial++ {
		shuffled := make([]Reading, len(readings))
		copy(shuffled, readings)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		got := Aggregate(shuffled)
		if got.Len() != want.Len() {
			t.Fatalf("trial %d: Len() = %d, want %d", trial, got.Len(), want.Len())
		}
		for i, e := range got.Entities() {
			w := want.Entities()[i]
			if e != w {
				t.Errorf("trial %d: entity[%d] = %+v, want %+v", trial, i, e, w)
			}
		}
	}
}

func TestAggregate_SortedByID(t *testing.T) {
	snap := Aggregate([]Reading{
		{Entity: "10.0.0.9", RateBPS: 1},
		{Entity: "10.0.0.1", RateBPS: 1},
		{Entity: "10.0.0.5", RateBPS: 1},
	})
	ents := snap.Entities()
	for i := 1; i < len(ents); i++ {
		if ents[i-1].ID >= ents[i].ID {
			t.Fatalf("entities not sorted: %q before %q", ents[i-1].ID, ents[i].ID)
		}
	}
}

func TestAggregate_Empty(t *testing.T) {
	snap := Aggregate(nil)
	if snap.Len() != 0 {
		t.Errorf("Len() = %d, want 0", snap.Len())
	}
	if ents := snap.Entities(); len(ents) != 0 {
		t.Errorf("Entities() = %v, want empty", ents)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want string
	}{
		{"positive", 1500, StatusUp},
		{"tiny positive", 0.001, StatusUp},
		{"zero", 0, StatusDown},
		{"negative", -42, StatusDown},
		{"huge", math.MaxFloat64, StatusUp},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := StatusFor(tc.rate); got != tc.want {
				t.Errorf("StatusFor(%v) = %q, want %q", tc.rate, got, tc.want)
			}
		})
	}
}

func TestSnapshot_NilReceivers(t *testing.T) {
	var s *Snapshot
	if s.Len() != 0 {
		t.Errorf("nil Len() = %d, want 0", s.Len())
	}
	if _, ok := s.Get("10.0.0.1"); ok {
		t.Error("nil Get() returned ok = true")
	}
	if ents := s.Entities(); ents != nil {
		t.Errorf("nil Entities() = %v, want nil", ents)
	}
}

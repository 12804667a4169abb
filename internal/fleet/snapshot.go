package fleet

import "sort"

// Status values assigned to every entity in a classified snapshot.
const (
	StatusUp   = "up"
	StatusDown = "down"
)

// EntityID identifies a monitored exporter by its network address.
// Unique within one snapshot.
type EntityID string

// Reading is one raw rate observation for a single exporter, tagged with the
// source it came from. Readings are transient — they exist only between the
// collection and aggregation phases of a cycle.
type Reading struct {
	Entity   EntityID
	RateBPS  float64
	SourceID string
}

// Entity is one exporter's aggregated, classified view within a snapshot.
type Entity struct {
	ID      EntityID
	RateBPS float64
	Status  string
}

// Snapshot is the fleet-wide view produced by one poll cycle: every exporter
// observed this cycle, rates summed across sources, sorted by ID ascending.
// A Snapshot is immutable once built.
type Snapshot struct {
	entities []Entity
	index    map[EntityID]int
}

// Aggregate merges the cycle's readings from all sources into one Snapshot.
//
// Readings for the same exporter are summed — redundant collectors watching
// the same link each contribute their measured rate. The result is sorted by
// exporter address, so the same multiset of readings yields an identical
// snapshot regardless of arrival order. Zero readings produce an empty
// snapshot, which is valid: the scheduler decides what an empty cycle means.
func Aggregate(readings []Reading) *Snapshot {
	totals := make(map[EntityID]float64, len(readings))
	for _, r := range readings {
		totals[r.Entity] += r.RateBPS
	}

	entities := make([]Entity, 0, len(totals))
	for id, rate := range totals {
		entities = append(entities, Entity{
			ID:      id,
			RateBPS: rate,
			Status:  StatusFor(rate),
		})
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })

	index := make(map[EntityID]int, len(entities))
	for i, e := range entities {
		index[e.ID] = i
	}
	return &Snapshot{entities: entities, index: index}
}

// StatusFor classifies a summed rate: up iff the exporter is actually sending
// flow data. Zero and negative rates are down.
func StatusFor(rateBPS float64) string {
	if rateBPS > 0 {
		return StatusUp
	}
	return StatusDown
}

// Entities returns the snapshot's entities in ID-ascending order.
// Callers must treat the returned slice as read-only.
func (s *Snapshot) Entities() []Entity {
	if s == nil {
		return nil
	}
	return s.entities
}

// Get returns the entity with the given ID, if present.
func (s *Snapshot) Get(id EntityID) (Entity, bool) {
	if s == nil {
		return Entity{}, false
	}
	i, ok := s.index[id]
	if !ok {
		return Entity{}, false
	}
	return s.entities[i], true
}

// Len returns the number of entities in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entities)
}

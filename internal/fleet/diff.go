package fleet

import "time"

// Transition records one exporter's status change between two consecutive
// cycles. From is empty when the exporter was observed for the first time.
type Transition struct {
	Entity     EntityID
	From       string // previous status; "" when the exporter is newly observed
	To         string
	DetectedAt time.Time
}

// Diff compares the current cycle's snapshot against the previous cycle's and
// returns the status transitions, ordered by exporter address ascending.
//
// A nil previous snapshot means this is the first completed cycle: no
// transitions are emitted and current simply becomes the baseline, so a cold
// start never floods the log with new-device events.
//
// An exporter present in both snapshots yields a transition only when its
// status changed. An exporter appearing for the first time yields a
// transition with an empty From. An exporter that stopped reporting entirely
// is treated as having gone down — a transition is emitted unless it was
// already down.
//
// Diff is a pure function of its inputs; it never mutates either snapshot.
func Diff(current, previous *Snapshot, now time.Time) []Transition {
	if previous == nil {
		return nil
	}

	cur, prev := current.Entities(), previous.Entities()
	var out []Transition

	// Both slices are sorted by ID, so a single merge walk visits every
	// exporter from either cycle in ascending order.
	i, j := 0, 0
	for i < len(cur) || j < len(prev) {
		switch {
		case j >= len(prev) || (i < len(cur) && cur[i].ID < prev[j].ID):
			// Newly observed exporter.
			out = append(out, Transition{
				Entity:     cur[i].ID,
				To:         cur[i].Status,
				DetectedAt: now,
			})
			i++

		case i >= len(cur) || prev[j].ID < cur[i].ID:
			// Exporter stopped reporting: implicit down.
			if prev[j].Status != StatusDown {
				out = append(out, Transition{
					Entity:     prev[j].ID,
					From:       prev[j].Status,
					To:         StatusDown,
					DetectedAt: now,
				})
			}
			j++

		default:
			if cur[i].Status != prev[j].Status {
				out = append(out, Transition{
					Entity:     cur[i].ID,
					From:       prev[j].Status,
					To:         cur[i].Status,
					DetectedAt: now,
				})
			}
			i++
			j++
		}
	}
	return out
}

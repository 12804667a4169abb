// Package fleet holds the core per-cycle pipeline: aggregating raw
// per-source readings into a classified snapshot and diffing consecutive
// snapshots into an ordered list of status transitions.
//
// Aggregate sums duplicate contributions (two collectors watching the same
// exporter add up, never overwrite) and sorts by exporter address so the
// same multiset of readings always yields the same snapshot. Diff is a pure
// function of two snapshots; the scheduler in internal/runner owns the
// "previous snapshot" state between cycles.
package fleet

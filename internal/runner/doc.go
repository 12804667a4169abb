// Package runner drives the poll cycle: collect readings from every
// configured collector, aggregate and classify them into a fleet snapshot,
// diff against the previous cycle, persist the transitions, then sleep the
// configured interval. The runner is the sole owner of the previous-cycle
// snapshot; everything downstream sees completed cycles only.
package runner

// Package normalize turns one source's raw tab-separated device-stats table
// into typed fleet.Reading values. It selects only the exporter address and
// current-bps columns, canonicalises header names, and isolates failures per
// row: a malformed row is skipped, a malformed header fails the whole table.
package normalize

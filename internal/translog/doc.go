// Package translog persists status transitions to a durable, append-only CSV
// file. Each row is written and flushed independently, so a failure halfway
// through a batch never loses the rows already appended. The header is
// written once, when the file is first created.
package translog

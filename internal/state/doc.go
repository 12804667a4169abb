// Package state holds the latest classified fleet snapshot and a bounded
// ring of recent transitions for read-only consumers (the status API and the
// WebSocket stream). The scheduler replaces the snapshot wholesale once per
// cycle; readers always see a complete, consistent cycle.
package state

// Package stream broadcasts status transitions to WebSocket clients as they
// are detected — a live tail of the durable transition log. Clients receive
// the current fleet snapshot on connect, then one transitions message per
// cycle that detected any.
package stream

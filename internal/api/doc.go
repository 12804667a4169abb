// Package api serves the read-only status endpoints: fleet health summary,
// per-exporter state, and the recent transition ring. All data comes from the
// state holder; the API never touches the poll loop.
package api

// Package source provides the per-collector clients the scheduler polls each
// cycle. Every client returns the collector's current per-exporter readings.
//
// Two transports are implemented: "ssh" reads the device-stats table over
// SFTP and normalizes it (ssh.go), "metrics" scrapes a Prometheus exposition
// endpoint publishing per-exporter rates as a labelled family (metrics.go).
// Factory: New(config.Source) returns the correct Client.
//
// HTTP authentication (API key, bearer token, basic) is handled by the shared
// authRoundTripper in source.go; the metrics client receives a pre-configured
// *http.Client from New().
package source

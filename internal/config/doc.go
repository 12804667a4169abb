// Package config loads and validates the fleetwatch YAML configuration and
// watches it for changes. Secrets (SSH passwords, API keys, webhook URLs)
// are never stored in the file itself — the config names environment
// variables and the accessors resolve them at use time.
package config

// Package notify delivers status-transition events to configured webhooks.
//
// Delivery is best-effort: failures are logged and never propagate back to
// the poll loop. Webhook URLs are resolved from the environment so they can
// be rotated without editing the config file.
package notify

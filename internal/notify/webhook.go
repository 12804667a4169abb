package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/api"
	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/fleet"
)

// Notifier fans transition batches out to the configured webhook targets.
type Notifier struct {
	webhooks []config.WebhookConfig
	client   *http.Client
}

// New creates a Notifier for the given webhook targets.
func New(webhooks []config.WebhookConfig) *Notifier {
	return &Notifier{
		webhooks: webhooks,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Publish delivers the cycle's transitions to every configured webhook.
// Empty batches produce no deliveries.
func (n *Notifier) Publish(_ *fleet.Snapshot, transitions []fleet.Transition) {
	if len(transitions) == 0 || len(n.webhooks) == 0 {
		return
	}
	n.deliver(transitions)
}

// deliver sends one notification per webhook target for the batch.
// Errors are logged but do not affect the caller.
func (n *Notifier) deliver(transitions []fleet.Transition) {
	for _, wh := range n.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = n.sendSlack(url, transitions)
		case "teams":
			err = n.sendTeams(url, transitions)
		case "http":
			err = n.sendHTTP(url, transitions)
		default:
			slog.Warn("notify: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("notify: webhook delivery failed",
				"type", wh.Type,
				"transitions", len(transitions),
				"err", err,
			)
		} else {
			slog.Debug("notify: webhook delivered",
				"type", wh.Type,
				"transitions", len(transitions),
			)
		}
	}
}

func (n *Notifier) sendSlack(url string, transitions []fleet.Transition) error {
	body, _ := json.Marshal(map[string]string{
		"text": summaryText(transitions),
	})
	return n.post(url, body)
}

func (n *Notifier) sendTeams(url string, transitions []fleet.Transition) error {
	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": batchColor(transitions),
		"summary":    fmt.Sprintf("%d exporter status change(s)", len(transitions)),
		"title":      "Fleetwatch: exporter status changes",
		"text":       summaryText(transitions),
	}
	body, _ := json.Marshal(payload)
	return n.post(url, body)
}

func (n *Notifier) sendHTTP(url string, transitions []fleet.Transition) error {
	out := make([]api.TransitionResponse, 0, len(transitions))
	for _, tr := range transitions {
		out = append(out, api.ToTransitionResponse(tr))
	}
	body, _ := json.Marshal(map[string]interface{}{"transitions": out})
	return n.post(url, body)
}

func (n *Notifier) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// summaryText renders one line per transition.
func summaryText(transitions []fleet.Transition) string {
	var b strings.Builder
	for i, tr := range transitions {
		if i > 0 {
			b.WriteByte('\n')
		}
		from := tr.From
		if from == "" {
			from = "new"
		}
		fmt.Fprintf(&b, "%s %s: %s to %s", statusLabel(tr.To), tr.Entity, from, tr.To)
	}
	return b.String()
}

func statusLabel(to string) string {
	if to == fleet.StatusDown {
		return "*[DOWN]*"
	}
	return "*[UP]*"
}

// batchColor is red when any entity went down, green otherwise.
func batchColor(transitions []fleet.Transition) string {
	for _, tr := range transitions {
		if tr.To == fleet.StatusDown {
			return "FF4F6A"
		}
	}
	return "36C98E"
}

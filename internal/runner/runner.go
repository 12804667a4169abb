package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/fleet"
	"github.com/fleetwatch/fleetwatch/internal/source"
	"github.com/fleetwatch/fleetwatch/internal/state"
)

// Appender persists one cycle's transitions. Implemented by translog.Log.
type Appender interface {
	Append([]fleet.Transition) error
}

// Publisher is notified after every completed cycle. Implemented by the
// WebSocket hub and the webhook notifier. Publish must not block the cycle.
type Publisher interface {
	Publish(snap *fleet.Snapshot, transitions []fleet.Transition)
}

// Runner owns the cycle loop and the previous-cycle snapshot.
//
// Sources are polled sequentially within a cycle — collectors are commonly
// SSH rate-limited, and sequential polling avoids overloading them. Only the
// collection order is sequential; aggregation is order-independent either way.
type Runner struct {
	interval time.Duration
	log      Appender
	state    *state.State
	pubs     []Publisher

	mu      sync.Mutex
	clients []source.Client

	prev *fleet.Snapshot // previous cycle's snapshot; nil before the first cycle
	now  func() time.Time
}

// New creates a Runner polling the given clients every interval.
func New(interval time.Duration, clients []source.Client, log Appender, st *state.State, pubs ...Publisher) *Runner {
	return &Runner{
		interval: interval,
		log:      log,
		state:    st,
		pubs:     pubs,
		clients:  clients,
		now:      time.Now,
	}
}

// UpdateSources replaces the polled client set. The change takes effect at
// the start of the next cycle; the cycle in flight finishes with the old set.
func (r *Runner) UpdateSources(clients []source.Client) {
	r.mu.Lock()
	r.clients = clients
	r.mu.Unlock()
	slog.Info("runner: source set updated", "sources", len(clients))
}

// Run executes cycles until ctx is cancelled. The first cycle starts
// immediately; each subsequent cycle starts one interval after the previous
// one completed.
func (r *Runner) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		r.Cycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.interval):
		}
	}
}

// Cycle performs one complete poll-aggregate-diff-persist pass.
//
// A collector that cannot be reached contributes zero readings and the cycle
// proceeds — absence of data is not a down verdict for its exporters unless
// no collector reports them at all. A persistence failure is logged and
// counted but the in-memory baseline still advances, so later diffs stay
// correct; the operator investigates the gap in the durable log.
func (r *Runner) Cycle(ctx context.Context) {
	r.mu.Lock()
	clients := r.clients
	r.mu.Unlock()

	start := r.now()
	var (
		readings []fleet.Reading
		failed   int
	)
	for _, c := range clients {
		if ctx.Err() != nil {
			return
		}
		got, err := c.Fetch(ctx)
		if err != nil {
			slog.Warn("runner: collector fetch failed — no readings this cycle",
				"source", c.ID(), "err", err)
			failed++
			continue
		}
		slog.Debug("runner: collected readings", "source", c.ID(), "readings", len(got))
		readings = append(readings, got...)
	}

	snap := fleet.Aggregate(readings)
	now := r.now()
	transitions := fleet.Diff(snap, r.prev, now)

	if len(transitions) > 0 {
		if err := r.log.Append(transitions); err != nil {
			slog.Error("runner: persisting transitions failed — durable log has a gap",
				"transitions", len(transitions), "err", err)
			r.state.RecordPersistFailure()
		}
	}

	r.prev = snap
	r.state.Record(snap, transitions, now)

	for _, p := range r.pubs {
		p.Publish(snap, transitions)
	}

	slog.Info("runner: cycle complete",
		"sources", len(clients),
		"sources_failed", failed,
		"entities", snap.Len(),
		"transitions", len(transitions),
		"elapsed", now.Sub(start).Round(time.Millisecond),
	)
}

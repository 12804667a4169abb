package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/fleet"
	"github.com/fleetwatch/fleetwatch/internal/state"
)

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads fleet state from the state holder and returns JSON responses.
type Handler struct {
	state *state.State
	mux   *http.ServeMux
}

// New creates a Handler wired to the given state holder, registers all
// routes, and wraps them with API-key auth when configured.
func New(st *state.State, auth config.APIAuthConfig) http.Handler {
	h := &Handler{state: st, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/entities", h.listEntities)
	h.mux.HandleFunc("/api/v1/entities/", h.getEntity) // subtree — extracts {id}
	h.mux.HandleFunc("/api/v1/transitions", h.transitions)

	return requireKey(auth, h.mux)
}

// requireKey enforces the configured API key on every request.
// Mode "none" (or an empty configured key) disables the check.
func requireKey(auth config.APIAuthConfig, next http.Handler) http.Handler {
	if auth.Mode != "apikey" {
		return next
	}
	header := auth.EffectiveHeader()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := auth.Key()
		got := r.Header.Get(header)
		if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			jsonErr(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health — up/down counts and fleet availability.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthResponse{
		Cycles:          h.state.Cycles(),
		PersistFailures: h.state.PersistFailures(),
	}
	snap, at, ok := h.state.Fleet()
	if ok {
		resp.LastCycle = at.UTC().Format(time.RFC3339)
		for _, e := range snap.Entities() {
			if e.Status == fleet.StatusUp {
				resp.UpCount++
			} else {
				resp.DownCount++
			}
		}
		resp.EntityCount = snap.Len()
		if resp.EntityCount > 0 {
			resp.AvailabilityPct = float64(resp.UpCount) / float64(resp.EntityCount) * 100
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// listEntities returns GET /api/v1/entities — the latest classified fleet.
func (h *Handler) listEntities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap, _, _ := h.state.Fleet()
	out := make([]EntityResponse, 0, snap.Len())
	for _, e := range snap.Entities() {
		out = append(out, toEntityResponse(e))
	}
	jsonResp(w, http.StatusOK, out)
}

// getEntity returns GET /api/v1/entities/{id} — a single exporter.
func (h *Handler) getEntity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/entities/")
	if id == "" {
		h.listEntities(w, r)
		return
	}

	snap, _, ok := h.state.Fleet()
	if !ok {
		jsonErr(w, http.StatusNotFound, "no completed cycle yet")
		return
	}
	e, ok := snap.Get(fleet.EntityID(id))
	if !ok {
		jsonErr(w, http.StatusNotFound, "exporter not found")
		return
	}
	jsonResp(w, http.StatusOK, toEntityResponse(e))
}

// transitions returns GET /api/v1/transitions — the retained ring,
// oldest first.
func (h *Handler) transitions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	recent := h.state.Recent()
	out := make([]TransitionResponse, 0, len(recent))
	for _, tr := range recent {
		out = append(out, ToTransitionResponse(tr))
	}
	jsonResp(w, http.StatusOK, out)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func toEntityResponse(e fleet.Entity) EntityResponse {
	return EntityResponse{
		Entity:  string(e.ID),
		RateBPS: e.RateBPS,
		Status:  e.Status,
	}
}

// ToTransitionResponse maps a transition to its JSON representation.
// Shared with the WebSocket stream so both surfaces emit identical records.
func ToTransitionResponse(tr fleet.Transition) TransitionResponse {
	return TransitionResponse{
		Entity:         string(tr.Entity),
		PreviousStatus: tr.From,
		NewStatus:      tr.To,
		DetectedAt:     tr.DetectedAt.UTC().Format(time.RFC3339),
	}
}

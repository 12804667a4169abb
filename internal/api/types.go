package api

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	EntityCount     int     `json:"entity_count"`
	UpCount         int     `json:"up_count"`
	DownCount       int     `json:"down_count"`
	AvailabilityPct float64 `json:"availability_pct"`
	Cycles          uint64  `json:"cycles"`
	PersistFailures uint64  `json:"persist_failures"`
	LastCycle       string  `json:"last_cycle,omitempty"` // RFC3339; empty before the first cycle
}

// EntityResponse is one exporter in GET /api/v1/entities or
// GET /api/v1/entities/{id}.
type EntityResponse struct {
	Entity  string  `json:"entity"`
	RateBPS float64 `json:"rate_bps"`
	Status  string  `json:"status"`
}

// TransitionResponse is one entry in GET /api/v1/transitions.
type TransitionResponse struct {
	Entity         string `json:"entity"`
	PreviousStatus string `json:"previous_status,omitempty"` // absent on first appearance
	NewStatus      string `json:"new_status"`
	DetectedAt     string `json:"detected_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

package handlers

import (
	"net/http"

	"github.com/hairizuan-noorazman/browser-steps/dispatcher"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Browser string `json:"browser,omitempty"`
}

// StateReporter exposes the browser lifecycle state.
type StateReporter interface {
	State() dispatcher.State
}

// HealthHandler reports liveness and, when known, the browser state.
func HealthHandler(states StateReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "healthy"}
		if states != nil {
			resp.Browser = states.State().String()
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

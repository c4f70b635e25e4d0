package httpx

import "net/http"

// healthStatus is the liveness check payload.
type healthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// healthHandler answers readiness and liveness checks. It reports process health
// only; job store reachability surfaces through the status endpoint instead.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}
	WriteJSON(w, http.StatusOK, healthStatus{Status: "ok", Service: "reportgen"})
}

// pkg/httpserver/probes.go
package httpserver

import (
	"encoding/json"
	"net/http"
)

type probeStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func writeProbe(w http.ResponseWriter, code int, st probeStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(st)
}

func liveness(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, http.StatusOK, probeStatus{Status: "ok"})
}

func readiness(check ReadyChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if err := check(); err != nil {
			writeProbe(w, http.StatusServiceUnavailable, probeStatus{Status: "not_ready", Reason: err.Error()})
			return
		}
		writeProbe(w, http.StatusOK, probeStatus{Status: "ready"})
	}
}

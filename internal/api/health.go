package api

import (
	"net/http"
	"time"
)

const probeTimeout = 5 * time.Second

// handleHealth delegates entirely to the Prober's own handler, which
// implements spec.md's liveness-fast-path vs full-report split.
func (d Deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	if d.Prober == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	d.Prober.Handler(probeTimeout).ServeHTTP(w, r)
}

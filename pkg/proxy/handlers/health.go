package handlers

import "net/http"

// Health handles GET / and GET /health: a liveness probe that always
// answers 200 as long as the process is serving requests at all.
func (d *Deps) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// Ready handles GET /ready: readiness depends on at least one upstream
// account being healthy enough to serve a request.
func (d *Deps) Ready(w http.ResponseWriter, r *http.Request) {
	accounts, err := d.Pool.ListAccounts(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "error", "message": err.Error()})
		return
	}
	for _, a := range accounts {
		if a.IsActive {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "healthy_accounts": 1})
			return
		}
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "healthy_accounts": 0})
}

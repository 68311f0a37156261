package handlers

import (
	"net/http"
)

// HandlePing handles GET /api/ping
func (a *API) HandlePing(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package handlers

import (
	"net/http"

	"betpool/internal/logger"
)

// HandlePredictions handles GET /api/predictions
func (a *API) HandlePredictions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	open, err := a.store.ListOpen()
	if err != nil {
		logger.Error(0, "predictions_list_failed", err)
		respondWithError(w, "Failed to list predictions", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, open)
}

package handlers

import (
	"net/http"

	"betpool/internal/logger"
)

// HandleHistory handles GET /api/history, the user's balance audit trail.
func (a *API) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, err := a.currentUser(r)
	if err != nil {
		respondWithError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	txs, err := a.store.RecentTransactions(user.ID, 50)
	if err != nil {
		logger.Error(user.ID, "history_failed", err)
		respondWithError(w, "Failed to fetch history", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, txs)
}

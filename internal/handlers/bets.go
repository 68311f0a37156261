package handlers

import (
	"encoding/json"
	"net/http"

	"betpool/internal/logger"
)

// PlaceBetRequest is the request body for placing a bet
type PlaceBetRequest struct {
	PredictionID int64  `json:"prediction_id"`
	Choice       string `json:"choice"`
	Amount       int64  `json:"amount"`
}

// PlaceBetResponse is the response after placing a bet
type PlaceBetResponse struct {
	NewBalance int64 `json:"new_balance"`
	PoolA      int64 `json:"pool_a"`
	PoolB      int64 `json:"pool_b"`
}

// HandleBets handles POST /api/bets
func (a *API) HandleBets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, err := a.currentUser(r)
	if err != nil {
		respondWithError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := a.store.PlaceBet(r.Context(), user.ID, req.PredictionID, req.Choice, req.Amount); err != nil {
		logger.Debug(user.ID, "api_bet_rejected", err.Error())
		respondWithError(w, err.Error(), statusForError(err))
		return
	}

	poolA, poolB, err := a.store.PoolTotals(r.Context(), req.PredictionID)
	if err != nil {
		respondWithError(w, "Failed to get pool totals", http.StatusInternalServerError)
		return
	}

	tokens, _, err := a.store.GetBalance(user.ID)
	if err != nil {
		respondWithError(w, "Failed to get balance", http.StatusInternalServerError)
		return
	}

	logger.Debug(user.ID, "api_bet_placed", "")
	respondJSON(w, http.StatusOK, PlaceBetResponse{
		NewBalance: tokens,
		PoolA:      poolA,
		PoolB:      poolB,
	})
}

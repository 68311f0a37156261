package handlers

import (
	"net/http"

	"betpool/internal/logger"
	"betpool/internal/storage"
)

// MeResponse is the profile payload for the authenticated user.
type MeResponse struct {
	ID            int64                    `json:"id"`
	FirstName     string                   `json:"first_name"`
	Username      string                   `json:"username,omitempty"`
	Balance       int64                    `json:"balance"`
	Points        int64                    `json:"points"`
	Role          string                   `json:"role"`
	ReferralCount int64                    `json:"referral_count"`
	Bets          []storage.BetHistoryItem `json:"bets"`
}

// HandleMe handles GET /api/me
func (a *API) HandleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, err := a.currentUser(r)
	if err != nil {
		respondWithError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	bets, err := a.store.GetUserBets(user.ID)
	if err != nil {
		logger.Error(user.ID, "me_bets_failed", err)
		bets = []storage.BetHistoryItem{}
	}

	respondJSON(w, http.StatusOK, MeResponse{
		ID:            user.ID,
		FirstName:     user.FirstName,
		Username:      user.Username,
		Balance:       user.Balance,
		Points:        user.Points,
		Role:          user.Role.String(),
		ReferralCount: user.ReferralCount,
		Bets:          bets,
	})
}

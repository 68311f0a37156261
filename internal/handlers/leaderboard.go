package handlers

import (
	"net/http"

	"betpool/internal/logger"
)

// LeaderboardEntry is one row of the public leaderboard.
type LeaderboardEntry struct {
	FirstName string `json:"first_name"`
	Balance   int64  `json:"balance"`
	Points    int64  `json:"points"`
}

// HandleLeaderboard handles GET /api/leaderboard
func (a *API) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	users, err := a.store.TopUsers(20)
	if err != nil {
		logger.Error(0, "leaderboard_failed", err)
		respondWithError(w, "Failed to fetch leaderboard", http.StatusInternalServerError)
		return
	}

	entries := make([]LeaderboardEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, LeaderboardEntry{
			FirstName: u.FirstName,
			Balance:   u.Balance,
			Points:    u.Points,
		})
	}
	respondJSON(w, http.StatusOK, entries)
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"betpool/internal/auth"
	"betpool/internal/storage"
)

// API serves the Telegram web-app endpoints on top of the store. Handlers
// translate the store's error kinds into HTTP status codes and never leak
// internals.
type API struct {
	store *storage.Store
}

// NewAPI creates the handler set.
func NewAPI(store *storage.Store) *API {
	return &API{store: store}
}

// Routes registers all endpoints on mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ping", a.HandlePing)
	mux.HandleFunc("/me", a.HandleMe)
	mux.HandleFunc("/predictions", a.HandlePredictions)
	mux.HandleFunc("/bets", a.HandleBets)
	mux.HandleFunc("/leaderboard", a.HandleLeaderboard)
	mux.HandleFunc("/history", a.HandleHistory)
}

// currentUser resolves the authenticated Telegram ID to a user record.
func (a *API) currentUser(r *http.Request) (*storage.User, error) {
	telegramID, ok := auth.TelegramIDFromContext(r.Context())
	if !ok {
		return nil, errors.New("user not in context")
	}
	user, err := a.store.GetUserByTelegramID(telegramID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, storage.ErrNotFound
	}
	return user, nil
}

// statusForError maps the expected error kinds onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, storage.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, storage.ErrDuplicateBet):
		return http.StatusConflict
	case errors.Is(err, storage.ErrInvalidAmount), errors.Is(err, storage.ErrInvalidChoice):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrInvalidState), errors.Is(err, storage.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

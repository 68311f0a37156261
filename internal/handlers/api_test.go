package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"betpool/internal/auth"
	"betpool/internal/storage"
)

func newTestAPI(t *testing.T) (*API, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:", storage.Limits{
		MinBet:        10,
		MaxBet:        100,
		WelcomeTokens: 100,
		WelcomePoints: 50,
	})
	if err != nil {
		t.Fatalf("Failed to initialize test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewAPI(store), store
}

// authedRequest builds a request carrying telegramID the way the auth
// middleware would after validating initData.
func authedRequest(method, path string, telegramID int64, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	ctx := context.WithValue(req.Context(), auth.UserIDKey, telegramID)
	return req.WithContext(ctx)
}

func makeOpenPrediction(t *testing.T, store *storage.Store, creatorTelegramID int64) int64 {
	t.Helper()
	creator, err := store.CreateUser(creatorTelegramID, "creator", "Creator")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := store.EnsureOwner(creatorTelegramID); err != nil {
		t.Fatalf("EnsureOwner failed: %v", err)
	}
	id, err := store.CreateDraft(creator.ID, "Will it rain tomorrow?")
	if err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}
	if err := store.SetOptions(id, "yes", "no"); err != nil {
		t.Fatalf("SetOptions failed: %v", err)
	}
	if err := store.SetDeadline(id, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SetDeadline failed: %v", err)
	}
	return id
}

func TestHandlePing(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := httptest.NewRecorder()
	api.HandlePing(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestHandleMe(t *testing.T) {
	api, store := newTestAPI(t)
	if _, err := store.CreateUser(111, "alice", "Alice"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	rec := httptest.NewRecorder()
	api.HandleMe(rec, authedRequest(http.MethodGet, "/me", 111, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp MeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.FirstName != "Alice" || resp.Balance != 100 || resp.Points != 50 {
		t.Errorf("Unexpected profile: %+v", resp)
	}

	// Unknown Telegram ID is unauthorized.
	rec = httptest.NewRecorder()
	api.HandleMe(rec, authedRequest(http.MethodGet, "/me", 999, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for unknown user, got %d", rec.Code)
	}
}

func TestHandleBets(t *testing.T) {
	api, store := newTestAPI(t)
	predictionID := makeOpenPrediction(t, store, 200)
	if _, err := store.CreateUser(201, "bob", "Bob"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	body, _ := json.Marshal(PlaceBetRequest{PredictionID: predictionID, Choice: "yes", Amount: 40})
	rec := httptest.NewRecorder()
	api.HandleBets(rec, authedRequest(http.MethodPost, "/bets", 201, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp PlaceBetResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.NewBalance != 60 || resp.PoolA != 40 || resp.PoolB != 0 {
		t.Errorf("Unexpected response: %+v", resp)
	}

	// Second bet on the same prediction conflicts.
	rec = httptest.NewRecorder()
	api.HandleBets(rec, authedRequest(http.MethodPost, "/bets", 201, body))
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate bet, got %d", rec.Code)
	}

	// GET is not allowed.
	rec = httptest.NewRecorder()
	api.HandleBets(rec, authedRequest(http.MethodGet, "/bets", 201, nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestHandleBetsInsufficientFunds(t *testing.T) {
	api, store := newTestAPI(t)
	predictionID := makeOpenPrediction(t, store, 300)
	user, _ := store.CreateUser(301, "carol", "Carol")

	// Drain most of the welcome balance first.
	if err := store.Credit(context.Background(), user.ID, -95, 0, storage.SourceBet, "drain"); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	body, _ := json.Marshal(PlaceBetRequest{PredictionID: predictionID, Choice: "yes", Amount: 10})
	rec := httptest.NewRecorder()
	api.HandleBets(rec, authedRequest(http.MethodPost, "/bets", 301, body))
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("Expected 402, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlePredictions(t *testing.T) {
	api, store := newTestAPI(t)
	predictionID := makeOpenPrediction(t, store, 400)

	rec := httptest.NewRecorder()
	api.HandlePredictions(rec, httptest.NewRequest(http.MethodGet, "/predictions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var list []storage.PredictionSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(list) != 1 || list[0].ID != predictionID {
		t.Errorf("Expected the open prediction, got %+v", list)
	}
}

func TestHandleLeaderboard(t *testing.T) {
	api, store := newTestAPI(t)
	store.CreateUser(500, "a", "A")
	store.CreateUser(501, "b", "B")

	rec := httptest.NewRecorder()
	api.HandleLeaderboard(rec, httptest.NewRequest(http.MethodGet, "/leaderboard", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var entries []LeaderboardEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(entries))
	}
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{storage.ErrInsufficientFunds, http.StatusPaymentRequired},
		{storage.ErrDuplicateBet, http.StatusConflict},
		{storage.ErrInvalidAmount, http.StatusBadRequest},
		{storage.ErrInvalidChoice, http.StatusBadRequest},
		{storage.ErrInvalidState, http.StatusForbidden},
		{storage.ErrPermissionDenied, http.StatusForbidden},
		{storage.ErrNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		if got := statusForError(tc.err); got != tc.want {
			t.Errorf("statusForError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"betpool/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
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
	return store
}

func makeCreator(t *testing.T, store *storage.Store, telegramID int64) *storage.User {
	t.Helper()
	user, err := store.CreateUser(telegramID, "creator", "Creator")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := store.EnsureOwner(telegramID); err != nil {
		t.Fatalf("EnsureOwner failed: %v", err)
	}
	user, err = store.GetUserByID(user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	return user
}

func makeOpenPrediction(t *testing.T, store *storage.Store, creatorID int64) int64 {
	t.Helper()
	id, err := store.CreateDraft(creatorID, "Will it rain tomorrow?")
	if err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}
	if err := store.SetOptions(id, "yes", "no"); err != nil {
		t.Fatalf("SetOptions failed: %v", err)
	}
	if err := store.SetDeadline(id, time.Now().Add(1*time.Hour)); err != nil {
		t.Fatalf("SetDeadline failed: %v", err)
	}
	return id
}

func makeBettor(t *testing.T, store *storage.Store, telegramID int64) *storage.User {
	t.Helper()
	user, err := store.CreateUser(telegramID, "bettor", "Bettor")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user
}

func mustBet(t *testing.T, store *storage.Store, userID, predictionID int64, choice string, amount int64) {
	t.Helper()
	if err := store.PlaceBet(context.Background(), userID, predictionID, choice, amount); err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}
}

func balanceOf(t *testing.T, store *storage.Store, userID int64) int64 {
	t.Helper()
	tokens, _, err := store.GetBalance(userID)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	return tokens
}

func TestResolveSingleWinnerTakesLoserPool(t *testing.T) {
	store := newTestStore(t)
	payouts := NewPayoutService(store)
	ctx := context.Background()

	creator := makeCreator(t, store, 1)
	predictionID := makeOpenPrediction(t, store, creator.ID)

	u1 := makeBettor(t, store, 2)
	u2 := makeBettor(t, store, 3)
	mustBet(t, store, u1.ID, predictionID, "yes", 60)
	mustBet(t, store, u2.ID, predictionID, "no", 40)

	settlement, err := payouts.Resolve(ctx, predictionID, "yes")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if settlement.TotalPool != 100 || settlement.LoserPool != 40 {
		t.Errorf("Expected pools 100/40, got %d/%d", settlement.TotalPool, settlement.LoserPool)
	}
	if settlement.PayoutCount != 1 || settlement.TotalPaid != 40 {
		t.Errorf("Expected one payout of 40, got count=%d paid=%d", settlement.PayoutCount, settlement.TotalPaid)
	}

	// U1 started with 100, staked 60, won 40: net 80.
	if got := balanceOf(t, store, u1.ID); got != 80 {
		t.Errorf("Expected winner balance 80, got %d", got)
	}
	// U2's stake is forfeited.
	if got := balanceOf(t, store, u2.ID); got != 60 {
		t.Errorf("Expected loser balance 60, got %d", got)
	}
}

func TestResolveSplitsProportionally(t *testing.T) {
	store := newTestStore(t)
	payouts := NewPayoutService(store)
	ctx := context.Background()

	creator := makeCreator(t, store, 10)
	predictionID := makeOpenPrediction(t, store, creator.ID)

	u1 := makeBettor(t, store, 11)
	u2 := makeBettor(t, store, 12)
	u3 := makeBettor(t, store, 13)
	mustBet(t, store, u1.ID, predictionID, "yes", 30)
	mustBet(t, store, u2.ID, predictionID, "yes", 30)
	mustBet(t, store, u3.ID, predictionID, "no", 40)

	settlement, err := payouts.Resolve(ctx, predictionID, "yes")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// Each winner gets 30/60 * 40 = 20.
	if settlement.TotalPaid != 40 || settlement.PayoutCount != 2 {
		t.Errorf("Expected two payouts totaling 40, got count=%d paid=%d", settlement.PayoutCount, settlement.TotalPaid)
	}
	if got := balanceOf(t, store, u1.ID); got != 90 {
		t.Errorf("Expected u1 balance 90 (100-30+20), got %d", got)
	}
	if got := balanceOf(t, store, u2.ID); got != 90 {
		t.Errorf("Expected u2 balance 90, got %d", got)
	}
	if got := balanceOf(t, store, u3.ID); got != 60 {
		t.Errorf("Expected u3 balance 60, got %d", got)
	}
}

func TestResolveFloorsRewardsConservatively(t *testing.T) {
	store := newTestStore(t)
	payouts := NewPayoutService(store)
	ctx := context.Background()

	creator := makeCreator(t, store, 20)
	predictionID := makeOpenPrediction(t, store, creator.ID)

	u1 := makeBettor(t, store, 21)
	u2 := makeBettor(t, store, 22)
	u3 := makeBettor(t, store, 23)
	mustBet(t, store, u1.ID, predictionID, "yes", 30)
	mustBet(t, store, u2.ID, predictionID, "yes", 31)
	mustBet(t, store, u3.ID, predictionID, "no", 40)

	settlement, err := payouts.Resolve(ctx, predictionID, "yes")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// 30/61*40 = 19.67 -> 19, 31/61*40 = 20.32 -> 20; 39 paid, 1 stays unpaid.
	if settlement.TotalPaid > settlement.LoserPool {
		t.Errorf("Paid %d exceeds loser pool %d", settlement.TotalPaid, settlement.LoserPool)
	}
	if settlement.TotalPaid != 39 {
		t.Errorf("Expected floored total of 39, got %d", settlement.TotalPaid)
	}
	if got := balanceOf(t, store, u1.ID); got != 89 {
		t.Errorf("Expected u1 balance 89 (100-30+19), got %d", got)
	}
	if got := balanceOf(t, store, u2.ID); got != 89 {
		t.Errorf("Expected u2 balance 89 (100-31+20), got %d", got)
	}
}

func TestResolveNoWinnersForfeitsStakes(t *testing.T) {
	store := newTestStore(t)
	payouts := NewPayoutService(store)
	ctx := context.Background()

	creator := makeCreator(t, store, 30)
	predictionID := makeOpenPrediction(t, store, creator.ID)

	u1 := makeBettor(t, store, 31)
	u2 := makeBettor(t, store, 32)
	mustBet(t, store, u1.ID, predictionID, "no", 50)
	mustBet(t, store, u2.ID, predictionID, "no", 30)

	settlement, err := payouts.Resolve(ctx, predictionID, "yes")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if settlement.PayoutCount != 0 || settlement.TotalPaid != 0 {
		t.Errorf("Expected no payouts, got count=%d paid=%d", settlement.PayoutCount, settlement.TotalPaid)
	}
	if got := balanceOf(t, store, u1.ID); got != 50 {
		t.Errorf("Expected u1 balance 50, got %d", got)
	}
	if got := balanceOf(t, store, u2.ID); got != 70 {
		t.Errorf("Expected u2 balance 70, got %d", got)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	payouts := NewPayoutService(store)
	ctx := context.Background()

	creator := makeCreator(t, store, 40)
	predictionID := makeOpenPrediction(t, store, creator.ID)

	u1 := makeBettor(t, store, 41)
	u2 := makeBettor(t, store, 42)
	mustBet(t, store, u1.ID, predictionID, "yes", 60)
	mustBet(t, store, u2.ID, predictionID, "no", 40)

	if _, err := payouts.Resolve(ctx, predictionID, "yes"); err != nil {
		t.Fatalf("First resolve failed: %v", err)
	}

	_, err := payouts.Resolve(ctx, predictionID, "yes")
	if !errors.Is(err, storage.ErrInvalidState) {
		t.Fatalf("Expected ErrInvalidState on second resolve, got %v", err)
	}

	// No double credit.
	if got := balanceOf(t, store, u1.ID); got != 80 {
		t.Errorf("Expected winner balance 80 after repeated resolve, got %d", got)
	}
}

func TestResolveUnknownPrediction(t *testing.T) {
	store := newTestStore(t)
	payouts := NewPayoutService(store)

	_, err := payouts.Resolve(context.Background(), 9999, "yes")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestResolveManuallyChecksCreatorAndOutcome(t *testing.T) {
	store := newTestStore(t)
	payouts := NewPayoutService(store)
	ctx := context.Background()

	creator := makeCreator(t, store, 50)
	predictionID := makeOpenPrediction(t, store, creator.ID)
	stranger := makeBettor(t, store, 51)

	_, err := payouts.ResolveManually(ctx, stranger.ID, predictionID, "yes")
	if !errors.Is(err, storage.ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied for non-creator, got %v", err)
	}

	_, err = payouts.ResolveManually(ctx, creator.ID, predictionID, "maybe")
	if !errors.Is(err, storage.ErrInvalidChoice) {
		t.Errorf("Expected ErrInvalidChoice for unknown outcome, got %v", err)
	}

	settlement, err := payouts.ResolveManually(ctx, creator.ID, predictionID, "yes")
	if err != nil {
		t.Fatalf("ResolveManually failed: %v", err)
	}
	if settlement.Outcome != "yes" {
		t.Errorf("Expected outcome yes, got %s", settlement.Outcome)
	}
}

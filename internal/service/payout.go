package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"betpool/internal/logger"
	"betpool/internal/storage"
)

// PayoutService resolves predictions and distributes the pari-mutuel pool.
type PayoutService struct {
	store *storage.Store
}

// NewPayoutService creates a new payout service
func NewPayoutService(store *storage.Store) *PayoutService {
	return &PayoutService{store: store}
}

// Settlement describes one applied resolution, for notifications and logs.
type Settlement struct {
	PredictionID   int64
	Outcome        string
	TotalPool      int64
	LoserPool      int64
	PayoutCount    int
	TotalPaid      int64
	ParticipantIDs []int64
	TopWinnerID    int64
	TopReward      int64
}

// ResolveManually resolves a prediction on behalf of its creator. Only the
// creator may call this, and the outcome must be one of the prediction's two
// option labels.
func (s *PayoutService) ResolveManually(ctx context.Context, callerID, predictionID int64, outcome string) (*Settlement, error) {
	p, err := s.store.GetPredictionByID(predictionID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("prediction %d: %w", predictionID, storage.ErrNotFound)
	}
	if p.CreatorID != callerID {
		return nil, fmt.Errorf("only the creator can resolve prediction %d: %w", predictionID, storage.ErrPermissionDenied)
	}
	if !p.HasOption(outcome) {
		return nil, fmt.Errorf("outcome %q is not %q or %q: %w", outcome, p.OptionA, p.OptionB, storage.ErrInvalidChoice)
	}

	settlement, err := s.Resolve(ctx, predictionID, outcome)
	if err != nil {
		return nil, err
	}

	logger.Debug(callerID, "prediction_resolved_manually", fmt.Sprintf("prediction_id=%d outcome=%s payouts=%d", predictionID, outcome, settlement.PayoutCount))
	return settlement, nil
}

// Resolve transitions a prediction from OPEN to RESOLVED and pays winners
// their proportional share of the losers' stakes, all in one transaction.
// The conditional status update is the idempotency gate: whichever caller
// (manual or scheduled) flips it first applies the payouts; every other
// attempt fails with ErrInvalidState and credits nothing.
func (s *PayoutService) Resolve(ctx context.Context, predictionID int64, outcome string) (*Settlement, error) {
	db := s.store.DB()

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE predictions
		SET status = 'RESOLVED', outcome = ?, resolved_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'OPEN'
	`, outcome, predictionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve prediction: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM predictions WHERE id = ?`, predictionID).Scan(&status)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("prediction %d: %w", predictionID, storage.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get prediction status: %w", err)
		}
		return nil, fmt.Errorf("prediction %d is %s, not OPEN: %w", predictionID, status, storage.ErrInvalidState)
	}

	betRows, err := tx.QueryContext(ctx, `
		SELECT id, user_id, choice, amount
		FROM bets
		WHERE prediction_id = ?
		ORDER BY id ASC
	`, predictionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bets: %w", err)
	}
	defer betRows.Close()

	type bet struct {
		ID     int64
		UserID int64
		Choice string
		Amount int64
	}

	var winners, losers []bet
	settlement := &Settlement{PredictionID: predictionID, Outcome: outcome}

	for betRows.Next() {
		var b bet
		if err := betRows.Scan(&b.ID, &b.UserID, &b.Choice, &b.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		settlement.TotalPool += b.Amount
		settlement.ParticipantIDs = append(settlement.ParticipantIDs, b.UserID)
		if b.Choice == outcome {
			winners = append(winners, b)
		} else {
			losers = append(losers, b)
			settlement.LoserPool += b.Amount
		}
	}
	if err := betRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bets: %w", err)
	}

	// With no winners (including the NO_RESULT void outcome) every stake
	// stays forfeited; there is no one to redistribute to.
	winnerPool := settlement.TotalPool - settlement.LoserPool
	if len(winners) > 0 && settlement.LoserPool > 0 {
		for _, b := range winners {
			// Winners keep their own stake implicitly (it was never part of
			// the reward pool); the reward is the proportional share of the
			// losers' stakes, floored so the sum can never exceed the pool.
			reward := int64(math.Floor(float64(b.Amount) / float64(winnerPool) * float64(settlement.LoserPool)))
			if reward > settlement.TopReward {
				settlement.TopReward = reward
				settlement.TopWinnerID = b.UserID
			}
			if reward == 0 {
				continue
			}

			_, err = tx.ExecContext(ctx, `
				UPDATE users
				SET balance = balance + ?, updated_at = CURRENT_TIMESTAMP
				WHERE id = ?
			`, reward, b.UserID)
			if err != nil {
				return nil, fmt.Errorf("failed to credit user %d: %w", b.UserID, err)
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO transactions (user_id, tokens, points, source_type, description)
				VALUES (?, ?, 0, ?, ?)
			`, b.UserID, reward, storage.SourceWin,
				fmt.Sprintf("Reward for bet #%d on prediction #%d (stake: %d, reward: %d)", b.ID, predictionID, b.Amount, reward))
			if err != nil {
				return nil, fmt.Errorf("failed to log win transaction: %w", err)
			}

			settlement.PayoutCount++
			settlement.TotalPaid += reward
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug(0, "prediction_settled", fmt.Sprintf("prediction_id=%d outcome=%s total_pool=%d loser_pool=%d payouts=%d paid=%d",
		predictionID, outcome, settlement.TotalPool, settlement.LoserPool, settlement.PayoutCount, settlement.TotalPaid))

	return settlement, nil
}

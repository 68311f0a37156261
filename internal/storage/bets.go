package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// isUniqueViolation reports whether err is a SQLite uniqueness constraint
// failure. modernc.org/sqlite surfaces these as plain errors, so the message
// is the only discriminator available.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// PlaceBet stakes amount tokens on one option of an open prediction. The
// debit and the bet record are one transaction: either both apply or
// neither. A user gets at most one bet per prediction, enforced by the
// UNIQUE(user_id, prediction_id) constraint.
func (s *Store) PlaceBet(ctx context.Context, userID, predictionID int64, choice string, amount int64) error {
	if amount < s.limits.MinBet || amount > s.limits.MaxBet {
		return fmt.Errorf("amount %d outside [%d, %d]: %w", amount, s.limits.MinBet, s.limits.MaxBet, ErrInvalidAmount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	p, err := scanPrediction(tx.QueryRowContext(ctx, `
		SELECT `+predictionColumns+`
		FROM predictions
		WHERE id = ?
	`, predictionID))
	if err == sql.ErrNoRows {
		return fmt.Errorf("prediction %d: %w", predictionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get prediction: %w", err)
	}

	if p.Status != StatusOpen {
		return fmt.Errorf("prediction %d is %s: %w", predictionID, p.Status, ErrInvalidState)
	}
	if !time.Now().Before(p.Deadline) {
		return fmt.Errorf("prediction %d deadline has passed: %w", predictionID, ErrInvalidState)
	}
	if !p.HasOption(choice) {
		return fmt.Errorf("choice %q is not %q or %q: %w", choice, p.OptionA, p.OptionB, ErrInvalidChoice)
	}

	err = creditInTx(ctx, tx, userID, -amount, 0, SourceBet,
		fmt.Sprintf("Bet %d on %q for prediction #%d", amount, choice, predictionID))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bets (user_id, prediction_id, choice, amount)
		VALUES (?, ?, ?, ?)
	`, userID, predictionID, choice, amount)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %d already bet on prediction %d: %w", userID, predictionID, ErrDuplicateBet)
	}
	if err != nil {
		return fmt.Errorf("failed to insert bet: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// BetsForPrediction returns all bets on a prediction in placement order.
func (s *Store) BetsForPrediction(ctx context.Context, predictionID int64) ([]Bet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, prediction_id, choice, amount, placed_at
		FROM bets
		WHERE prediction_id = ?
		ORDER BY id ASC
	`, predictionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bets: %w", err)
	}
	defer rows.Close()

	var bets []Bet
	for rows.Next() {
		var b Bet
		if err := rows.Scan(&b.ID, &b.UserID, &b.PredictionID, &b.Choice, &b.Amount, &b.PlacedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bets: %w", err)
	}
	return bets, nil
}

// PoolTotals returns the staked totals per option for a prediction.
func (s *Store) PoolTotals(ctx context.Context, predictionID int64) (poolA, poolB int64, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN b.choice = p.option_a THEN b.amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN b.choice = p.option_b THEN b.amount ELSE 0 END), 0)
		FROM predictions p
		LEFT JOIN bets b ON b.prediction_id = p.id
		WHERE p.id = ?
	`, predictionID).Scan(&poolA, &poolB)
	if err == sql.ErrNoRows {
		return 0, 0, fmt.Errorf("prediction %d: %w", predictionID, ErrNotFound)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get pool totals: %w", err)
	}
	return poolA, poolB, nil
}

// GetUserBets returns the user's bets joined with their predictions, newest
// first, for history display.
func (s *Store) GetUserBets(userID int64) ([]BetHistoryItem, error) {
	rows, err := s.db.Query(`
		SELECT b.id, p.question, b.choice, b.amount, p.status, COALESCE(p.outcome, '')
		FROM bets b
		JOIN predictions p ON p.id = b.prediction_id
		WHERE b.user_id = ?
		ORDER BY b.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user bets: %w", err)
	}
	defer rows.Close()

	var items []BetHistoryItem
	for rows.Next() {
		var item BetHistoryItem
		var status PredictionStatus
		if err := rows.Scan(&item.BetID, &item.Question, &item.Choice, &item.Amount, &status, &item.Outcome); err != nil {
			return nil, fmt.Errorf("failed to scan bet history: %w", err)
		}
		switch {
		case status != StatusResolved:
			item.Status = "PENDING"
		case item.Outcome == OutcomeNoResult:
			item.Status = "VOID"
		case item.Outcome == item.Choice:
			item.Status = "WON"
		default:
			item.Status = "LOST"
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bet history: %w", err)
	}
	return items, nil
}

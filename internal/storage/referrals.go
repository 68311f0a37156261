package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// RecordReferral records a one-time referrer/referee edge and credits the
// fixed point bonus to the referrer. The referee's referred_by column is the
// arbiter: a conditional update sets it only while unset, so concurrent
// duplicate calls apply the edge and the bonus exactly once. A referee that
// already has a referrer is a silent no-op (applied=false, no error).
func (s *Store) RecordReferral(ctx context.Context, refereeID, referrerID, bonusPoints int64) (applied bool, err error) {
	if refereeID == referrerID {
		return false, fmt.Errorf("user %d cannot refer themselves: %w", refereeID, ErrSelfReferral)
	}

	referrer, err := s.GetUserByID(referrerID)
	if err != nil {
		return false, err
	}
	if referrer == nil {
		return false, fmt.Errorf("referrer %d: %w", referrerID, ErrNotFound)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE users
		SET referred_by = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND referred_by IS NULL
	`, referrerID, refereeID)
	if err != nil {
		return false, fmt.Errorf("failed to set referred_by: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, refereeID).Scan(&exists)
		if err == sql.ErrNoRows {
			return false, fmt.Errorf("referee %d: %w", refereeID, ErrNotFound)
		}
		if err != nil {
			return false, fmt.Errorf("failed to check referee: %w", err)
		}
		// Already referred; first caller won.
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO referrals (referrer_id, referee_id)
		VALUES (?, ?)
	`, referrerID, refereeID)
	if err != nil {
		return false, fmt.Errorf("failed to insert referral: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users SET referral_count = referral_count + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, referrerID)
	if err != nil {
		return false, fmt.Errorf("failed to increment referral count: %w", err)
	}

	err = creditInTx(ctx, tx, referrerID, 0, bonusPoints, SourceReferralBonus,
		fmt.Sprintf("Referral bonus for inviting user #%d", refereeID))
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

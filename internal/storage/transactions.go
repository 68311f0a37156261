package storage

import (
	"fmt"
)

// RecentTransactions returns the user's newest balance changes, the audit
// trail behind every credit and debit.
func (s *Store) RecentTransactions(userID int64, limit int) ([]Transaction, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, tokens, points, source_type, COALESCE(description, ''), created_at
		FROM transactions
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Tokens, &t.Points, &t.SourceType, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txs, nil
}

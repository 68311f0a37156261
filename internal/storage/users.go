package storage

import (
	"context"
	"database/sql"
	"fmt"
)

const userColumns = `id, telegram_id, username, first_name, wallet_address, balance, points, role, referred_by, referral_count, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var user User
	var username, wallet sql.NullString
	var referredBy sql.NullInt64

	err := row.Scan(
		&user.ID,
		&user.TelegramID,
		&username,
		&user.FirstName,
		&wallet,
		&user.Balance,
		&user.Points,
		&user.Role,
		&referredBy,
		&user.ReferralCount,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Username = username.String
	user.WalletAddress = wallet.String
	user.ReferredBy = referredBy.Int64
	return &user, nil
}

// GetUserByTelegramID retrieves a user by their Telegram ID
func (s *Store) GetUserByTelegramID(telegramID int64) (*User, error) {
	user, err := scanUser(s.db.QueryRow(`
		SELECT `+userColumns+`
		FROM users
		WHERE telegram_id = ?
	`, telegramID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by telegram_id: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by their internal ID
func (s *Store) GetUserByID(id int64) (*User, error) {
	user, err := scanUser(s.db.QueryRow(`
		SELECT `+userColumns+`
		FROM users
		WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

// CreateUser creates a new user with the given Telegram info, seeding the
// welcome token and point grants.
func (s *Store) CreateUser(telegramID int64, username, firstName string) (*User, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO users (telegram_id, username, first_name, balance, points)
		VALUES (?, ?, ?, ?, ?)
	`, telegramID, username, firstName, s.limits.WelcomeTokens, s.limits.WelcomePoints)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	userID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO transactions (user_id, tokens, points, source_type, description)
		VALUES (?, ?, ?, ?, 'Welcome bonus for joining!')
	`, userID, s.limits.WelcomeTokens, s.limits.WelcomePoints, SourceWelcomeBonus)
	if err != nil {
		return nil, fmt.Errorf("failed to insert welcome bonus transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.GetUserByTelegramID(telegramID)
}

// GetOrCreateUser returns the user for telegramID, creating the account on
// first contact.
func (s *Store) GetOrCreateUser(telegramID int64, username, firstName string) (*User, error) {
	user, err := s.GetUserByTelegramID(telegramID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}
	user, err = s.CreateUser(telegramID, username, firstName)
	if isUniqueViolation(err) {
		// Lost the first-contact race; the account exists now.
		return s.GetUserByTelegramID(telegramID)
	}
	return user, err
}

// Credit applies token and point deltas to a user's balances atomically.
// Deltas may be negative; a debit that would drive either balance below zero
// fails with ErrInsufficientFunds and performs no mutation. The balance check
// and the update are a single conditional statement, never a read followed by
// a write.
func (s *Store) Credit(ctx context.Context, userID, tokens, points int64, sourceType, description string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := creditInTx(ctx, tx, userID, tokens, points, sourceType, description); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// creditInTx is the shared conditional balance update, usable inside a larger
// transaction (bet placement, payout, referral bonus).
func creditInTx(ctx context.Context, tx *sql.Tx, userID, tokens, points int64, sourceType, description string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE users
		SET balance = balance + ?, points = points + ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND balance + ? >= 0 AND points + ? >= 0
	`, tokens, points, userID, tokens, points)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check user: %w", err)
		}
		return fmt.Errorf("user %d: %w", userID, ErrInsufficientFunds)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (user_id, tokens, points, source_type, description)
		VALUES (?, ?, ?, ?, ?)
	`, userID, tokens, points, sourceType, description)
	if err != nil {
		return fmt.Errorf("failed to log transaction: %w", err)
	}

	return nil
}

// GetBalance returns a point-in-time read of a user's token and point
// balances.
func (s *Store) GetBalance(userID int64) (tokens, points int64, err error) {
	err = s.db.QueryRow(`SELECT balance, points FROM users WHERE id = ?`, userID).Scan(&tokens, &points)
	if err == sql.ErrNoRows {
		return 0, 0, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return tokens, points, nil
}

// SetWallet stores the user's wallet address.
func (s *Store) SetWallet(userID int64, address string) error {
	result, err := s.db.Exec(`
		UPDATE users SET wallet_address = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, address, userID)
	if err != nil {
		return fmt.Errorf("failed to set wallet: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return nil
}

// GrantRole raises target's role to level. The actor must hold a role
// strictly above the granted level (admins grant KOL, owners grant admin).
// Roles only ever increase; granting a level at or below the current one
// fails with ErrInvalidState.
func (s *Store) GrantRole(actorID, targetID int64, level Role) error {
	actor, err := s.GetUserByID(actorID)
	if err != nil {
		return err
	}
	if actor == nil {
		return fmt.Errorf("actor %d: %w", actorID, ErrNotFound)
	}
	if !actor.Role.HasAtLeast(level + 1) {
		return fmt.Errorf("granting %s requires %s: %w", level, level+1, ErrPermissionDenied)
	}

	result, err := s.db.Exec(`
		UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND role < ?
	`, level, targetID, level)
	if err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		target, err := s.GetUserByID(targetID)
		if err != nil {
			return err
		}
		if target == nil {
			return fmt.Errorf("user %d: %w", targetID, ErrNotFound)
		}
		return fmt.Errorf("user %d already holds %s: %w", targetID, target.Role, ErrInvalidState)
	}
	return nil
}

// EnsureOwner raises the configured owner account to the OWNER role. The
// owner is the root of the grant chain and cannot be granted by anyone else.
func (s *Store) EnsureOwner(telegramID int64) error {
	if telegramID == 0 {
		return nil
	}
	_, err := s.db.Exec(`
		UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP
		WHERE telegram_id = ? AND role < ?
	`, RoleOwner, telegramID, RoleOwner)
	if err != nil {
		return fmt.Errorf("failed to ensure owner: %w", err)
	}
	return nil
}

// TopUsers returns the leaderboard: up to limit users ordered by token
// balance, points breaking ties.
func (s *Store) TopUsers(limit int) ([]User, error) {
	rows, err := s.db.Query(`
		SELECT `+userColumns+`
		FROM users
		ORDER BY balance DESC, points DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

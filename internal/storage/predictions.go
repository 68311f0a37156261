package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const predictionColumns = `id, creator_id, question, option_a, option_b, deadline, status, outcome, resolved_at, created_at`

func scanPrediction(row interface{ Scan(...any) error }) (*Prediction, error) {
	var p Prediction
	var optionA, optionB, outcome sql.NullString
	var deadline, resolvedAt sql.NullTime

	err := row.Scan(
		&p.ID,
		&p.CreatorID,
		&p.Question,
		&optionA,
		&optionB,
		&deadline,
		&p.Status,
		&outcome,
		&resolvedAt,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.OptionA = optionA.String
	p.OptionB = optionB.String
	p.Outcome = outcome.String
	p.Deadline = deadline.Time
	p.ResolvedAt = resolvedAt.Time
	return &p, nil
}

// CreateDraft creates a new prediction in DRAFT status. The creator must
// hold KOL privilege or higher.
func (s *Store) CreateDraft(creatorID int64, question string) (int64, error) {
	creator, err := s.GetUserByID(creatorID)
	if err != nil {
		return 0, err
	}
	if creator == nil {
		return 0, fmt.Errorf("user %d: %w", creatorID, ErrNotFound)
	}
	if !creator.Role.HasAtLeast(RoleKOL) {
		return 0, fmt.Errorf("creating predictions requires KOL: %w", ErrPermissionDenied)
	}
	if question == "" {
		return 0, fmt.Errorf("question must not be empty: %w", ErrInvalidState)
	}

	result, err := s.db.Exec(`
		INSERT INTO predictions (creator_id, question, status)
		VALUES (?, ?, 'DRAFT')
	`, creatorID, question)
	if err != nil {
		return 0, fmt.Errorf("failed to insert prediction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// SetOptions sets the two option labels on a draft prediction. Labels must
// be non-empty and distinct; a draft that already has options is rejected.
func (s *Store) SetOptions(predictionID int64, optionA, optionB string) error {
	if optionA == "" || optionB == "" {
		return fmt.Errorf("option labels must not be empty: %w", ErrInvalidChoice)
	}
	if optionA == optionB {
		return fmt.Errorf("option labels must be distinct: %w", ErrInvalidChoice)
	}

	result, err := s.db.Exec(`
		UPDATE predictions
		SET option_a = ?, option_b = ?
		WHERE id = ? AND status = 'DRAFT' AND option_a IS NULL
	`, optionA, optionB, predictionID)
	if err != nil {
		return fmt.Errorf("failed to set options: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return s.predictionStateError(predictionID, "options can only be set once on a draft")
	}
	return nil
}

// SetDeadline sets the deadline on a completed draft and opens it for
// betting in the same statement. The deadline must be strictly in the
// future; the prediction must be a draft with both options set.
func (s *Store) SetDeadline(predictionID int64, deadline time.Time) error {
	if !deadline.After(time.Now()) {
		return fmt.Errorf("deadline must be in the future: %w", ErrInvalidState)
	}

	result, err := s.db.Exec(`
		UPDATE predictions
		SET deadline = ?, status = 'OPEN'
		WHERE id = ? AND status = 'DRAFT' AND option_a IS NOT NULL
	`, deadline.UTC(), predictionID)
	if err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return s.predictionStateError(predictionID, "deadline requires a draft with options set")
	}
	return nil
}

// predictionStateError distinguishes a missing prediction from one in the
// wrong lifecycle stage after a conditional update matched no rows.
func (s *Store) predictionStateError(predictionID int64, reason string) error {
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM predictions WHERE id = ?`, predictionID).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("prediction %d: %w", predictionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check prediction: %w", err)
	}
	return fmt.Errorf("prediction %d: %s: %w", predictionID, reason, ErrInvalidState)
}

// GetPredictionByID retrieves a prediction by its ID
func (s *Store) GetPredictionByID(id int64) (*Prediction, error) {
	p, err := scanPrediction(s.db.QueryRow(`
		SELECT `+predictionColumns+`
		FROM predictions
		WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return p, nil
}

// ListOpen returns all open predictions with creator names and per-option
// pool totals for display.
func (s *Store) ListOpen() ([]PredictionSummary, error) {
	rows, err := s.db.Query(`
		SELECT p.id, p.question, u.first_name, p.option_a, p.option_b, p.deadline,
			COALESCE(SUM(CASE WHEN b.choice = p.option_a THEN b.amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN b.choice = p.option_b THEN b.amount ELSE 0 END), 0)
		FROM predictions p
		JOIN users u ON u.id = p.creator_id
		LEFT JOIN bets b ON b.prediction_id = p.id
		WHERE p.status = 'OPEN'
		GROUP BY p.id
		ORDER BY p.deadline ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open predictions: %w", err)
	}
	defer rows.Close()

	var summaries []PredictionSummary
	for rows.Next() {
		var sum PredictionSummary
		var deadline time.Time
		err := rows.Scan(&sum.ID, &sum.Question, &sum.CreatorName, &sum.OptionA, &sum.OptionB, &deadline, &sum.PoolA, &sum.PoolB)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction summary: %w", err)
		}
		sum.Deadline = deadline.UTC().Format("2006-01-02 15:04")
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predictions: %w", err)
	}
	return summaries, nil
}

// ListByCreator returns predictions authored by userID, optionally only the
// unresolved ones.
func (s *Store) ListByCreator(userID int64, activeOnly bool) ([]Prediction, error) {
	query := `SELECT ` + predictionColumns + ` FROM predictions WHERE creator_id = ?`
	if activeOnly {
		query += ` AND status != 'RESOLVED'`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions by creator: %w", err)
	}
	defer rows.Close()

	var predictions []Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predictions: %w", err)
	}
	return predictions, nil
}

// ExpiredOpen returns predictions that are past their deadline but still
// open, the worker's scan set.
func (s *Store) ExpiredOpen(ctx context.Context, now time.Time) ([]Prediction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+predictionColumns+`
		FROM predictions
		WHERE status = 'OPEN' AND deadline <= ?
	`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query expired predictions: %w", err)
	}
	defer rows.Close()

	var predictions []Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predictions: %w", err)
	}
	return predictions, nil
}

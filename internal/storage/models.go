package storage

import (
	"time"
)

// Role is the privilege level of a user. Levels are strictly ordered: an
// owner can do everything an admin can, an admin everything a KOL can.
type Role int

const (
	RoleOrdinary Role = iota
	RoleKOL
	RoleAdmin
	RoleOwner
)

// HasAtLeast reports whether r grants the privileges of level.
func (r Role) HasAtLeast(level Role) bool {
	return r >= level
}

// String returns the role name for display and logging.
func (r Role) String() string {
	switch r {
	case RoleKOL:
		return "KOL"
	case RoleAdmin:
		return "ADMIN"
	case RoleOwner:
		return "OWNER"
	default:
		return "ORDINARY"
	}
}

// User represents a user in the system
type User struct {
	ID            int64     `json:"id" db:"id"`
	TelegramID    int64     `json:"telegram_id" db:"telegram_id"`
	Username      string    `json:"username" db:"username"`
	FirstName     string    `json:"first_name" db:"first_name"`
	WalletAddress string    `json:"wallet_address,omitempty" db:"wallet_address"`
	Balance       int64     `json:"balance" db:"balance"` // tokens
	Points        int64     `json:"points" db:"points"`   // ranking currency, never staked
	Role          Role      `json:"role" db:"role"`
	ReferredBy    int64     `json:"referred_by,omitempty" db:"referred_by"` // 0 = never referred
	ReferralCount int64     `json:"referral_count" db:"referral_count"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Transaction represents a balance change
type Transaction struct {
	ID          int64     `json:"id" db:"id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	Tokens      int64     `json:"tokens" db:"tokens"` // can be negative
	Points      int64     `json:"points" db:"points"`
	SourceType  string    `json:"source_type" db:"source_type"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Transaction source types.
const (
	SourceWelcomeBonus  = "WELCOME_BONUS"
	SourceBet           = "BET"
	SourceWin           = "WIN"
	SourceReferralBonus = "REFERRAL_BONUS"
)

// PredictionStatus represents the lifecycle stage of a prediction.
// Transitions are monotonic: DRAFT -> OPEN -> RESOLVED.
type PredictionStatus string

const (
	StatusDraft    PredictionStatus = "DRAFT"
	StatusOpen     PredictionStatus = "OPEN"
	StatusResolved PredictionStatus = "RESOLVED"
)

// OutcomeNoResult is the sentinel outcome for void predictions (tied pools
// or no bets at auto-resolution). No bet can carry this choice, so the
// empty-winners payout path handles voids with no special casing.
const OutcomeNoResult = "NO_RESULT"

// Prediction represents a binary-choice question users stake tokens on.
type Prediction struct {
	ID         int64            `json:"id" db:"id"`
	CreatorID  int64            `json:"creator_id" db:"creator_id"`
	Question   string           `json:"question" db:"question"`
	OptionA    string           `json:"option_a,omitempty" db:"option_a"`
	OptionB    string           `json:"option_b,omitempty" db:"option_b"`
	Deadline   time.Time        `json:"deadline,omitempty" db:"deadline"`
	Status     PredictionStatus `json:"status" db:"status"`
	Outcome    string           `json:"outcome,omitempty" db:"outcome"`
	ResolvedAt time.Time        `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
}

// HasOption reports whether choice is one of the prediction's two labels.
func (p *Prediction) HasOption(choice string) bool {
	return choice != "" && (choice == p.OptionA || choice == p.OptionB)
}

// PredictionSummary is the API/chat response shape for an open prediction.
type PredictionSummary struct {
	ID          int64  `json:"id"`
	Question    string `json:"question"`
	CreatorName string `json:"creator_name"`
	OptionA     string `json:"option_a"`
	OptionB     string `json:"option_b"`
	PoolA       int64  `json:"pool_a"`
	PoolB       int64  `json:"pool_b"`
	Deadline    string `json:"deadline"`
}

// Bet represents a stake placed on one option of a prediction. At most one
// bet per (user, prediction) pair; enforced by a store uniqueness constraint.
type Bet struct {
	ID           int64     `json:"id" db:"id"`
	UserID       int64     `json:"user_id" db:"user_id"`
	PredictionID int64     `json:"prediction_id" db:"prediction_id"`
	Choice       string    `json:"choice" db:"choice"`
	Amount       int64     `json:"amount" db:"amount"`
	PlacedAt     time.Time `json:"placed_at" db:"placed_at"`
}

// BetHistoryItem is a bet joined with its prediction for display.
type BetHistoryItem struct {
	BetID    int64  `json:"bet_id"`
	Question string `json:"question"`
	Choice   string `json:"choice"`
	Amount   int64  `json:"amount"`
	Status   string `json:"status"`  // PENDING, WON, LOST, VOID
	Outcome  string `json:"outcome"` // empty until resolved
}

// Referral records a one-time referrer/referee edge.
type Referral struct {
	ID         int64     `json:"id" db:"id"`
	ReferrerID int64     `json:"referrer_id" db:"referrer_id"`
	RefereeID  int64     `json:"referee_id" db:"referee_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

package service

import (
	"context"
	"fmt"

	"betpool/internal/logger"
	"betpool/internal/storage"
)

// ReferralService records referral edges and credits the fixed bonus.
type ReferralService struct {
	store       *storage.Store
	bonusPoints int64
}

// NewReferralService creates a new referral service
func NewReferralService(store *storage.Store, bonusPoints int64) *ReferralService {
	return &ReferralService{store: store, bonusPoints: bonusPoints}
}

// RecordReferral links referee to referrer and credits the referrer's point
// bonus, at most once per referee. A referee who already has a referrer is a
// silent no-op (applied=false). Self-referrals fail with ErrSelfReferral.
func (s *ReferralService) RecordReferral(ctx context.Context, refereeID, referrerID int64) (applied bool, err error) {
	applied, err = s.store.RecordReferral(ctx, refereeID, referrerID, s.bonusPoints)
	if err != nil {
		return false, err
	}
	if applied {
		logger.Debug(referrerID, "referral_recorded", fmt.Sprintf("referee_id=%d bonus_points=%d", refereeID, s.bonusPoints))
	} else {
		logger.Debug(referrerID, "referral_noop", fmt.Sprintf("referee_id=%d already_referred", refereeID))
	}
	return applied, nil
}

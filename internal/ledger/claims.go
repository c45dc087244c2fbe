package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/nyawka/phonixshop/internal/models"
)

// ErrClaimClosed reports that the claim was already confirmed or
// abandoned, so a repeat confirmation must not credit again.
var ErrClaimClosed = errors.New("claim closed")

// CreateClaim records a pending top-up attempt. The (system, external id)
// pair is unique; retrying the same external transaction is a conflict.
func (l *Ledger) CreateClaim(ctx context.Context, userID int64, system, externalID string, amount float64) (*models.PaymentClaim, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if system == "" || externalID == "" {
		return nil, fmt.Errorf("%w: system and external id required", ErrValidation)
	}
	claim := models.PaymentClaim{
		UserID:     userID,
		Amount:     amount,
		System:     system,
		ExternalID: externalID,
		Status:     models.ClaimPending,
	}
	if err := l.DB.WithContext(ctx).Create(&claim).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: claim %s/%s exists", ErrConflict, system, externalID)
		}
		return nil, err
	}
	return &claim, nil
}

func (l *Ledger) ClaimByExternalID(ctx context.Context, system, externalID string) (*models.PaymentClaim, error) {
	var claim models.PaymentClaim
	err := l.DB.WithContext(ctx).
		Where("system = ? AND external_id = ?", system, externalID).
		First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: claim %s/%s", ErrNotFound, system, externalID)
	}
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

func (l *Ledger) Claims(ctx context.Context, limit int) ([]models.PaymentClaim, error) {
	if limit <= 0 {
		limit = 50
	}
	var claims []models.PaymentClaim
	err := l.DB.WithContext(ctx).Order("id DESC").Limit(limit).Find(&claims).Error
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ConfirmClaim flips the claim pending->confirmed and credits its user,
// in one transaction. The guarded UPDATE makes it exactly-once: a second
// confirmation of the same external transaction hits zero rows and
// returns ErrClaimClosed without touching the balance.
func (l *Ledger) ConfirmClaim(ctx context.Context, system, externalID string) (*models.PaymentClaim, error) {
	var claim models.PaymentClaim
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("system = ? AND external_id = ?", system, externalID).
			First(&claim).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: claim %s/%s", ErrNotFound, system, externalID)
		}
		if err != nil {
			return err
		}

		res := tx.Model(&models.PaymentClaim{}).
			Where("system = ? AND external_id = ? AND status = ?", system, externalID, models.ClaimPending).
			Update("status", models.ClaimConfirmed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrClaimClosed
		}

		return creditTx(tx, claim.UserID, claim.Amount)
	})
	if err != nil {
		return nil, err
	}
	claim.Status = models.ClaimConfirmed
	return &claim, nil
}

// AbandonClaim closes a pending claim that can no longer be paid.
// Confirmed claims are left untouched.
func (l *Ledger) AbandonClaim(ctx context.Context, system, externalID string) error {
	res := l.DB.WithContext(ctx).Model(&models.PaymentClaim{}).
		Where("system = ? AND external_id = ? AND status = ?", system, externalID, models.ClaimPending).
		Update("status", models.ClaimAbandoned)
	return res.Error
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/nyawka/phonixshop/internal/models"
)

// Purchase executes the whole buy flow as one transaction: balance check,
// unit selection, debit and sale. Either the debit and the sale both
// commit, or neither does.
//
// Returned errors: ErrNotFound (unknown product), ErrInsufficientBalance,
// ErrOutOfStock; anything else is a storage failure and the caller should
// treat it as a system error.
func (l *Ledger) Purchase(ctx context.Context, userID int64, productID uint) (*models.Unit, error) {
	var sold models.Unit

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var user models.User
		if err := tx.Where("user_id = ?", userID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInsufficientBalance
			}
			return err
		}
		if user.Balance < product.Price {
			return ErrInsufficientBalance
		}

		unit, err := claimUnit(tx, productID, userID)
		if err != nil {
			return err
		}

		// Debit is guarded so a concurrent spend from another device can
		// never push the balance negative: zero rows hit means the money
		// is gone and the sale above rolls back with us.
		debit := tx.Model(&models.User{}).
			Where("user_id = ? AND balance >= ?", userID, product.Price).
			Update("balance", gorm.Expr("balance - ?", product.Price))
		if debit.Error != nil {
			return debit.Error
		}
		if debit.RowsAffected == 0 {
			return ErrInsufficientBalance
		}

		sold = *unit
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sold, nil
}

// claimUnit marks the oldest free unit as sold. Selection and the sold
// flip are separate statements, so the flip re-checks is_sold and we walk
// to the next unit when a concurrent purchase won the race for this one.
func claimUnit(tx *gorm.DB, productID uint, buyerID int64) (*models.Unit, error) {
	var cursor uint
	for {
		var unit models.Unit
		err := tx.Where("product_id = ? AND is_sold = ? AND id > ?", productID, false, cursor).
			Order("id").
			First(&unit).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOutOfStock
		}
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		res := tx.Model(&models.Unit{}).
			Where("id = ? AND is_sold = ?", unit.ID, false).
			Updates(map[string]any{
				"is_sold":  true,
				"buyer_id": buyerID,
				"sold_at":  now,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			unit.IsSold = true
			unit.BuyerID = &buyerID
			unit.SoldAt = &now
			return &unit, nil
		}

		cursor = unit.ID
	}
}

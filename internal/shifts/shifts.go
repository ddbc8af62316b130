// Package shifts tracks cashier till sessions and reconciles cash at close.
package shifts

import (
	"context"
	"errors"
	"time"

	"go-pos-tenancy/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrShiftAlreadyOpen = errors.New("cashier already has an open shift")
	ErrNoOpenShift      = errors.New("cashier has no open shift")
	ErrNegativeCash     = errors.New("cash amounts must not be negative")
)

// CashMethod is the payment method counted into the drawer
const CashMethod = "cash"

type Service struct {
	now func() time.Time
}

func NewService() *Service {
	return &Service{now: func() time.Time { return time.Now().UTC() }}
}

// Open starts a shift for the cashier. The count is a fast path; the unique
// index on open_cashier_id settles concurrent opens.
func (s *Service) Open(ctx context.Context, db *gorm.DB, cashierID uint, branchID *uint, openingCash decimal.Decimal) (*models.Shift, error) {
	if openingCash.IsNegative() {
		return nil, ErrNegativeCash
	}
	var shift *models.Shift
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open int64
		if err := tx.Model(&models.Shift{}).
			Where("cashier_id = ? AND status = ?", cashierID, models.ShiftOpen).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return ErrShiftAlreadyOpen
		}
		owner := cashierID
		shift = &models.Shift{
			CashierID:     cashierID,
			OpenCashierID: &owner,
			BranchID:      branchID,
			Status:        models.ShiftOpen,
			OpeningCash:   openingCash,
			CashIn:        decimal.Zero,
			ChangeGiven:   decimal.Zero,
			OpenedAt:      s.now(),
		}
		return tx.Create(shift).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrShiftAlreadyOpen
	}
	if err != nil {
		return nil, err
	}
	return shift, nil
}

// Current returns the cashier's open shift
func (s *Service) Current(ctx context.Context, db *gorm.DB, cashierID uint) (*models.Shift, error) {
	var shift models.Shift
	err := db.WithContext(ctx).Where("cashier_id = ? AND status = ?", cashierID, models.ShiftOpen).First(&shift).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoOpenShift
	}
	if err != nil {
		return nil, err
	}
	return &shift, nil
}

// Close reconciles the drawer. Expected cash is the opening float plus cash
// taken since the shift opened minus change handed back. The close is a
// conditional update, so of two concurrent closes only one succeeds.
func (s *Service) Close(ctx context.Context, db *gorm.DB, cashierID uint, closingCash decimal.Decimal) (*models.Shift, error) {
	if closingCash.IsNegative() {
		return nil, ErrNegativeCash
	}
	var shift models.Shift
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("cashier_id = ? AND status = ?", cashierID, models.ShiftOpen).First(&shift).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoOpenShift
		}
		if err != nil {
			return err
		}

		now := s.now()
		cashIn, err := cashTaken(tx, cashierID, shift.OpenedAt, now)
		if err != nil {
			return err
		}
		changeGiven, err := changeHandedBack(tx, cashierID, shift.OpenedAt, now)
		if err != nil {
			return err
		}
		expected := shift.OpeningCash.Add(cashIn).Sub(changeGiven)

		shift.Status = models.ShiftClosed
		shift.CashIn = cashIn
		shift.ChangeGiven = changeGiven
		shift.ExpectedCash = decimal.NewNullDecimal(expected)
		shift.ClosingCash = decimal.NewNullDecimal(closingCash)
		shift.Difference = decimal.NewNullDecimal(closingCash.Sub(expected))
		shift.ClosedAt = &now
		shift.OpenCashierID = nil

		res := tx.Model(&models.Shift{}).
			Where("id = ? AND status = ?", shift.ID, models.ShiftOpen).
			Updates(map[string]interface{}{
				"status":          shift.Status,
				"open_cashier_id": nil,
				"cash_in":         shift.CashIn,
				"change_given":    shift.ChangeGiven,
				"expected_cash":   shift.ExpectedCash,
				"closing_cash":    shift.ClosingCash,
				"difference":      shift.Difference,
				"closed_at":       shift.ClosedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNoOpenShift
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &shift, nil
}

func cashTaken(tx *gorm.DB, cashierID uint, from, to time.Time) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := tx.Model(&models.Payment{}).
		Joins("JOIN sales ON sales.id = payments.sale_id").
		Where("sales.cashier_id = ? AND payments.method = ?", cashierID, CashMethod).
		Where("payments.paid_at >= ? AND payments.paid_at <= ?", from, to).
		Pluck("payments.amount", &amounts).Error
	return sum(amounts), err
}

func changeHandedBack(tx *gorm.DB, cashierID uint, from, to time.Time) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := tx.Model(&models.Sale{}).
		Where("cashier_id = ? AND created_at >= ? AND created_at <= ?", cashierID, from, to).
		Pluck("change_amount", &amounts).Error
	return sum(amounts), err
}

func sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

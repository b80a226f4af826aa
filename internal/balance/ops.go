// Package balance owns a user's cash ledger: available, locked, total, and
// the cumulative deposit/withdraw/invest/pnl counters. The pure operations
// in this file mutate one AccountBalance row and enforce the ledger
// identity total == available + locked; the order manager applies them
// inside its own transactions, the Service wraps them for the cash flows.
package balance

import (
	"fmt"
	"time"

	"tradecore/internal/apperr"
	"tradecore/internal/model"

	"github.com/shopspring/decimal"
)

func touch(b *model.AccountBalance) error {
	b.UpdatedAt = time.Now().UTC()
	if !b.Consistent() {
		return apperr.Invariantf("balance identity broken for user %s: total %s != available %s + locked %s",
			b.UserID, b.Total, b.Available, b.Locked)
	}
	if b.Available.IsNegative() || b.Locked.IsNegative() {
		return apperr.Invariantf("negative balance for user %s: available %s locked %s", b.UserID, b.Available, b.Locked)
	}
	return nil
}

// Reserve moves amount from available to locked pending an outcome.
func Reserve(b *model.AccountBalance, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validationf("reserve amount must be positive, got %s", amount)
	}
	if b.Available.LessThan(amount) {
		return fmt.Errorf("%w: available %s, need %s", apperr.ErrInsufficientFunds, b.Available, amount)
	}
	b.Available = b.Available.Sub(amount)
	b.Locked = b.Locked.Add(amount)
	return touch(b)
}

// Release is the inverse of Reserve. A shortfall in locked means a
// reserve/release pairing bug somewhere upstream, never user input.
func Release(b *model.AccountBalance, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validationf("release amount must be positive, got %s", amount)
	}
	if b.Locked.LessThan(amount) {
		return apperr.Invariantf("release %s exceeds locked %s for user %s", amount, b.Locked, b.UserID)
	}
	b.Locked = b.Locked.Sub(amount)
	b.Available = b.Available.Add(amount)
	return touch(b)
}

// SettleBuy removes previously reserved funds as a purchase settles.
func SettleBuy(b *model.AccountBalance, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validationf("settle amount must be positive, got %s", amount)
	}
	if b.Locked.LessThan(amount) {
		return apperr.Invariantf("settle %s exceeds locked %s for user %s", amount, b.Locked, b.UserID)
	}
	b.Locked = b.Locked.Sub(amount)
	b.Total = b.Total.Sub(amount)
	b.TotalInvested = b.TotalInvested.Add(amount)
	return touch(b)
}

// SettleSell credits sale proceeds. Sell orders reserve no cash, only the
// position they draw from, so proceeds land in available directly.
func SettleSell(b *model.AccountBalance, proceeds decimal.Decimal) error {
	if !proceeds.IsPositive() {
		return apperr.Validationf("proceeds must be positive, got %s", proceeds)
	}
	b.Available = b.Available.Add(proceeds)
	b.Total = b.Total.Add(proceeds)
	return touch(b)
}

// ApplyDeposit credits a completed deposit exactly once.
func ApplyDeposit(b *model.AccountBalance, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validationf("deposit amount must be positive, got %s", amount)
	}
	b.Available = b.Available.Add(amount)
	b.Total = b.Total.Add(amount)
	b.TotalDeposited = b.TotalDeposited.Add(amount)
	return touch(b)
}

// ApplyWithdrawal debits a completed withdrawal from the locked funds that
// RequestWithdrawal reserved.
func ApplyWithdrawal(b *model.AccountBalance, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validationf("withdrawal amount must be positive, got %s", amount)
	}
	if b.Locked.LessThan(amount) {
		return apperr.Invariantf("withdrawal %s exceeds locked %s for user %s", amount, b.Locked, b.UserID)
	}
	b.Locked = b.Locked.Sub(amount)
	b.Total = b.Total.Sub(amount)
	b.TotalWithdrawn = b.TotalWithdrawn.Add(amount)
	return touch(b)
}

// AddRealizedPnL folds a closing fill's realized gain or loss into the
// cumulative counter. The cash effect of the fill is carried by the
// settle operations, so only the counter moves here.
func AddRealizedPnL(b *model.AccountBalance, delta decimal.Decimal) error {
	b.RealizedPnL = b.RealizedPnL.Add(delta)
	return touch(b)
}

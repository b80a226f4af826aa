package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountBalance struct {
	UserID         string          `json:"user_id"`
	Currency       string          `json:"currency"`
	Available      decimal.Decimal `json:"available"`
	Locked         decimal.Decimal `json:"locked"`
	Total          decimal.Decimal `json:"total"`
	TotalDeposited decimal.Decimal `json:"total_deposited"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
	TotalInvested  decimal.Decimal `json:"total_invested"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Consistent reports whether total equals available plus locked. Every
// mutating ledger operation must restore this identity before returning.
func (b AccountBalance) Consistent() bool {
	return b.Total.Equal(b.Available.Add(b.Locked))
}

package model

import (
	"time"

	"tradecore/internal/types"

	"github.com/shopspring/decimal"
)

// CashTransaction is a deposit or withdrawal request. Completion is decided
// by the external payment-verification flow; the engine only applies the
// balance effects of that decision.
type CashTransaction struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Kind      types.CashTxKind   `json:"kind"`
	Amount    decimal.Decimal    `json:"amount"`
	Currency  string             `json:"currency"`
	Status    types.CashTxStatus `json:"status"`
	Reason    string             `json:"reason,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	DecidedAt *time.Time         `json:"decided_at,omitempty"`
}

package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradecore/internal/apperr"
	"tradecore/internal/audit"
	"tradecore/internal/metrics"
	"tradecore/internal/model"
	"tradecore/internal/notify"
	"tradecore/internal/storage"
	"tradecore/internal/types"
	"tradecore/internal/userlock"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Service struct {
	db       storage.DB
	locks    *userlock.Keyed
	notifier notify.Emitter
	metrics  *metrics.Metrics
	log      zerolog.Logger
	currency string
}

func NewService(db storage.DB, locks *userlock.Keyed, notifier notify.Emitter, m *metrics.Metrics, log zerolog.Logger, currency string) *Service {
	if notifier == nil {
		notifier = notify.NewNopEmitter()
	}
	return &Service{db: db, locks: locks, notifier: notifier, metrics: m, log: log, currency: currency}
}

// GetBalance returns the user's balance row. A user with no ledger
// activity yet reads as a zero balance; the read writes nothing.
func (s *Service) GetBalance(ctx context.Context, userID string) (model.AccountBalance, error) {
	if userID == "" {
		return model.AccountBalance{}, apperr.Validationf("user id is required")
	}
	var b model.AccountBalance
	err := s.db.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		b, err = tx.Balances().Get(ctx, userID)
		return err
	})
	if errors.Is(err, apperr.ErrNotFound) {
		return model.AccountBalance{
			UserID:         userID,
			Currency:       s.currency,
			Available:      decimal.Zero,
			Locked:         decimal.Zero,
			Total:          decimal.Zero,
			TotalDeposited: decimal.Zero,
			TotalWithdrawn: decimal.Zero,
			TotalInvested:  decimal.Zero,
			RealizedPnL:    decimal.Zero,
		}, nil
	}
	return b, err
}

// Reserve locks amount of the user's available funds pending an outcome.
func (s *Service) Reserve(ctx context.Context, userID string, amount decimal.Decimal) (model.AccountBalance, error) {
	return s.mutate(ctx, userID, "balance.reserve", func(b *model.AccountBalance) error {
		return Reserve(b, amount)
	})
}

// Release returns previously reserved funds to available.
func (s *Service) Release(ctx context.Context, userID string, amount decimal.Decimal) (model.AccountBalance, error) {
	return s.mutate(ctx, userID, "balance.release", func(b *model.AccountBalance) error {
		return Release(b, amount)
	})
}

func (s *Service) mutate(ctx context.Context, userID, op string, fn func(*model.AccountBalance) error) (model.AccountBalance, error) {
	if userID == "" {
		return model.AccountBalance{}, apperr.Validationf("user id is required")
	}
	defer s.metrics.Observe(op, time.Now())
	var out model.AccountBalance
	err := s.locks.With(userID, func() error {
		return s.db.WithinTx(ctx, func(tx storage.Tx) error {
			b, err := tx.Balances().Ensure(ctx, userID, s.currency)
			if err != nil {
				return err
			}
			if err := fn(&b); err != nil {
				return err
			}
			if err := tx.Balances().Put(ctx, b); err != nil {
				return err
			}
			out = b
			return nil
		})
	})
	if err != nil {
		s.observeFailure(op, userID, err)
		return model.AccountBalance{}, err
	}
	return out, nil
}

func (s *Service) observeFailure(op, userID string, err error) {
	if apperr.Internal(err) {
		// flagged for operator attention: an invariant break is a prior bug
		s.metrics.InvariantFailure()
		s.log.Error().Str("op", op).Str("user_id", userID).Err(err).Msg("ledger invariant violation")
	}
}

// RequestDeposit records a pending deposit. Nothing is credited until the
// external payment verification confirms it.
func (s *Service) RequestDeposit(ctx context.Context, userID string, amount decimal.Decimal) (model.CashTransaction, error) {
	if userID == "" {
		return model.CashTransaction{}, apperr.Validationf("user id is required")
	}
	if !amount.IsPositive() {
		return model.CashTransaction{}, apperr.Validationf("deposit amount must be positive, got %s", amount)
	}
	t := model.CashTransaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      types.CashTxKindDeposit,
		Amount:    amount,
		Currency:  s.currency,
		Status:    types.CashTxStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	err := s.db.WithinTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.Balances().Ensure(ctx, userID, s.currency); err != nil {
			return err
		}
		return tx.CashTxs().Create(ctx, t)
	})
	if err != nil {
		return model.CashTransaction{}, err
	}
	return t, nil
}

// RequestWithdrawal reserves the amount and records a pending withdrawal.
func (s *Service) RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal) (model.CashTransaction, error) {
	if userID == "" {
		return model.CashTransaction{}, apperr.Validationf("user id is required")
	}
	if !amount.IsPositive() {
		return model.CashTransaction{}, apperr.Validationf("withdrawal amount must be positive, got %s", amount)
	}
	t := model.CashTransaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      types.CashTxKindWithdrawal,
		Amount:    amount,
		Currency:  s.currency,
		Status:    types.CashTxStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	err := s.locks.With(userID, func() error {
		return s.db.WithinTx(ctx, func(tx storage.Tx) error {
			b, err := tx.Balances().Ensure(ctx, userID, s.currency)
			if err != nil {
				return err
			}
			if err := Reserve(&b, amount); err != nil {
				return err
			}
			if err := tx.Balances().Put(ctx, b); err != nil {
				return err
			}
			return tx.CashTxs().Create(ctx, t)
		})
	})
	if err != nil {
		s.observeFailure("balance.request_withdrawal", userID, err)
		return model.CashTransaction{}, err
	}
	return t, nil
}

// Option adjusts what a cash-transaction decision commits alongside
// the balance effect.
type Option func(*txExtras)

type txExtras struct {
	audit *model.AuditLogEntry
}

// WithAudit records the given entry in the same transaction as the
// decision it describes.
func WithAudit(e model.AuditLogEntry) Option {
	return func(x *txExtras) { x.audit = &e }
}

func applyOptions(opts []Option) txExtras {
	var x txExtras
	for _, opt := range opts {
		opt(&x)
	}
	return x
}

// ConfirmDeposit credits a pending deposit. The decision that the payment
// completed is the external collaborator's; this applies its effects once.
func (s *Service) ConfirmDeposit(ctx context.Context, txID string, opts ...Option) (model.CashTransaction, error) {
	t, err := s.decide(ctx, txID, types.CashTxKindDeposit, types.CashTxStatusCompleted, "", ApplyDeposit, opts)
	if err != nil {
		return t, err
	}
	s.metrics.DepositConfirmed()
	s.notifier.Emit(ctx, notify.NewEvent(t.UserID, types.EventBalanceChanged, types.EventPriorityNormal,
		fmt.Sprintf("Deposit of %s %s credited", t.Amount, t.Currency)))
	return t, nil
}

// RejectDeposit marks a pending deposit rejected; balances never moved.
func (s *Service) RejectDeposit(ctx context.Context, txID, reason string, opts ...Option) (model.CashTransaction, error) {
	t, err := s.decide(ctx, txID, types.CashTxKindDeposit, types.CashTxStatusRejected, reason, nil, opts)
	if err != nil {
		return t, err
	}
	s.notifier.Emit(ctx, notify.NewEvent(t.UserID, types.EventBalanceChanged, types.EventPriorityNormal,
		fmt.Sprintf("Deposit of %s %s rejected", t.Amount, t.Currency)))
	return t, nil
}

// ConfirmWithdrawal pays out a pending withdrawal from its reservation.
func (s *Service) ConfirmWithdrawal(ctx context.Context, txID string, opts ...Option) (model.CashTransaction, error) {
	t, err := s.decide(ctx, txID, types.CashTxKindWithdrawal, types.CashTxStatusCompleted, "", ApplyWithdrawal, opts)
	if err != nil {
		return t, err
	}
	s.metrics.WithdrawalPaid()
	s.notifier.Emit(ctx, notify.NewEvent(t.UserID, types.EventBalanceChanged, types.EventPriorityNormal,
		fmt.Sprintf("Withdrawal of %s %s paid out", t.Amount, t.Currency)))
	return t, nil
}

// RejectWithdrawal releases the reservation of a pending withdrawal.
func (s *Service) RejectWithdrawal(ctx context.Context, txID, reason string, opts ...Option) (model.CashTransaction, error) {
	t, err := s.decide(ctx, txID, types.CashTxKindWithdrawal, types.CashTxStatusRejected, reason, Release, opts)
	if err != nil {
		return t, err
	}
	s.notifier.Emit(ctx, notify.NewEvent(t.UserID, types.EventBalanceChanged, types.EventPriorityNormal,
		fmt.Sprintf("Withdrawal of %s %s rejected", t.Amount, t.Currency)))
	return t, nil
}

// decide transitions a pending cash transaction and applies its balance
// effect in the same transaction. The user id is read first, then the
// transaction is re-checked under the user lock.
func (s *Service) decide(ctx context.Context, txID string, kind types.CashTxKind, to types.CashTxStatus, reason string, effect func(*model.AccountBalance, decimal.Decimal) error, opts []Option) (model.CashTransaction, error) {
	if txID == "" {
		return model.CashTransaction{}, apperr.Validationf("transaction id is required")
	}
	extras := applyOptions(opts)
	var peek model.CashTransaction
	err := s.db.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		peek, err = tx.CashTxs().Get(ctx, txID)
		return err
	})
	if err != nil {
		return model.CashTransaction{}, err
	}
	op := "balance." + string(kind) + "_decision"
	defer s.metrics.Observe(op, time.Now())
	var out model.CashTransaction
	err = s.locks.With(peek.UserID, func() error {
		return s.db.WithinTx(ctx, func(tx storage.Tx) error {
			t, err := tx.CashTxs().Get(ctx, txID)
			if err != nil {
				return err
			}
			if t.Kind != kind {
				return apperr.Validationf("transaction %s is a %s, not a %s", txID, t.Kind, kind)
			}
			if t.Status != types.CashTxStatusPending {
				return apperr.Transitionf("transaction %s already %s", txID, t.Status)
			}
			if effect != nil {
				b, err := tx.Balances().Ensure(ctx, t.UserID, s.currency)
				if err != nil {
					return err
				}
				if err := effect(&b, t.Amount); err != nil {
					return err
				}
				if err := tx.Balances().Put(ctx, b); err != nil {
					return err
				}
			}
			now := time.Now().UTC()
			t.Status = to
			t.Reason = reason
			t.DecidedAt = &now
			if err := tx.CashTxs().Update(ctx, t); err != nil {
				return err
			}
			if extras.audit != nil {
				if err := audit.Append(ctx, tx, *extras.audit); err != nil {
					return err
				}
			}
			out = t
			return nil
		})
	})
	if err != nil {
		s.observeFailure(op, peek.UserID, err)
		return model.CashTransaction{}, err
	}
	return out, nil
}

// ListCashTransactions is the read-only history surface.
func (s *Service) ListCashTransactions(ctx context.Context, f storage.CashTxFilter) ([]model.CashTransaction, error) {
	var out []model.CashTransaction
	err := s.db.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.CashTxs().List(ctx, f)
		return err
	})
	return out, err
}

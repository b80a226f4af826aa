package types

type OrderSide string

type OrderKind string

type OrderStatus string

type TimeInForce string

type AssetClass string

type PositionSide string

type CashTxKind string

type CashTxStatus string

type AuditAction string

type EventKind string

type EventPriority string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

const (
	OrderKindMarket    OrderKind = "market"
	OrderKindLimit     OrderKind = "limit"
	OrderKindStop      OrderKind = "stop"
	OrderKindStopLimit OrderKind = "stop_limit"
)

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusWorking         OrderStatus = "working"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "good_till_cancel"
	TimeInForceIOC TimeInForce = "immediate_or_cancel"
	TimeInForceFOK TimeInForce = "fill_or_kill"
)

const (
	AssetClassStock  AssetClass = "stock"
	AssetClassCrypto AssetClass = "crypto"
	AssetClassForex  AssetClass = "forex"
	AssetClassETF    AssetClass = "etf"
)

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

const (
	CashTxKindDeposit    CashTxKind = "deposit"
	CashTxKindWithdrawal CashTxKind = "withdrawal"
)

const (
	CashTxStatusPending   CashTxStatus = "pending"
	CashTxStatusCompleted CashTxStatus = "completed"
	CashTxStatusRejected  CashTxStatus = "rejected"
)

const (
	AuditActionForceExecute    AuditAction = "order_force_execute"
	AuditActionStatusOverride  AuditAction = "order_status_override"
	AuditActionBulkCancel      AuditAction = "order_bulk_cancel"
	AuditActionDayExpire       AuditAction = "order_day_expire"
	AuditActionPositionUnwind  AuditAction = "position_unwind"
	AuditActionDepositDecision AuditAction = "deposit_decision"
	AuditActionWithdrawDecided AuditAction = "withdrawal_decision"
	AuditActionOrderDelete     AuditAction = "order_delete"
)

const (
	EventOrderPlaced    EventKind = "order_placed"
	EventOrderFilled    EventKind = "order_filled"
	EventOrderCancelled EventKind = "order_cancelled"
	EventOrderRejected  EventKind = "order_rejected"
	EventBalanceChanged EventKind = "balance_changed"
	EventAdminAction    EventKind = "admin_action"
)

const (
	EventPriorityLow    EventPriority = "low"
	EventPriorityNormal EventPriority = "normal"
	EventPriorityHigh   EventPriority = "high"
)

// terminal statuses admit no further transitions
var terminalStatuses = map[OrderStatus]bool{
	OrderStatusFilled:    true,
	OrderStatusCancelled: true,
	OrderStatusRejected:  true,
}

func (s OrderStatus) Terminal() bool {
	return terminalStatuses[s]
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:         {OrderStatusWorking, OrderStatusRejected, OrderStatusCancelled},
	OrderStatusWorking:         {OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected},
	OrderStatusPartiallyFilled: {OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled},
}

// CanTransition reports whether the order state machine allows from -> to.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func ValidOrderSide(s OrderSide) bool {
	return s == OrderSideBuy || s == OrderSideSell
}

func ValidOrderKind(k OrderKind) bool {
	switch k {
	case OrderKindMarket, OrderKindLimit, OrderKindStop, OrderKindStopLimit:
		return true
	}
	return false
}

func ValidTimeInForce(t TimeInForce) bool {
	switch t {
	case TimeInForceDay, TimeInForceGTC, TimeInForceIOC, TimeInForceFOK:
		return true
	}
	return false
}

func ValidAssetClass(a AssetClass) bool {
	switch a {
	case AssetClassStock, AssetClassCrypto, AssetClassForex, AssetClassETF:
		return true
	}
	return false
}

func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

package models

import (
	"fmt"

	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
)

type LotStatus string

const (
	LotStatusNew                  LotStatus = "new"
	LotStatusPaid                 LotStatus = "paid"
	LotStatusDelivered            LotStatus = "delivered"
	LotStatusDeliveredToWarehouse LotStatus = "delivered_to_warehouse"
)

var lotStatusRank = map[LotStatus]int{
	LotStatusNew:                  0,
	LotStatusPaid:                 1,
	LotStatusDelivered:            2,
	LotStatusDeliveredToWarehouse: 3,
}

func (s LotStatus) IsValid() bool {
	_, ok := lotStatusRank[s]
	return ok
}

// Editable reports whether the lot (and its lines/expenses) may still be mutated.
// Once delivered the lot is frozen for edits.
func (s LotStatus) Editable() bool {
	return s == LotStatusNew || s == LotStatusPaid
}

// ValidateLotTransition enforces the linear lot lifecycle:
// new -> paid -> delivered -> delivered_to_warehouse. No skipping, no reverting.
func ValidateLotTransition(current, next LotStatus) error {
	if !next.IsValid() {
		return utils.NewTransitionError("lot", string(current), string(next), "unknown status")
	}
	if current == next {
		return utils.NewTransitionError("lot", string(current), string(next), fmt.Sprintf("lot is already %s", current))
	}
	if lotStatusRank[next] != lotStatusRank[current]+1 {
		return utils.NewTransitionError("lot", string(current), string(next), "statuses advance one step forward only")
	}
	return nil
}

type OrderStatus string

const (
	OrderStatusNew     OrderStatus = "new"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusShipped OrderStatus = "shipped"
)

var orderStatusRank = map[OrderStatus]int{
	OrderStatusNew:     0,
	OrderStatusPaid:    1,
	OrderStatusShipped: 2,
}

func (s OrderStatus) IsValid() bool {
	_, ok := orderStatusRank[s]
	return ok
}

func (s OrderStatus) Editable() bool {
	return s != OrderStatusShipped
}

// ValidateOrderTransition enforces new -> paid -> shipped, one step forward only.
func ValidateOrderTransition(current, next OrderStatus) error {
	if !next.IsValid() {
		return utils.NewTransitionError("order", string(current), string(next), "unknown status")
	}
	if current == next {
		return utils.NewTransitionError("order", string(current), string(next), fmt.Sprintf("order is already %s", current))
	}
	if orderStatusRank[next] != orderStatusRank[current]+1 {
		return utils.NewTransitionError("order", string(current), string(next), "statuses advance one step forward only")
	}
	return nil
}

type MovementKind string

const (
	MovementKindIn       MovementKind = "in"
	MovementKindOut      MovementKind = "out"
	MovementKindReturn   MovementKind = "return"
	MovementKindWriteOff MovementKind = "write_off"
)

func (k MovementKind) IsValid() bool {
	switch k {
	case MovementKindIn, MovementKindOut, MovementKindReturn, MovementKindWriteOff:
		return true
	}
	return false
}

// IsInbound: in/return add stock, out/write_off subtract.
func (k MovementKind) IsInbound() bool {
	return k == MovementKindIn || k == MovementKindReturn
}

type DistributionPolicy string

const (
	DistributionEqual    DistributionPolicy = "equal"
	DistributionByWeight DistributionPolicy = "by_weight"
	DistributionByPrice  DistributionPolicy = "by_price"
)

func (d DistributionPolicy) IsValid() bool {
	switch d {
	case DistributionEqual, DistributionByWeight, DistributionByPrice:
		return true
	}
	return false
}

type ExpenseCategory string

const (
	ExpenseCategoryTransportation ExpenseCategory = "transportation"
	ExpenseCategoryCustoms        ExpenseCategory = "customs"
	ExpenseCategoryOther          ExpenseCategory = "other"
)

func (c ExpenseCategory) IsValid() bool {
	switch c {
	case ExpenseCategoryTransportation, ExpenseCategoryCustoms, ExpenseCategoryOther:
		return true
	}
	return false
}

type LedgerDirection string

const (
	LedgerDirectionIn  LedgerDirection = "in"
	LedgerDirectionOut LedgerDirection = "out"
)

// LedgerReferenceType is the typed half of a ledger entry's idempotency key.
type LedgerReferenceType string

const (
	LedgerReferenceTypeLotPayment LedgerReferenceType = "LOT_PAYMENT"
	LedgerReferenceTypeLotExpense LedgerReferenceType = "LOT_EXPENSE"
	LedgerReferenceTypeOrderSale  LedgerReferenceType = "ORDER_SALE"
	LedgerReferenceTypeManual     LedgerReferenceType = "MANUAL"
)

type AggregateKind string

const (
	AggregateKindLot   AggregateKind = "LOT"
	AggregateKindOrder AggregateKind = "ORDER"
)

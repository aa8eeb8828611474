package models

import (
	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
)

// LineSnapshot is a lot line plus the referenced product's unit weight,
// detached from the DB so allocation stays a pure computation.
type LineSnapshot struct {
	LineId        int
	ProductId     int
	Quantity      decimal.Decimal
	PurchasePrice decimal.Decimal
	UnitWeight    decimal.Decimal
}

func (l LineSnapshot) TotalPurchasePrice() decimal.Decimal {
	return l.Quantity.Mul(l.PurchasePrice)
}

func (l LineSnapshot) TotalWeight() decimal.Decimal {
	return l.Quantity.Mul(l.UnitWeight)
}

type ExpenseSnapshot struct {
	ExpenseId int
	Policy    DistributionPolicy
	Amount    decimal.Decimal
}

type LotSnapshot struct {
	LotId    int
	Lines    []LineSnapshot
	Expenses []ExpenseSnapshot
}

func (s *LotSnapshot) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, line := range s.Lines {
		total = total.Add(line.Quantity)
	}
	return total
}

func (s *LotSnapshot) TotalWeight() decimal.Decimal {
	total := decimal.Zero
	for _, line := range s.Lines {
		total = total.Add(line.TotalWeight())
	}
	return total
}

func (s *LotSnapshot) TotalPurchasePrice() decimal.Decimal {
	total := decimal.Zero
	for _, line := range s.Lines {
		total = total.Add(line.TotalPurchasePrice())
	}
	return total
}

func (s *LotSnapshot) TotalExpense() decimal.Decimal {
	total := decimal.Zero
	for _, expense := range s.Expenses {
		total = total.Add(expense.Amount)
	}
	return total
}

// GrandTotal = purchase price total + expense total.
func (s *LotSnapshot) GrandTotal() decimal.Decimal {
	return s.TotalPurchasePrice().Add(s.TotalExpense())
}

// SkippedAllocation flags an expense whose policy denominator was zero.
// The amount stays unallocated; the caller surfaces it to the operator.
type SkippedAllocation struct {
	ExpenseId int
	Policy    DistributionPolicy
	Reason    string
}

type AllocationResult struct {
	// LandedUnitCosts maps line id to purchase price + allocated expense share per unit.
	LandedUnitCosts map[int]decimal.Decimal
	Skipped         []SkippedAllocation
}

// AllocateLandedCosts distributes every lot expense across the lines.
// Policies:
//   - equal: amount / total quantity, added per unit
//   - by_weight: amount / total weight x line unit weight
//   - by_price: amount / total purchase price x line purchase price
//
// A policy whose denominator is zero is skipped, never an error; multiple
// expenses under the same policy accumulate additively.
func AllocateLandedCosts(s *LotSnapshot) *AllocationResult {
	result := AllocationResult{
		LandedUnitCosts: make(map[int]decimal.Decimal, len(s.Lines)),
	}

	totalQuantity := s.TotalQuantity()
	totalWeight := s.TotalWeight()
	totalPurchasePrice := s.TotalPurchasePrice()

	perUnitEqual := decimal.Zero
	perWeightUnit := decimal.Zero
	perPriceUnit := decimal.Zero

	for _, expense := range s.Expenses {
		switch expense.Policy {
		case DistributionEqual:
			if totalQuantity.IsZero() {
				result.Skipped = append(result.Skipped, SkippedAllocation{
					ExpenseId: expense.ExpenseId,
					Policy:    expense.Policy,
					Reason:    "total lot quantity is zero",
				})
				continue
			}
			perUnitEqual = perUnitEqual.Add(expense.Amount.Div(totalQuantity))
		case DistributionByWeight:
			if totalWeight.IsZero() {
				result.Skipped = append(result.Skipped, SkippedAllocation{
					ExpenseId: expense.ExpenseId,
					Policy:    expense.Policy,
					Reason:    "total lot weight is zero",
				})
				continue
			}
			perWeightUnit = perWeightUnit.Add(expense.Amount.Div(totalWeight))
		case DistributionByPrice:
			if totalPurchasePrice.IsZero() {
				result.Skipped = append(result.Skipped, SkippedAllocation{
					ExpenseId: expense.ExpenseId,
					Policy:    expense.Policy,
					Reason:    "total lot purchase price is zero",
				})
				continue
			}
			perPriceUnit = perPriceUnit.Add(expense.Amount.Div(totalPurchasePrice))
		}
	}

	for _, line := range s.Lines {
		landed := line.PurchasePrice.
			Add(perUnitEqual).
			Add(perWeightUnit.Mul(line.UnitWeight)).
			Add(perPriceUnit.Mul(line.PurchasePrice))
		result.LandedUnitCosts[line.LineId] = landed
	}
	return &result
}

// LandedUnitCost returns one line's fully landed unit cost.
func (s *LotSnapshot) LandedUnitCost(lineId int) (decimal.Decimal, error) {
	result := AllocateLandedCosts(s)
	cost, ok := result.LandedUnitCosts[lineId]
	if !ok {
		return decimal.Zero, utils.ErrorRecordNotFound
	}
	return cost, nil
}

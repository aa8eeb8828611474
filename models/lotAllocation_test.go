package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func requireDecimalEqual(t *testing.T, want, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, want.Equal(got), "want %s, got %s (%v)", want, got, msgAndArgs)
}

// Two lines, one equal-policy expense of 30 over 30 units: one extra unit
// of cost on every unit regardless of line.
func twoLineSnapshot() *models.LotSnapshot {
	return &models.LotSnapshot{
		LotId: 1,
		Lines: []models.LineSnapshot{
			{LineId: 11, ProductId: 101, Quantity: d("10"), PurchasePrice: d("5"), UnitWeight: d("1")},
			{LineId: 12, ProductId: 102, Quantity: d("20"), PurchasePrice: d("2"), UnitWeight: d("2")},
		},
	}
}

func TestAllocateLandedCosts_EqualPolicy(t *testing.T) {
	snapshot := twoLineSnapshot()
	snapshot.Expenses = []models.ExpenseSnapshot{
		{ExpenseId: 1, Policy: models.DistributionEqual, Amount: d("30")},
	}

	result := models.AllocateLandedCosts(snapshot)
	require.Empty(t, result.Skipped)
	requireDecimalEqual(t, d("6"), result.LandedUnitCosts[11])
	requireDecimalEqual(t, d("3"), result.LandedUnitCosts[12])
}

func TestAllocateLandedCosts_ByWeightPolicy(t *testing.T) {
	// total weight 10x1 + 20x2 = 50; 100 / 50 = 2 per weight unit
	snapshot := twoLineSnapshot()
	snapshot.Expenses = []models.ExpenseSnapshot{
		{ExpenseId: 1, Policy: models.DistributionByWeight, Amount: d("100")},
	}

	result := models.AllocateLandedCosts(snapshot)
	require.Empty(t, result.Skipped)
	requireDecimalEqual(t, d("7"), result.LandedUnitCosts[11])
	requireDecimalEqual(t, d("6"), result.LandedUnitCosts[12])
}

func TestAllocateLandedCosts_ByPricePolicy(t *testing.T) {
	// total purchase price 50 + 40 = 90; 45 / 90 = 0.5 per price unit
	snapshot := twoLineSnapshot()
	snapshot.Expenses = []models.ExpenseSnapshot{
		{ExpenseId: 1, Policy: models.DistributionByPrice, Amount: d("45")},
	}

	result := models.AllocateLandedCosts(snapshot)
	require.Empty(t, result.Skipped)
	requireDecimalEqual(t, d("7.5"), result.LandedUnitCosts[11])
	requireDecimalEqual(t, d("3"), result.LandedUnitCosts[12])
}

// Allocation must preserve totals within rounding tolerance: sum of landed
// cost x quantity equals purchase price total + allocated expense total,
// under every policy. Division (30/90 under by_price) carries shopspring's
// default 16-digit precision, so the reconstruction is compared within an
// epsilon, not exactly.
func TestAllocateLandedCosts_PreservesTotals(t *testing.T) {
	epsilon := d("0.0001")
	for _, policy := range []models.DistributionPolicy{
		models.DistributionEqual,
		models.DistributionByWeight,
		models.DistributionByPrice,
	} {
		t.Run(string(policy), func(t *testing.T) {
			snapshot := twoLineSnapshot()
			snapshot.Expenses = []models.ExpenseSnapshot{
				{ExpenseId: 1, Policy: policy, Amount: d("30")},
			}

			result := models.AllocateLandedCosts(snapshot)
			require.Empty(t, result.Skipped)

			landedTotal := decimal.Zero
			for _, line := range snapshot.Lines {
				landedTotal = landedTotal.Add(result.LandedUnitCosts[line.LineId].Mul(line.Quantity))
			}
			diff := snapshot.GrandTotal().Sub(landedTotal).Abs()
			require.Truef(t, diff.LessThanOrEqual(epsilon),
				"want %s within %s, got %s", snapshot.GrandTotal(), epsilon, landedTotal)
		})
	}
}

func TestAllocateLandedCosts_MultipleExpensesAccumulate(t *testing.T) {
	snapshot := twoLineSnapshot()
	snapshot.Expenses = []models.ExpenseSnapshot{
		{ExpenseId: 1, Policy: models.DistributionEqual, Amount: d("30")},
		{ExpenseId: 2, Policy: models.DistributionEqual, Amount: d("60")},
		{ExpenseId: 3, Policy: models.DistributionByPrice, Amount: d("45")},
	}

	// equal: (30+60)/30 = 3 per unit; by_price: 45/90 = 0.5 per price unit
	result := models.AllocateLandedCosts(snapshot)
	require.Empty(t, result.Skipped)
	requireDecimalEqual(t, d("10.5"), result.LandedUnitCosts[11]) // 5 + 3 + 2.5
	requireDecimalEqual(t, d("6"), result.LandedUnitCosts[12])    // 2 + 3 + 1
}

func TestAllocateLandedCosts_ZeroDenominatorsAreSkipped(t *testing.T) {
	// Zero weight and zero purchase price everywhere, plus no quantity.
	snapshot := &models.LotSnapshot{
		LotId: 2,
		Lines: []models.LineSnapshot{
			{LineId: 21, ProductId: 201, Quantity: d("0"), PurchasePrice: d("0"), UnitWeight: d("0")},
		},
		Expenses: []models.ExpenseSnapshot{
			{ExpenseId: 1, Policy: models.DistributionEqual, Amount: d("10")},
			{ExpenseId: 2, Policy: models.DistributionByWeight, Amount: d("10")},
			{ExpenseId: 3, Policy: models.DistributionByPrice, Amount: d("10")},
		},
	}

	result := models.AllocateLandedCosts(snapshot)
	require.Len(t, result.Skipped, 3)
	skippedExpenses := map[int]models.DistributionPolicy{}
	for _, s := range result.Skipped {
		require.NotEmpty(t, s.Reason)
		skippedExpenses[s.ExpenseId] = s.Policy
	}
	require.Equal(t, map[int]models.DistributionPolicy{
		1: models.DistributionEqual,
		2: models.DistributionByWeight,
		3: models.DistributionByPrice,
	}, skippedExpenses)

	// Skipped expenses allocate nothing; landed cost stays at purchase price.
	requireDecimalEqual(t, d("0"), result.LandedUnitCosts[21])
}

func TestAllocateLandedCosts_SkipOnlyAffectsZeroDenominatorPolicy(t *testing.T) {
	// Weights are all zero, but quantity is not: the by_weight expense is
	// skipped while the equal expense still allocates.
	snapshot := &models.LotSnapshot{
		LotId: 3,
		Lines: []models.LineSnapshot{
			{LineId: 31, ProductId: 301, Quantity: d("10"), PurchasePrice: d("4"), UnitWeight: d("0")},
		},
		Expenses: []models.ExpenseSnapshot{
			{ExpenseId: 1, Policy: models.DistributionByWeight, Amount: d("50")},
			{ExpenseId: 2, Policy: models.DistributionEqual, Amount: d("20")},
		},
	}

	result := models.AllocateLandedCosts(snapshot)
	require.Len(t, result.Skipped, 1)
	require.Equal(t, 1, result.Skipped[0].ExpenseId)
	requireDecimalEqual(t, d("6"), result.LandedUnitCosts[31]) // 4 + 20/10
}

func TestLotSnapshot_GrandTotal(t *testing.T) {
	snapshot := twoLineSnapshot()
	snapshot.Expenses = []models.ExpenseSnapshot{
		{ExpenseId: 1, Policy: models.DistributionEqual, Amount: d("30")},
		{ExpenseId: 2, Policy: models.DistributionByPrice, Amount: d("12.5")},
	}

	requireDecimalEqual(t, d("90"), snapshot.TotalPurchasePrice())
	requireDecimalEqual(t, d("42.5"), snapshot.TotalExpense())
	requireDecimalEqual(t, d("132.5"), snapshot.GrandTotal())
}

// The snapshot the receiving transaction allocates from must mirror the
// lot it already loaded and validated: same lines, same expenses, weights
// keyed by product.
func TestBuildLotSnapshot(t *testing.T) {
	lot := &models.Lot{
		ID: 7,
		Lines: []*models.LotLine{
			{ID: 71, ProductId: 101, Quantity: d("10"), PurchasePrice: d("5")},
			{ID: 72, ProductId: 102, Quantity: d("20"), PurchasePrice: d("2")},
		},
		Expenses: []*models.LotExpense{
			{ID: 91, Policy: models.DistributionEqual, AmountSpent: d("30")},
		},
	}
	weights := map[int]decimal.Decimal{101: d("1.5"), 102: d("2.5")}

	snapshot := models.BuildLotSnapshot(lot, weights)
	require.Equal(t, 7, snapshot.LotId)
	require.Len(t, snapshot.Lines, 2)
	require.Equal(t, 71, snapshot.Lines[0].LineId)
	requireDecimalEqual(t, d("1.5"), snapshot.Lines[0].UnitWeight)
	requireDecimalEqual(t, d("2.5"), snapshot.Lines[1].UnitWeight)
	require.Len(t, snapshot.Expenses, 1)
	require.Equal(t, 91, snapshot.Expenses[0].ExpenseId)
	requireDecimalEqual(t, d("30"), snapshot.Expenses[0].Amount)

	result := models.AllocateLandedCosts(snapshot)
	require.Empty(t, result.Skipped)
	requireDecimalEqual(t, d("6"), result.LandedUnitCosts[71])
	requireDecimalEqual(t, d("3"), result.LandedUnitCosts[72])
}

func TestLandedUnitCost_UnknownLine(t *testing.T) {
	snapshot := twoLineSnapshot()
	_, err := snapshot.LandedUnitCost(999)
	require.Error(t, err)
}

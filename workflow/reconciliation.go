package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
)

// ExcludedExpensesForLot reports the lot's expenses that have no ledger
// entry yet, typically ones added after the lot was already paid. It only
// reports; posting them is an operator decision.
func ExcludedExpensesForLot(ctx context.Context, lotId int) ([]*models.LotExpense, error) {
	if _, err := models.GetLot(ctx, lotId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var expenses []*models.LotExpense
	err := db.WithContext(ctx).
		Where("lot_id = ?", lotId).
		Where(`NOT EXISTS (
			SELECT 1 FROM ledger_entries
			WHERE ledger_entries.reference_type = ?
			  AND ledger_entries.reference_id = lot_expenses.lot_id
			  AND ledger_entries.sub_id = lot_expenses.id
		)`, models.LedgerReferenceTypeLotExpense).
		Order("id").
		Find(&expenses).Error
	if err != nil {
		return nil, err
	}
	return expenses, nil
}

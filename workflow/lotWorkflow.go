package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SubmitLotStatusChange advances a lot one step along
// new -> paid -> delivered. delivered_to_warehouse is rejected here: the
// only path to it is ReceiveLotIntoWarehouse, which also creates the stock.
// An accepted transition to paid posts the lot's ledger entries in the
// same transaction.
func SubmitLotStatusChange(ctx context.Context, logger *logrus.Logger, lotId int, newStatus models.LotStatus) (*models.Lot, error) {
	lot, err := models.GetLot(ctx, lotId)
	if err != nil {
		return nil, err
	}

	if newStatus == models.LotStatusDeliveredToWarehouse {
		return nil, utils.NewTransitionError("lot", string(lot.Status), string(newStatus),
			"lots are received into a warehouse through the receiving operation")
	}
	if err := models.ValidateLotTransition(lot.Status, newStatus); err != nil {
		return nil, err
	}

	lock, err := acquireCrossInstanceLock(ctx, models.AggregateKindLot, lotId)
	if err != nil {
		return nil, err
	}
	defer releaseCrossInstanceLock(ctx, lock)

	db := config.GetDB()
	var updated models.Lot
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquirePostingLock(tx, models.AggregateKindLot, lotId); err != nil {
			return err
		}
		defer ReleasePostingLock(tx, models.AggregateKindLot, lotId)

		// Re-read under the lock; a concurrent submit may have advanced the lot.
		if err := tx.Preload("Lines").Preload("Expenses").First(&updated, lotId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		if err := models.ValidateLotTransition(updated.Status, newStatus); err != nil {
			return err
		}

		previous := updated.Status
		updated.Status = newStatus
		if err := tx.Model(&models.Lot{}).Where("id = ?", lotId).
			Update("status", newStatus).Error; err != nil {
			return err
		}
		if err := models.RecordStatusEvent(tx.WithContext(ctx), models.AggregateKindLot, lotId,
			string(previous), string(newStatus)); err != nil {
			return err
		}

		if newStatus == models.LotStatusPaid {
			return postLotPaid(tx, logger, &updated)
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, "workflow", "SubmitLotStatusChange", "transaction", lotId, err)
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"module": "workflow",
		"lotId":  lotId,
		"status": newStatus,
	}).Info("lot status changed")
	return &updated, nil
}

// postLotPaid creates the lot's "cost out" entries: one payment entry for
// the purchase price total and one entry per expense. Every entry is
// guarded by its typed idempotency key, so re-posting is a safe no-op.
func postLotPaid(tx *gorm.DB, logger *logrus.Logger, lot *models.Lot) error {
	totalPurchasePrice := decimal.Zero
	for _, line := range lot.Lines {
		totalPurchasePrice = totalPurchasePrice.Add(line.TotalPurchasePrice())
	}

	paymentRef := models.LedgerReferenceTypeLotPayment
	lotId := lot.ID
	subZero := 0
	payment := models.LedgerEntry{
		Name:          fmt.Sprintf("Payment for lot #%d", lot.ID),
		Description:   fmt.Sprintf("Payment for the goods of lot #%d from %s", lot.ID, lot.LotDate.Format("2006-01-02")),
		Amount:        totalPurchasePrice,
		Direction:     models.LedgerDirectionOut,
		EntryDate:     lot.LotDate,
		ReferenceType: &paymentRef,
		ReferenceId:   &lotId,
		SubId:         &subZero,
	}
	if _, skipped, err := PostLedgerEntry(tx, &payment); err != nil {
		return err
	} else if skipped {
		logger.WithFields(logrus.Fields{
			"module": "workflow",
			"lotId":  lot.ID,
		}).Info("lot payment already posted; skipping")
	}

	for _, expense := range lot.Expenses {
		expenseRef := models.LedgerReferenceTypeLotExpense
		expenseId := expense.ID
		entry := models.LedgerEntry{
			Name: fmt.Sprintf("Expense #%d for lot #%d", expense.ID, lot.ID),
			Description: fmt.Sprintf("Expense #%d (%s) from %s for lot #%d",
				expense.ID, expense.Category, expense.ExpenseDate.Format("2006-01-02"), lot.ID),
			Amount:        expense.AmountSpent,
			Direction:     models.LedgerDirectionOut,
			EntryDate:     expense.ExpenseDate,
			ReferenceType: &expenseRef,
			ReferenceId:   &lotId,
			SubId:         &expenseId,
		}
		if _, skipped, err := PostLedgerEntry(tx, &entry); err != nil {
			return err
		} else if skipped {
			logger.WithFields(logrus.Fields{
				"module":    "workflow",
				"lotId":     lot.ID,
				"expenseId": expense.ID,
			}).Info("lot expense already posted; skipping")
		}
	}
	return nil
}

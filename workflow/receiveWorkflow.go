package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReceiveLotIntoWarehouse transfers a delivered lot into a warehouse:
// each line becomes an inbound movement valued at its landed unit cost,
// and the lot advances to delivered_to_warehouse. This is the only path
// to that status. All movements and the status change commit together or
// not at all.
func ReceiveLotIntoWarehouse(ctx context.Context, logger *logrus.Logger, lotId, warehouseId int) ([]*models.StockMovement, error) {
	if _, err := models.GetWarehouse(ctx, warehouseId); err != nil {
		return nil, utils.NewValidationError("warehouse not found")
	}
	lot, err := models.GetLot(ctx, lotId)
	if err != nil {
		return nil, err
	}
	if lot.Status != models.LotStatusDelivered {
		return nil, utils.NewTransitionError("lot", string(lot.Status), string(models.LotStatusDeliveredToWarehouse),
			"only delivered lots can be received into a warehouse")
	}

	lock, err := acquireCrossInstanceLock(ctx, models.AggregateKindLot, lotId)
	if err != nil {
		return nil, err
	}
	defer releaseCrossInstanceLock(ctx, lock)

	db := config.GetDB()
	var movements []*models.StockMovement
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquirePostingLock(tx, models.AggregateKindLot, lotId); err != nil {
			return err
		}
		defer ReleasePostingLock(tx, models.AggregateKindLot, lotId)

		var current models.Lot
		if err := tx.Preload("Lines").Preload("Expenses").First(&current, lotId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		if current.Status != models.LotStatusDelivered {
			return utils.NewTransitionError("lot", string(current.Status), string(models.LotStatusDeliveredToWarehouse),
				"only delivered lots can be received into a warehouse")
		}

		snapshot, err := models.LotSnapshotInTx(tx, ctx, &current)
		if err != nil {
			return err
		}
		allocation := models.AllocateLandedCosts(snapshot)
		for _, skipped := range allocation.Skipped {
			logger.WithFields(logrus.Fields{
				"module":    "workflow",
				"lotId":     lotId,
				"expenseId": skipped.ExpenseId,
				"policy":    skipped.Policy,
				"reason":    skipped.Reason,
			}).Warn("expense allocation skipped")
		}

		for _, line := range current.Lines {
			landedCost, ok := allocation.LandedUnitCosts[line.ID]
			if !ok {
				return utils.NewValidationError("no landed cost computed for lot line #%d", line.ID)
			}
			unitCost := landedCost
			movement, err := models.RecordMovement(tx, ctx, &models.NewStockMovement{
				ProductId:   line.ProductId,
				WarehouseId: warehouseId,
				Quantity:    line.Quantity,
				UnitCost:    &unitCost,
				Kind:        models.MovementKindIn,
			})
			if err != nil {
				return err
			}
			movements = append(movements, movement)
		}

		if err := tx.Model(&models.Lot{}).Where("id = ?", lotId).
			Update("status", models.LotStatusDeliveredToWarehouse).Error; err != nil {
			return err
		}
		return models.RecordStatusEvent(tx.WithContext(ctx), models.AggregateKindLot, lotId,
			string(models.LotStatusDelivered), string(models.LotStatusDeliveredToWarehouse))
	})
	if err != nil {
		config.LogError(logger, "workflow", "ReceiveLotIntoWarehouse", "transaction", lotId, err)
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"module":      "workflow",
		"lotId":       lotId,
		"warehouseId": warehouseId,
		"movements":   len(movements),
	}).Info("lot received into warehouse")
	return movements, nil
}

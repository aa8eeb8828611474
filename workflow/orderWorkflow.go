package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SubmitOrderStatusChange advances an order one step along
// new -> paid -> shipped. paid posts the sale to the cash ledger and adds
// to the consumer's running total; shipped with a destination warehouse
// records one outbound movement per line, all in one transaction.
func SubmitOrderStatusChange(ctx context.Context, logger *logrus.Logger, orderId int, newStatus models.OrderStatus) (*models.Order, error) {
	order, err := models.GetOrder(ctx, orderId)
	if err != nil {
		return nil, err
	}
	if err := models.ValidateOrderTransition(order.Status, newStatus); err != nil {
		return nil, err
	}

	lock, err := acquireCrossInstanceLock(ctx, models.AggregateKindOrder, orderId)
	if err != nil {
		return nil, err
	}
	defer releaseCrossInstanceLock(ctx, lock)

	db := config.GetDB()
	var updated models.Order
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquirePostingLock(tx, models.AggregateKindOrder, orderId); err != nil {
			return err
		}
		defer ReleasePostingLock(tx, models.AggregateKindOrder, orderId)

		if err := tx.Preload("Lines").First(&updated, orderId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		if err := models.ValidateOrderTransition(updated.Status, newStatus); err != nil {
			return err
		}

		previous := updated.Status
		updated.Status = newStatus
		if err := tx.Model(&models.Order{}).Where("id = ?", orderId).
			Update("status", newStatus).Error; err != nil {
			return err
		}
		if err := models.RecordStatusEvent(tx.WithContext(ctx), models.AggregateKindOrder, orderId,
			string(previous), string(newStatus)); err != nil {
			return err
		}

		switch newStatus {
		case models.OrderStatusPaid:
			return postOrderPaid(tx, ctx, logger, &updated)
		case models.OrderStatusShipped:
			return shipOrder(tx, ctx, logger, &updated)
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, "workflow", "SubmitOrderStatusChange", "transaction", orderId, err)
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"module":  "workflow",
		"orderId": orderId,
		"status":  newStatus,
	}).Info("order status changed")
	return &updated, nil
}

// postOrderPaid posts a "cost in" entry for the order's retail total and
// adds the same amount to the consumer's running total. The consumer
// update only happens when the entry is actually created, so a double
// submit cannot double-count the total.
func postOrderPaid(tx *gorm.DB, ctx context.Context, logger *logrus.Logger, order *models.Order) error {
	totalRetail, err := order.TotalRetailPrice(ctx)
	if err != nil {
		return err
	}

	saleRef := models.LedgerReferenceTypeOrderSale
	orderId := order.ID
	subZero := 0
	entry := models.LedgerEntry{
		Name:          fmt.Sprintf("Sale for order #%d", order.ID),
		Description:   fmt.Sprintf("Sale from %s", order.OrderDate.Format("2006-01-02")),
		Amount:        totalRetail,
		Direction:     models.LedgerDirectionIn,
		EntryDate:     order.OrderDate,
		ReferenceType: &saleRef,
		ReferenceId:   &orderId,
		SubId:         &subZero,
	}
	_, skipped, err := PostLedgerEntry(tx, &entry)
	if err != nil {
		return err
	}
	if skipped {
		logger.WithFields(logrus.Fields{
			"module":  "workflow",
			"orderId": order.ID,
		}).Info("order sale already posted; skipping")
		return nil
	}

	return models.AddConsumerTotalCost(tx, order.ConsumerId, totalRetail)
}

// shipOrder records the outbound movements for an order with a destination
// warehouse. The negative-stock check in RecordMovement runs inside this
// transaction, so an oversold line rolls the whole shipment back.
func shipOrder(tx *gorm.DB, ctx context.Context, logger *logrus.Logger, order *models.Order) error {
	if order.WarehouseId == nil {
		logger.WithFields(logrus.Fields{
			"module":  "workflow",
			"orderId": order.ID,
		}).Warn("order shipped without a destination warehouse; no stock movements recorded")
		return nil
	}

	for _, line := range order.Lines {
		_, err := models.RecordMovement(tx, ctx, &models.NewStockMovement{
			ProductId:   line.ProductId,
			WarehouseId: *order.WarehouseId,
			Quantity:    line.Quantity,
			UnitCost:    nil,
			Kind:        models.MovementKindOut,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

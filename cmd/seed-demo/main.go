package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"bitbucket.org/mmdatafocus/warehouse_backend/workflow"
	"github.com/shopspring/decimal"
)

// Seeds a demo dataset and runs one lot and one order through their full
// lifecycle, so a fresh environment has stock, ledger entries and a
// consumer total to look at.
func main() {
	receive := flag.Bool("receive", true, "Run the demo lot through paid/delivered/received and ship the demo order")
	flag.Parse()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "SeedDemo")

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	logger := config.GetLogger()

	category, err := models.CreateCategory(ctx, &models.NewCategory{
		Name:        "Demo electronics",
		Description: "Seeded demo category",
	})
	fatalIf(err, "create category")

	kettle, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:        "Demo kettle",
		CategoryId:  category.ID,
		Weight:      decimal.NewFromFloat(1.5),
		RetailPrice: decimal.NewFromInt(25),
	})
	fatalIf(err, "create product kettle")

	toaster, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:        "Demo toaster",
		CategoryId:  category.ID,
		Weight:      decimal.NewFromFloat(2.5),
		RetailPrice: decimal.NewFromInt(40),
	})
	fatalIf(err, "create product toaster")

	warehouse, err := models.CreateWarehouse(ctx, &models.NewWarehouse{
		Name:        "Demo warehouse",
		Description: "Seeded demo warehouse",
	})
	fatalIf(err, "create warehouse")

	consumer, err := models.CreateConsumer(ctx, &models.NewConsumer{
		Name:        "Demo consumer",
		Description: "Seeded demo consumer",
	})
	fatalIf(err, "create consumer")

	lot, err := models.CreateLot(ctx, &models.NewLot{Description: "Seeded demo lot"})
	fatalIf(err, "create lot")

	_, err = models.AddLotLine(ctx, lot.ID, &models.NewLotLine{
		ProductId:     kettle.ID,
		Quantity:      decimal.NewFromInt(10),
		PurchasePrice: decimal.NewFromInt(5),
	})
	fatalIf(err, "add lot line kettle")

	_, err = models.AddLotLine(ctx, lot.ID, &models.NewLotLine{
		ProductId:     toaster.ID,
		Quantity:      decimal.NewFromInt(20),
		PurchasePrice: decimal.NewFromInt(2),
	})
	fatalIf(err, "add lot line toaster")

	_, err = models.AddLotExpense(ctx, lot.ID, &models.NewLotExpense{
		Category:    models.ExpenseCategoryTransportation,
		Policy:      models.DistributionEqual,
		AmountSpent: decimal.NewFromInt(30),
		ExpenseDate: time.Now(),
	})
	fatalIf(err, "add lot expense")

	fmt.Printf("seeded lot #%d (2 lines, 1 expense), warehouse #%d, consumer #%d\n",
		lot.ID, warehouse.ID, consumer.ID)

	if !*receive {
		return
	}

	_, err = workflow.SubmitLotStatusChange(ctx, logger, lot.ID, models.LotStatusPaid)
	fatalIf(err, "mark lot paid")
	_, err = workflow.SubmitLotStatusChange(ctx, logger, lot.ID, models.LotStatusDelivered)
	fatalIf(err, "mark lot delivered")
	movements, err := workflow.ReceiveLotIntoWarehouse(ctx, logger, lot.ID, warehouse.ID)
	fatalIf(err, "receive lot")
	fmt.Printf("lot #%d received: %d inbound movements\n", lot.ID, len(movements))

	order, err := models.CreateOrder(ctx, &models.NewOrder{
		ConsumerId:  consumer.ID,
		Description: "Seeded demo order",
		WarehouseId: &warehouse.ID,
	})
	fatalIf(err, "create order")

	_, err = models.AddOrderLine(ctx, order.ID, &models.NewOrderLine{
		ProductId: kettle.ID,
		Quantity:  decimal.NewFromInt(3),
	})
	fatalIf(err, "add order line")

	_, err = workflow.SubmitOrderStatusChange(ctx, logger, order.ID, models.OrderStatusPaid)
	fatalIf(err, "mark order paid")
	_, err = workflow.SubmitOrderStatusChange(ctx, logger, order.ID, models.OrderStatusShipped)
	fatalIf(err, "mark order shipped")
	fmt.Printf("order #%d paid and shipped\n", order.ID)
}

func fatalIf(err error, step string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
		os.Exit(1)
	}
}

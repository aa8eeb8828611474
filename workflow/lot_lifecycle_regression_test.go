package workflow_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"bitbucket.org/mmdatafocus/warehouse_backend/workflow"
	"github.com/shopspring/decimal"
)

// Regression: the full lot lifecycle must leave exactly one payment entry
// and one entry per expense in the cash ledger, stock valued at landed
// cost, and the lot frozen at delivered_to_warehouse, even when the paid
// transition is submitted twice.
func TestLotLifecycle_PostsOnceAndValuesStockAtLandedCost(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	category, err := models.CreateCategory(ctx, &models.NewCategory{Name: "Lifecycle Cat"})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	kettle, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:        "Lifecycle Kettle",
		CategoryId:  category.ID,
		Weight:      decimal.NewFromInt(1),
		RetailPrice: decimal.NewFromInt(25),
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	toaster, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:        "Lifecycle Toaster",
		CategoryId:  category.ID,
		Weight:      decimal.NewFromInt(2),
		RetailPrice: decimal.NewFromInt(40),
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	warehouse, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Name: "Lifecycle WH"})
	if err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}

	lot, err := models.CreateLot(ctx, &models.NewLot{Description: "lifecycle lot"})
	if err != nil {
		t.Fatalf("CreateLot: %v", err)
	}
	if _, err := models.AddLotLine(ctx, lot.ID, &models.NewLotLine{
		ProductId: kettle.ID, Quantity: decimal.NewFromInt(10), PurchasePrice: decimal.NewFromInt(5),
	}); err != nil {
		t.Fatalf("AddLotLine: %v", err)
	}
	if _, err := models.AddLotLine(ctx, lot.ID, &models.NewLotLine{
		ProductId: toaster.ID, Quantity: decimal.NewFromInt(20), PurchasePrice: decimal.NewFromInt(2),
	}); err != nil {
		t.Fatalf("AddLotLine: %v", err)
	}
	if _, err := models.AddLotExpense(ctx, lot.ID, &models.NewLotExpense{
		Category:    models.ExpenseCategoryTransportation,
		Policy:      models.DistributionEqual,
		AmountSpent: decimal.NewFromInt(30),
		ExpenseDate: time.Now(),
	}); err != nil {
		t.Fatalf("AddLotExpense: %v", err)
	}

	logger := config.GetLogger()

	if _, err := workflow.SubmitLotStatusChange(ctx, logger, lot.ID, models.LotStatusPaid); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	// Second submit of paid must be rejected and must not re-post.
	if _, err := workflow.SubmitLotStatusChange(ctx, logger, lot.ID, models.LotStatusPaid); err == nil {
		t.Fatal("expected second paid submit to be rejected")
	} else if !utils.IsTransitionError(err) {
		t.Fatalf("expected transition error, got %v", err)
	}

	entries, err := models.GetLedgerEntries(ctx, nil, nil)
	if err != nil {
		t.Fatalf("GetLedgerEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 1 payment + 1 expense entry, got %d", len(entries))
	}
	balance := models.BalanceFromEntries(entries)
	if !balance.TotalOut.Equal(decimal.NewFromInt(120)) { // 50 + 40 + 30
		t.Fatalf("expected total out 120, got %s", balance.TotalOut)
	}

	if _, err := workflow.SubmitLotStatusChange(ctx, logger, lot.ID, models.LotStatusDelivered); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	movements, err := workflow.ReceiveLotIntoWarehouse(ctx, logger, lot.ID, warehouse.ID)
	if err != nil {
		t.Fatalf("receive lot: %v", err)
	}
	if len(movements) != 2 {
		t.Fatalf("expected 2 inbound movements, got %d", len(movements))
	}

	// equal policy over 30 units: +1 per unit -> landed 6 and 3
	kettleValue, err := models.CurrentValuation(ctx, kettle.ID, warehouse.ID)
	if err != nil {
		t.Fatalf("CurrentValuation kettle: %v", err)
	}
	if !kettleValue.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("expected kettle valuation 60, got %s", kettleValue)
	}
	total, err := models.GetWarehouseValuation(ctx, warehouse.ID)
	if err != nil {
		t.Fatalf("GetWarehouseValuation: %v", err)
	}
	if !total.Equal(decimal.NewFromInt(120)) { // 10x6 + 20x3
		t.Fatalf("expected warehouse valuation 120, got %s", total)
	}

	// Receiving is terminal and one-shot.
	if _, err := workflow.ReceiveLotIntoWarehouse(ctx, logger, lot.ID, warehouse.ID); err == nil {
		t.Fatal("expected second receive to be rejected")
	}
	frozen, err := models.GetLot(ctx, lot.ID)
	if err != nil {
		t.Fatalf("GetLot: %v", err)
	}
	if frozen.Status != models.LotStatusDeliveredToWarehouse {
		t.Fatalf("expected delivered_to_warehouse, got %s", frozen.Status)
	}
	if _, err := models.AddLotLine(ctx, lot.ID, &models.NewLotLine{
		ProductId: kettle.ID, Quantity: decimal.NewFromInt(1), PurchasePrice: decimal.NewFromInt(1),
	}); err == nil {
		t.Fatal("expected received lot to reject edits")
	}
}

// Regression: shipping an order must reject quantities that would drive
// stock negative and roll the whole shipment back.
func TestOrderShipping_RejectsNegativeStock(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	category, err := models.CreateCategory(ctx, &models.NewCategory{Name: "Shipping Cat"})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:        "Shipping Widget",
		CategoryId:  category.ID,
		Weight:      decimal.NewFromInt(1),
		RetailPrice: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	warehouse, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Name: "Shipping WH"})
	if err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}
	consumer, err := models.CreateConsumer(ctx, &models.NewConsumer{Name: "Shipping Consumer"})
	if err != nil {
		t.Fatalf("CreateConsumer: %v", err)
	}

	cost := decimal.NewFromInt(4)
	if _, err := models.CreateStockMovement(ctx, &models.NewStockMovement{
		ProductId:   product.ID,
		WarehouseId: warehouse.ID,
		Quantity:    decimal.NewFromInt(5),
		UnitCost:    &cost,
		Kind:        models.MovementKindIn,
	}); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	order, err := models.CreateOrder(ctx, &models.NewOrder{
		ConsumerId:  consumer.ID,
		WarehouseId: &warehouse.ID,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := models.AddOrderLine(ctx, order.ID, &models.NewOrderLine{
		ProductId: product.ID, Quantity: decimal.NewFromInt(8),
	}); err != nil {
		t.Fatalf("AddOrderLine: %v", err)
	}

	logger := config.GetLogger()
	if _, err := workflow.SubmitOrderStatusChange(ctx, logger, order.ID, models.OrderStatusPaid); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	// Consumer total picked up the retail total exactly once.
	after, err := models.GetConsumer(ctx, consumer.ID)
	if err != nil {
		t.Fatalf("GetConsumer: %v", err)
	}
	if !after.TotalCost.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("expected consumer total 80, got %s", after.TotalCost)
	}

	// Only 5 on hand, 8 requested: shipment must fail atomically.
	if _, err := workflow.SubmitOrderStatusChange(ctx, logger, order.ID, models.OrderStatusShipped); err == nil {
		t.Fatal("expected shipment to be rejected")
	}
	onHand, err := models.OnHandQuantity(ctx, product.ID, warehouse.ID)
	if err != nil {
		t.Fatalf("OnHandQuantity: %v", err)
	}
	if !onHand.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected on-hand unchanged at 5, got %s", onHand)
	}
	reread, err := models.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if reread.Status != models.OrderStatusPaid {
		t.Fatalf("expected order still paid, got %s", reread.Status)
	}
}

func setupIntegrationEnv(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "warehouse_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	return ctx
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("warehouse-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("warehouse-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=warehouse_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}

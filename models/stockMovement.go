package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockMovement is the append-only inventory ledger. Rows are never
// mutated or deleted; corrections are new movements. On-hand quantity and
// valuation are always computed by replaying the log.
type StockMovement struct {
	ID            string           `gorm:"size:36;primary_key" json:"id"` // uuid
	ProductId     int              `gorm:"index:idx_move_product_wh_date,priority:1;not null" json:"product_id"`
	WarehouseId   int              `gorm:"index:idx_move_product_wh_date,priority:2;not null" json:"warehouse_id"`
	MovementDate  time.Time        `gorm:"index:idx_move_product_wh_date,priority:3;not null" json:"movement_date"`
	Quantity      decimal.Decimal  `gorm:"type:decimal(10,2);not null" json:"quantity"`
	UnitCost      *decimal.Decimal `gorm:"type:decimal(10,2)" json:"unit_cost"` // nil for outbound without a known cost
	Kind          MovementKind     `gorm:"size:10;not null" json:"kind"`
	CorrelationId string           `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

// SignedQuantity: in/return count positive, out/write_off negative.
func (m *StockMovement) SignedQuantity() decimal.Decimal {
	if m.Kind.IsInbound() {
		return m.Quantity
	}
	return m.Quantity.Neg()
}

type NewStockMovement struct {
	ProductId   int              `json:"product_id" binding:"required"`
	WarehouseId int              `json:"warehouse_id" binding:"required"`
	Quantity    decimal.Decimal  `json:"quantity" binding:"required"`
	UnitCost    *decimal.Decimal `json:"unit_cost"`
	Kind        MovementKind     `json:"kind" binding:"required"`
}

// OnHandFromMovements replays a movement slice into the current on-hand
// quantity. Pure; the DB readers feed it ordered rows.
func OnHandFromMovements(movements []*StockMovement) decimal.Decimal {
	onHand := decimal.Zero
	for _, m := range movements {
		onHand = onHand.Add(m.SignedQuantity())
	}
	return onHand
}

// LastCostBasis returns the unit cost of the most recent movement that
// carries one (last-in valuation). Movements must be ordered oldest first.
func LastCostBasis(movements []*StockMovement) decimal.Decimal {
	for i := len(movements) - 1; i >= 0; i-- {
		if movements[i].UnitCost != nil {
			return *movements[i].UnitCost
		}
	}
	return decimal.Zero
}

func getMovements(tx *gorm.DB, ctx context.Context, productId, warehouseId int) ([]*StockMovement, error) {
	var movements []*StockMovement
	err := tx.WithContext(ctx).
		Where("product_id = ? AND warehouse_id = ?", productId, warehouseId).
		Order("movement_date, created_at, id").
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}

// getMovementsForUpdate replays with FOR UPDATE so concurrent outbound
// writers for the same (product, warehouse) serialize on the movement rows
// instead of both passing the negative-stock check.
func getMovementsForUpdate(tx *gorm.DB, ctx context.Context, productId, warehouseId int) ([]*StockMovement, error) {
	var movements []*StockMovement
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND warehouse_id = ?", productId, warehouseId).
		Order("movement_date, created_at, id").
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}

// RecordMovement appends a movement inside the caller's transaction.
// The negative-on-hand check runs against the same transaction so
// concurrent writers serialize through the storage layer.
func RecordMovement(tx *gorm.DB, ctx context.Context, input *NewStockMovement) (*StockMovement, error) {
	if !input.Kind.IsValid() {
		return nil, utils.NewValidationError("invalid movement kind")
	}
	if !input.Quantity.IsPositive() {
		return nil, utils.NewValidationError("movement quantity must be positive")
	}
	if input.UnitCost != nil && input.UnitCost.IsNegative() {
		return nil, utils.NewValidationError("unit cost cannot be negative")
	}
	var warehouse Warehouse
	if err := tx.WithContext(ctx).First(&warehouse, input.WarehouseId).Error; err != nil {
		return nil, utils.NewValidationError("warehouse not found")
	}
	var product Product
	if err := tx.WithContext(ctx).First(&product, input.ProductId).Error; err != nil {
		return nil, utils.NewValidationError("product not found")
	}

	movement := StockMovement{
		ID:           uuid.NewString(),
		ProductId:    input.ProductId,
		WarehouseId:  input.WarehouseId,
		MovementDate: time.Now().UTC(),
		Quantity:     input.Quantity,
		UnitCost:     input.UnitCost,
		Kind:         input.Kind,
	}
	if correlationId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		movement.CorrelationId = correlationId
	}

	if !movement.Kind.IsInbound() {
		movements, err := getMovementsForUpdate(tx, ctx, input.ProductId, input.WarehouseId)
		if err != nil {
			return nil, err
		}
		if OnHandFromMovements(movements).LessThan(input.Quantity) {
			return nil, utils.NewValidationError(
				"movement would drive stock negative for product #%d in warehouse #%d",
				input.ProductId, input.WarehouseId)
		}
	}

	if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
		return nil, err
	}
	return &movement, nil
}

// CreateStockMovement is the standalone entry point for the CRUD layer;
// it wraps RecordMovement in its own transaction.
func CreateStockMovement(ctx context.Context, input *NewStockMovement) (*StockMovement, error) {
	db := config.GetDB()
	var movement *StockMovement
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		movement, err = RecordMovement(tx, ctx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

// OnHandQuantity = signed sum of all movements for the (product, warehouse) pair.
func OnHandQuantity(ctx context.Context, productId, warehouseId int) (decimal.Decimal, error) {
	db := config.GetDB()
	onHand := decimal.Zero
	err := db.WithContext(ctx).Model(&StockMovement{}).
		Where("product_id = ? AND warehouse_id = ?", productId, warehouseId).
		Select("COALESCE(SUM(CASE WHEN kind IN ('in','return') THEN quantity ELSE -quantity END), 0)").
		Scan(&onHand).Error
	if err != nil {
		return decimal.Zero, err
	}
	return onHand, nil
}

// CurrentValuation = on-hand quantity x the standing cost basis, where the
// basis is the unit cost of the most recent movement that recorded one.
func CurrentValuation(ctx context.Context, productId, warehouseId int) (decimal.Decimal, error) {
	db := config.GetDB()
	movements, err := getMovements(db, ctx, productId, warehouseId)
	if err != nil {
		return decimal.Zero, err
	}
	return OnHandFromMovements(movements).Mul(LastCostBasis(movements)), nil
}

func GetStockMovements(ctx context.Context, warehouseId int, productId *int) ([]*StockMovement, error) {
	db := config.GetDB()
	var results []*StockMovement

	dbCtx := db.WithContext(ctx).Where("warehouse_id = ?", warehouseId)
	if productId != nil && *productId > 0 {
		dbCtx = dbCtx.Where("product_id = ?", *productId)
	}
	if err := dbCtx.Order("movement_date DESC, created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

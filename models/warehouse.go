package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/shopspring/decimal"
)

type Warehouse struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Name        string    `gorm:"size:100;not null;uniqueIndex" json:"name" binding:"required"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewWarehouse struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// WarehouseStockRow is one product's standing position in a warehouse:
// replayed on-hand quantity plus last-in cost basis.
type WarehouseStockRow struct {
	ProductId     int             `json:"product_id"`
	ProductName   string          `json:"product_name"`
	RetailPrice   decimal.Decimal `json:"retail_price"`
	OnHand        decimal.Decimal `json:"on_hand"`
	LastUnitCost  decimal.Decimal `json:"last_unit_cost"`
	LastMovedDate time.Time       `json:"last_moved_date"`
}

func CreateWarehouse(ctx context.Context, input *NewWarehouse) (*Warehouse, error) {
	db := config.GetDB()

	warehouse := Warehouse{
		Name:        input.Name,
		Description: input.Description,
	}
	if err := db.WithContext(ctx).Create(&warehouse).Error; err != nil {
		return nil, err
	}
	return &warehouse, nil
}

func GetWarehouse(ctx context.Context, id int) (*Warehouse, error) {
	db := config.GetDB()
	var result Warehouse

	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetWarehouses(ctx context.Context) ([]*Warehouse, error) {
	db := config.GetDB()
	var results []*Warehouse

	if err := db.WithContext(ctx).Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func UpdateWarehouse(ctx context.Context, id int, input *NewWarehouse) (*Warehouse, error) {
	db := config.GetDB()
	var warehouse Warehouse

	if err := db.WithContext(ctx).First(&warehouse, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	warehouse.Name = input.Name
	warehouse.Description = input.Description
	if err := db.WithContext(ctx).Save(&warehouse).Error; err != nil {
		return nil, err
	}
	return &warehouse, nil
}

func DeleteWarehouse(ctx context.Context, id int) (*Warehouse, error) {
	db := config.GetDB()
	var result Warehouse

	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	var count int64
	if err := db.WithContext(ctx).Model(&StockMovement{}).
		Where("warehouse_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewValidationError("warehouse #%d has stock movements and cannot be deleted", id)
	}

	if err := db.WithContext(ctx).Delete(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// GetWarehouseStock returns the per-product standing positions of a
// warehouse, computed by replaying the movement log.
func GetWarehouseStock(ctx context.Context, warehouseId int) ([]*WarehouseStockRow, error) {
	db := config.GetDB()

	var movements []*StockMovement
	err := db.WithContext(ctx).
		Where("warehouse_id = ?", warehouseId).
		Order("movement_date, created_at, id").
		Find(&movements).Error
	if err != nil {
		return nil, err
	}

	byProduct := make(map[int][]*StockMovement)
	productOrder := make([]int, 0)
	for _, m := range movements {
		if _, seen := byProduct[m.ProductId]; !seen {
			productOrder = append(productOrder, m.ProductId)
		}
		byProduct[m.ProductId] = append(byProduct[m.ProductId], m)
	}

	rows := make([]*WarehouseStockRow, 0, len(productOrder))
	for _, productId := range productOrder {
		product, err := GetProduct(ctx, productId)
		if err != nil {
			return nil, err
		}
		productMovements := byProduct[productId]
		last := productMovements[len(productMovements)-1]
		rows = append(rows, &WarehouseStockRow{
			ProductId:     productId,
			ProductName:   product.Name,
			RetailPrice:   product.RetailPrice,
			OnHand:        OnHandFromMovements(productMovements),
			LastUnitCost:  LastCostBasis(productMovements),
			LastMovedDate: last.MovementDate,
		})
	}
	return rows, nil
}

// GetWarehouseValuation sums on-hand x last-in cost across all products.
func GetWarehouseValuation(ctx context.Context, warehouseId int) (decimal.Decimal, error) {
	rows, err := GetWarehouseStock(ctx, warehouseId)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.OnHand.Mul(row.LastUnitCost))
	}
	return total, nil
}

// WarehouseSummary totals a warehouse: products with stock on hand, cost
// value and retail value of the on-hand quantities.
type WarehouseSummary struct {
	ProductCount     int             `json:"product_count"`
	TotalCostValue   decimal.Decimal `json:"total_cost_value"`
	TotalRetailValue decimal.Decimal `json:"total_retail_value"`
}

func GetWarehouseSummary(ctx context.Context, warehouseId int) (*WarehouseSummary, error) {
	rows, err := GetWarehouseStock(ctx, warehouseId)
	if err != nil {
		return nil, err
	}
	summary := WarehouseSummary{
		TotalCostValue:   decimal.Zero,
		TotalRetailValue: decimal.Zero,
	}
	for _, row := range rows {
		if !row.OnHand.IsPositive() {
			continue
		}
		summary.ProductCount++
		summary.TotalCostValue = summary.TotalCostValue.Add(row.OnHand.Mul(row.LastUnitCost))
		summary.TotalRetailValue = summary.TotalRetailValue.Add(row.OnHand.Mul(row.RetailPrice))
	}
	return &summary, nil
}

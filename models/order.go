package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Order struct {
	ID          int          `gorm:"primary_key" json:"id"`
	OrderDate   time.Time    `gorm:"not null" json:"order_date"`
	Description string       `gorm:"type:text" json:"description"`
	ConsumerId  int          `gorm:"index;not null" json:"consumer_id" binding:"required"`
	WarehouseId *int         `gorm:"index" json:"warehouse_id"` // destination for shipping; optional until shipped
	Status      OrderStatus  `gorm:"size:32;not null;default:'new'" json:"status"`
	Lines       []*OrderLine `gorm:"foreignKey:OrderId" json:"lines"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderLine struct {
	ID          int             `gorm:"primary_key" json:"id"`
	OrderId     int             `gorm:"index;not null" json:"order_id"`
	ProductId   int             `gorm:"index;not null" json:"product_id" binding:"required"`
	Description string          `gorm:"type:text" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"quantity"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOrder struct {
	ConsumerId  int    `json:"consumer_id" binding:"required"`
	Description string `json:"description"`
	WarehouseId *int   `json:"warehouse_id"`
}

type NewOrderLine struct {
	ProductId   int             `json:"product_id" binding:"required"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
}

// TotalRetailPrice sums line quantity x product retail price over the
// order's lines. This is the amount posted when the order is paid.
func (o *Order) TotalRetailPrice(ctx context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, line := range o.Lines {
		product, err := GetProduct(ctx, line.ProductId)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(line.Quantity.Mul(product.RetailPrice))
	}
	return total, nil
}

func CreateOrder(ctx context.Context, input *NewOrder) (*Order, error) {
	db := config.GetDB()

	if _, err := GetConsumer(ctx, input.ConsumerId); err != nil {
		return nil, utils.NewValidationError("consumer not found")
	}
	if input.WarehouseId != nil {
		if _, err := GetWarehouse(ctx, *input.WarehouseId); err != nil {
			return nil, utils.NewValidationError("warehouse not found")
		}
	}

	order := Order{
		OrderDate:   time.Now().UTC(),
		Description: input.Description,
		ConsumerId:  input.ConsumerId,
		WarehouseId: input.WarehouseId,
		Status:      OrderStatusNew,
	}
	if err := db.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func GetOrder(ctx context.Context, id int) (*Order, error) {
	db := config.GetDB()
	var result Order

	err := db.WithContext(ctx).Preload("Lines").First(&result, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetOrders(ctx context.Context, consumerId *int, status *OrderStatus) ([]*Order, error) {
	db := config.GetDB()
	var results []*Order

	dbCtx := db.WithContext(ctx).Preload("Lines")
	if consumerId != nil && *consumerId > 0 {
		dbCtx = dbCtx.Where("consumer_id = ?", *consumerId)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	if err := dbCtx.Order("order_date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func checkOrderEditable(order *Order) error {
	if !order.Status.Editable() {
		return utils.NewValidationError("order #%d is %s and can no longer be edited", order.ID, order.Status)
	}
	return nil
}

func UpdateOrder(ctx context.Context, id int, input *NewOrder) (*Order, error) {
	db := config.GetDB()
	var order Order

	if err := db.WithContext(ctx).First(&order, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := checkOrderEditable(&order); err != nil {
		return nil, err
	}
	if _, err := GetConsumer(ctx, input.ConsumerId); err != nil {
		return nil, utils.NewValidationError("consumer not found")
	}
	if input.WarehouseId != nil {
		if _, err := GetWarehouse(ctx, *input.WarehouseId); err != nil {
			return nil, utils.NewValidationError("warehouse not found")
		}
	}

	order.Description = input.Description
	order.ConsumerId = input.ConsumerId
	order.WarehouseId = input.WarehouseId
	if err := db.WithContext(ctx).Save(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func DeleteOrder(ctx context.Context, id int) (*Order, error) {
	db := config.GetDB()
	var order Order

	if err := db.WithContext(ctx).First(&order, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := checkOrderEditable(&order); err != nil {
		return nil, err
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&OrderLine{}).Error; err != nil {
			return err
		}
		return tx.Delete(&order).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// AddOrderLine validates the product is stocked somewhere before allowing
// it onto an order.
func AddOrderLine(ctx context.Context, orderId int, input *NewOrderLine) (*OrderLine, error) {
	db := config.GetDB()
	var order Order

	if err := db.WithContext(ctx).First(&order, orderId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := checkOrderEditable(&order); err != nil {
		return nil, err
	}
	if !input.Quantity.IsPositive() {
		return nil, utils.NewValidationError("line quantity must be positive")
	}
	product, err := GetProduct(ctx, input.ProductId)
	if err != nil {
		return nil, utils.NewValidationError("product not found")
	}
	stocked, err := IsProductStocked(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	if !stocked {
		return nil, utils.NewValidationError("product %q is not available in any warehouse", product.Name)
	}

	line := OrderLine{
		OrderId:     orderId,
		ProductId:   input.ProductId,
		Description: input.Description,
		Quantity:    input.Quantity,
	}
	if err := db.WithContext(ctx).Create(&line).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

func DeleteOrderLine(ctx context.Context, id int) (*OrderLine, error) {
	db := config.GetDB()
	var line OrderLine

	if err := db.WithContext(ctx).First(&line, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	var order Order
	if err := db.WithContext(ctx).First(&order, line.OrderId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := checkOrderEditable(&order); err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Delete(&line).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

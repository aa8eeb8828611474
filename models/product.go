package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/shopspring/decimal"
)

// Product is read-mostly reference data: the aggregator takes unit weight
// from it, the poster takes retail price.
type Product struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Name        string          `gorm:"size:100;not null;uniqueIndex" json:"name" binding:"required"`
	Description string          `gorm:"type:text" json:"description"`
	CategoryId  int             `gorm:"index;not null" json:"category_id" binding:"required"`
	Weight      decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"weight"`
	RetailPrice decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"retail_price"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	CategoryId  int             `json:"category_id" binding:"required"`
	Weight      decimal.Decimal `json:"weight"`
	RetailPrice decimal.Decimal `json:"retail_price"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewProduct) validate(ctx context.Context, _ int) error {
	if input.Weight.IsNegative() {
		return utils.NewValidationError("product weight cannot be negative")
	}
	if input.RetailPrice.IsNegative() {
		return utils.NewValidationError("product retail price cannot be negative")
	}
	if _, err := GetCategory(ctx, input.CategoryId); err != nil {
		return utils.NewValidationError("category not found")
	}
	return nil
}

func productCacheKey(id int) string {
	return fmt.Sprintf("product:%d", id)
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	product := Product{
		Name:        input.Name,
		Description: input.Description,
		CategoryId:  input.CategoryId,
		Weight:      input.Weight,
		RetailPrice: input.RetailPrice,
	}
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProduct reads through the redis object cache; products are read on
// every allocation and posting path.
func GetProduct(ctx context.Context, id int) (*Product, error) {
	var cached Product
	exists, err := config.GetRedisObject(productCacheKey(id), &cached)
	if err == nil && exists {
		return &cached, nil
	}

	db := config.GetDB()
	var result Product
	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	_ = config.SetRedisObject(productCacheKey(id), &result, 0)
	return &result, nil
}

func GetProducts(ctx context.Context, categoryId *int) ([]*Product, error) {
	db := config.GetDB()
	var results []*Product

	dbCtx := db.WithContext(ctx)
	if categoryId != nil && *categoryId > 0 {
		dbCtx = dbCtx.Where("category_id = ?", *categoryId)
	}
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func UpdateProduct(ctx context.Context, id int, input *NewProduct) (*Product, error) {
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var product Product
	if err := db.WithContext(ctx).First(&product, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	product.Name = input.Name
	product.Description = input.Description
	product.CategoryId = input.CategoryId
	product.Weight = input.Weight
	product.RetailPrice = input.RetailPrice
	if err := db.WithContext(ctx).Save(&product).Error; err != nil {
		return nil, err
	}
	_ = config.RemoveRedisKey(productCacheKey(id))
	return &product, nil
}

func DeleteProduct(ctx context.Context, id int) (*Product, error) {
	db := config.GetDB()
	var result Product

	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := db.WithContext(ctx).Delete(&result).Error; err != nil {
		return nil, err
	}
	_ = config.RemoveRedisKey(productCacheKey(id))
	return &result, nil
}

// IsProductStocked reports whether the product has ever been received into
// any warehouse. Order lines may only reference stocked products.
func IsProductStocked(ctx context.Context, productId int) (bool, error) {
	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&StockMovement{}).
		Where("product_id = ?", productId).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

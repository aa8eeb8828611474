package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Consumer's TotalCost is a running, non-decreasing purchase total.
// Only the order-paid posting adds to it.
type Consumer struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Name        string          `gorm:"size:100;not null;uniqueIndex" json:"name" binding:"required"`
	Description string          `gorm:"type:text" json:"description"`
	TotalCost   decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"total_cost"`
	Level       int             `gorm:"default:1" json:"level"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewConsumer struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type UpdateConsumerInput struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Level       int    `json:"level"`
}

func CreateConsumer(ctx context.Context, input *NewConsumer) (*Consumer, error) {
	db := config.GetDB()

	consumer := Consumer{
		Name:        input.Name,
		Description: input.Description,
		TotalCost:   decimal.Zero,
		Level:       1,
	}
	if err := db.WithContext(ctx).Create(&consumer).Error; err != nil {
		return nil, err
	}
	return &consumer, nil
}

func GetConsumer(ctx context.Context, id int) (*Consumer, error) {
	db := config.GetDB()
	var result Consumer

	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetConsumers(ctx context.Context) ([]*Consumer, error) {
	db := config.GetDB()
	var results []*Consumer

	if err := db.WithContext(ctx).Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateConsumer edits name/description and the manual level; the running
// total is off limits to edits.
func UpdateConsumer(ctx context.Context, id int, input *UpdateConsumerInput) (*Consumer, error) {
	db := config.GetDB()
	var consumer Consumer

	if err := db.WithContext(ctx).First(&consumer, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	consumer.Name = input.Name
	consumer.Description = input.Description
	if input.Level > 0 {
		consumer.Level = input.Level
	}
	if err := db.WithContext(ctx).Save(&consumer).Error; err != nil {
		return nil, err
	}
	return &consumer, nil
}

func DeleteConsumer(ctx context.Context, id int) (*Consumer, error) {
	db := config.GetDB()
	var result Consumer

	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	var count int64
	if err := db.WithContext(ctx).Model(&Order{}).
		Where("consumer_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewValidationError("consumer #%d has orders and cannot be deleted", id)
	}

	if err := db.WithContext(ctx).Delete(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// AddConsumerTotalCost increments the running total inside the caller's
// posting transaction. Amount must not be negative: the total never decreases.
func AddConsumerTotalCost(tx *gorm.DB, consumerId int, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return utils.NewValidationError("consumer total cannot decrease")
	}
	return tx.Model(&Consumer{}).
		Where("id = ?", consumerId).
		Update("total_cost", gorm.Expr("total_cost + ?", amount)).Error
}

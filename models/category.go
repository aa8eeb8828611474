package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
)

type Category struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Name        string    `gorm:"size:100;not null;uniqueIndex" json:"name" binding:"required"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCategory struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func CreateCategory(ctx context.Context, input *NewCategory) (*Category, error) {
	db := config.GetDB()

	category := Category{
		Name:        input.Name,
		Description: input.Description,
	}
	if err := db.WithContext(ctx).Create(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func GetCategory(ctx context.Context, id int) (*Category, error) {
	db := config.GetDB()
	var result Category

	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetCategories(ctx context.Context) ([]*Category, error) {
	db := config.GetDB()
	var results []*Category

	if err := db.WithContext(ctx).Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func UpdateCategory(ctx context.Context, id int, input *NewCategory) (*Category, error) {
	db := config.GetDB()
	var category Category

	if err := db.WithContext(ctx).First(&category, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	category.Name = input.Name
	category.Description = input.Description
	if err := db.WithContext(ctx).Save(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func DeleteCategory(ctx context.Context, id int) (*Category, error) {
	db := config.GetDB()
	var result Category

	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := db.WithContext(ctx).Delete(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

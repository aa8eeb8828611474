package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Lot is a purchase batch. It exclusively owns its lines and expenses;
// both are removed with the lot.
type Lot struct {
	ID          int           `gorm:"primary_key" json:"id"`
	LotDate     time.Time     `gorm:"not null" json:"lot_date"`
	Description string        `gorm:"type:text" json:"description"`
	Status      LotStatus     `gorm:"size:32;not null;default:'new'" json:"status"`
	Lines       []*LotLine    `gorm:"foreignKey:LotId" json:"lines"`
	Expenses    []*LotExpense `gorm:"foreignKey:LotId" json:"expenses"`
	CreatedAt   time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type LotLine struct {
	ID            int             `gorm:"primary_key" json:"id"`
	LotId         int             `gorm:"index;not null" json:"lot_id"`
	ProductId     int             `gorm:"index;not null" json:"product_id" binding:"required"`
	Description   string          `gorm:"type:text" json:"description"`
	Quantity      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"quantity"`
	PurchasePrice decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"purchase_price"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TotalPurchasePrice = quantity x purchase price.
func (l *LotLine) TotalPurchasePrice() decimal.Decimal {
	return l.Quantity.Mul(l.PurchasePrice)
}

type LotExpense struct {
	ID          int                `gorm:"primary_key" json:"id"`
	LotId       int                `gorm:"index;not null" json:"lot_id"`
	Category    ExpenseCategory    `gorm:"size:32;not null" json:"category"`
	Description string             `gorm:"type:text" json:"description"`
	Policy      DistributionPolicy `gorm:"size:10;not null" json:"policy"`
	AmountSpent decimal.Decimal    `gorm:"type:decimal(10,2);not null" json:"amount_spent"`
	ExpenseDate time.Time          `gorm:"not null" json:"expense_date"`
	CreatedAt   time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLot struct {
	Description string `json:"description"`
}

type NewLotLine struct {
	ProductId     int             `json:"product_id" binding:"required"`
	Description   string          `json:"description"`
	Quantity      decimal.Decimal `json:"quantity" binding:"required"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
}

type NewLotExpense struct {
	Category    ExpenseCategory    `json:"category" binding:"required"`
	Description string             `json:"description"`
	Policy      DistributionPolicy `json:"policy" binding:"required"`
	AmountSpent decimal.Decimal    `json:"amount_spent"`
	ExpenseDate time.Time          `json:"expense_date"`
}

func CreateLot(ctx context.Context, input *NewLot) (*Lot, error) {
	db := config.GetDB()

	lot := Lot{
		LotDate:     time.Now().UTC(),
		Description: input.Description,
		Status:      LotStatusNew,
	}
	if err := db.WithContext(ctx).Create(&lot).Error; err != nil {
		return nil, err
	}
	return &lot, nil
}

func GetLot(ctx context.Context, id int) (*Lot, error) {
	db := config.GetDB()
	var result Lot

	err := db.WithContext(ctx).
		Preload("Lines").
		Preload("Expenses").
		First(&result, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetLots(ctx context.Context, status *LotStatus) ([]*Lot, error) {
	db := config.GetDB()
	var results []*Lot

	dbCtx := db.WithContext(ctx).Preload("Lines").Preload("Expenses")
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	if err := dbCtx.Order("lot_date DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// checkLotEditable rejects edits to a delivered lot.
func checkLotEditable(lot *Lot) error {
	if !lot.Status.Editable() {
		return utils.NewValidationError("lot #%d is %s and can no longer be edited", lot.ID, lot.Status)
	}
	return nil
}

// UpdateLot edits the description only; status changes go through the
// workflow package so their side effects stay in the call path.
func UpdateLot(ctx context.Context, id int, input *NewLot) (*Lot, error) {
	db := config.GetDB()
	var lot Lot

	if err := db.WithContext(ctx).First(&lot, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := checkLotEditable(&lot); err != nil {
		return nil, err
	}
	lot.Description = input.Description
	if err := db.WithContext(ctx).Save(&lot).Error; err != nil {
		return nil, err
	}
	return &lot, nil
}

func DeleteLot(ctx context.Context, id int) (*Lot, error) {
	db := config.GetDB()
	var lot Lot

	if err := db.WithContext(ctx).First(&lot, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := checkLotEditable(&lot); err != nil {
		return nil, err
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("lot_id = ?", id).Delete(&LotLine{}).Error; err != nil {
			return err
		}
		if err := tx.Where("lot_id = ?", id).Delete(&LotExpense{}).Error; err != nil {
			return err
		}
		return tx.Delete(&lot).Error
	})
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

func AddLotLine(ctx context.Context, lotId int, input *NewLotLine) (*LotLine, error) {
	db := config.GetDB()
	var lot Lot

	if err := db.WithContext(ctx).First(&lot, lotId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := checkLotEditable(&lot); err != nil {
		return nil, err
	}
	if !input.Quantity.IsPositive() {
		return nil, utils.NewValidationError("line quantity must be positive")
	}
	if input.PurchasePrice.IsNegative() {
		return nil, utils.NewValidationError("purchase price cannot be negative")
	}
	if _, err := GetProduct(ctx, input.ProductId); err != nil {
		return nil, utils.NewValidationError("product not found")
	}

	line := LotLine{
		LotId:         lotId,
		ProductId:     input.ProductId,
		Description:   input.Description,
		Quantity:      input.Quantity,
		PurchasePrice: input.PurchasePrice,
	}
	if err := db.WithContext(ctx).Create(&line).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

func UpdateLotLine(ctx context.Context, id int, input *NewLotLine) (*LotLine, error) {
	db := config.GetDB()
	var line LotLine

	if err := db.WithContext(ctx).First(&line, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	var lot Lot
	if err := db.WithContext(ctx).First(&lot, line.LotId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := checkLotEditable(&lot); err != nil {
		return nil, err
	}
	if !input.Quantity.IsPositive() {
		return nil, utils.NewValidationError("line quantity must be positive")
	}
	if input.PurchasePrice.IsNegative() {
		return nil, utils.NewValidationError("purchase price cannot be negative")
	}
	if _, err := GetProduct(ctx, input.ProductId); err != nil {
		return nil, utils.NewValidationError("product not found")
	}

	line.ProductId = input.ProductId
	line.Description = input.Description
	line.Quantity = input.Quantity
	line.PurchasePrice = input.PurchasePrice
	if err := db.WithContext(ctx).Save(&line).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

func DeleteLotLine(ctx context.Context, id int) (*LotLine, error) {
	db := config.GetDB()
	var line LotLine

	if err := db.WithContext(ctx).First(&line, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	var lot Lot
	if err := db.WithContext(ctx).First(&lot, line.LotId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := checkLotEditable(&lot); err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Delete(&line).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

func AddLotExpense(ctx context.Context, lotId int, input *NewLotExpense) (*LotExpense, error) {
	db := config.GetDB()
	var lot Lot

	if err := db.WithContext(ctx).First(&lot, lotId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := checkLotEditable(&lot); err != nil {
		return nil, err
	}
	if !input.Category.IsValid() {
		return nil, utils.NewValidationError("invalid expense category")
	}
	if !input.Policy.IsValid() {
		return nil, utils.NewValidationError("invalid distribution policy")
	}
	if input.AmountSpent.IsNegative() {
		return nil, utils.NewValidationError("amount spent cannot be negative")
	}

	expenseDate := input.ExpenseDate
	if expenseDate.IsZero() {
		expenseDate = time.Now().UTC()
	}
	expense := LotExpense{
		LotId:       lotId,
		Category:    input.Category,
		Description: input.Description,
		Policy:      input.Policy,
		AmountSpent: input.AmountSpent,
		ExpenseDate: expenseDate,
	}
	if err := db.WithContext(ctx).Create(&expense).Error; err != nil {
		return nil, err
	}
	return &expense, nil
}

func DeleteLotExpense(ctx context.Context, id int) (*LotExpense, error) {
	db := config.GetDB()
	var expense LotExpense

	if err := db.WithContext(ctx).First(&expense, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	var lot Lot
	if err := db.WithContext(ctx).First(&lot, expense.LotId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := checkLotEditable(&lot); err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Delete(&expense).Error; err != nil {
		return nil, err
	}
	return &expense, nil
}

// GetLotSnapshot loads a lot with its lines, expenses and the referenced
// product weights into the pure allocation structs.
func GetLotSnapshot(ctx context.Context, lotId int) (*LotSnapshot, error) {
	lot, err := GetLot(ctx, lotId)
	if err != nil {
		return nil, err
	}
	weights := make(map[int]decimal.Decimal, len(lot.Lines))
	for _, line := range lot.Lines {
		if _, seen := weights[line.ProductId]; seen {
			continue
		}
		product, err := GetProduct(ctx, line.ProductId)
		if err != nil {
			return nil, err
		}
		weights[line.ProductId] = product.Weight
	}
	return BuildLotSnapshot(lot, weights), nil
}

// LotSnapshotInTx builds the allocation snapshot from an already-loaded
// lot, reading product weights through the caller's transaction so every
// read feeding a receiving operation shares one snapshot.
func LotSnapshotInTx(tx *gorm.DB, ctx context.Context, lot *Lot) (*LotSnapshot, error) {
	weights := make(map[int]decimal.Decimal, len(lot.Lines))
	for _, line := range lot.Lines {
		if _, seen := weights[line.ProductId]; seen {
			continue
		}
		var product Product
		if err := tx.WithContext(ctx).First(&product, line.ProductId).Error; err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		weights[line.ProductId] = product.Weight
	}
	return BuildLotSnapshot(lot, weights), nil
}

// BuildLotSnapshot assembles the pure allocation input from a preloaded lot
// and the referenced products' unit weights.
func BuildLotSnapshot(lot *Lot, unitWeights map[int]decimal.Decimal) *LotSnapshot {
	snapshot := LotSnapshot{LotId: lot.ID}
	for _, line := range lot.Lines {
		snapshot.Lines = append(snapshot.Lines, LineSnapshot{
			LineId:        line.ID,
			ProductId:     line.ProductId,
			Quantity:      line.Quantity,
			PurchasePrice: line.PurchasePrice,
			UnitWeight:    unitWeights[line.ProductId],
		})
	}
	for _, expense := range lot.Expenses {
		snapshot.Expenses = append(snapshot.Expenses, ExpenseSnapshot{
			ExpenseId: expense.ID,
			Policy:    expense.Policy,
			Amount:    expense.AmountSpent,
		})
	}
	return &snapshot
}

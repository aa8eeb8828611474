package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerEntry is the append-only cash ledger ("cost in" / "cost out").
//
// Posted entries carry a typed idempotency key (reference_type,
// reference_id, sub_id) under a composite unique index; storage enforces
// at-most-once posting per key. Manual entries leave the key columns NULL,
// which MySQL exempts from the uniqueness constraint.
type LedgerEntry struct {
	ID            int                  `gorm:"primary_key" json:"id"`
	Name          string               `gorm:"size:255;not null" json:"name"`
	Description   string               `gorm:"type:text" json:"description"`
	Amount        decimal.Decimal      `gorm:"type:decimal(12,2);not null" json:"amount"`
	Direction     LedgerDirection      `gorm:"size:10;not null" json:"direction"`
	EntryDate     time.Time            `gorm:"index;not null" json:"entry_date"`
	ReferenceType *LedgerReferenceType `gorm:"size:20;index:uniq_ledger_ref,unique" json:"reference_type"`
	ReferenceId   *int                 `gorm:"index:uniq_ledger_ref,unique" json:"reference_id"`
	SubId         *int                 `gorm:"index:uniq_ledger_ref,unique" json:"sub_id"`
	CreatedAt     time.Time            `gorm:"autoCreateTime" json:"created_at"`
}

type NewLedgerEntry struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Direction   LedgerDirection `json:"direction" binding:"required"`
	EntryDate   time.Time       `json:"entry_date"`
}

// Balance over a period of the ledger.
type Balance struct {
	TotalIn  decimal.Decimal `json:"total_in"`
	TotalOut decimal.Decimal `json:"total_out"`
	Net      decimal.Decimal `json:"net"`
}

// BalanceFromEntries folds entries into period totals. Pure.
func BalanceFromEntries(entries []*LedgerEntry) *Balance {
	balance := Balance{TotalIn: decimal.Zero, TotalOut: decimal.Zero}
	for _, entry := range entries {
		if entry.Direction == LedgerDirectionIn {
			balance.TotalIn = balance.TotalIn.Add(entry.Amount)
		} else {
			balance.TotalOut = balance.TotalOut.Add(entry.Amount)
		}
	}
	balance.Net = balance.TotalIn.Sub(balance.TotalOut)
	return &balance
}

// CreateLedgerEntry records a manual entry (no idempotency key).
func CreateLedgerEntry(ctx context.Context, input *NewLedgerEntry) (*LedgerEntry, error) {
	if input.Amount.IsNegative() {
		return nil, utils.NewValidationError("ledger amount cannot be negative")
	}
	if input.Direction != LedgerDirectionIn && input.Direction != LedgerDirectionOut {
		return nil, utils.NewValidationError("invalid ledger direction")
	}

	entryDate := input.EntryDate
	if entryDate.IsZero() {
		entryDate = time.Now().UTC()
	}

	db := config.GetDB()
	entry := LedgerEntry{
		Name:        input.Name,
		Description: input.Description,
		Amount:      input.Amount,
		Direction:   input.Direction,
		EntryDate:   entryDate,
	}
	if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func GetLedgerEntry(ctx context.Context, id int) (*LedgerEntry, error) {
	db := config.GetDB()
	var result LedgerEntry

	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetLedgerEntries(ctx context.Context, dateFrom, dateTo *time.Time) ([]*LedgerEntry, error) {
	db := config.GetDB()
	var results []*LedgerEntry

	dbCtx := db.WithContext(ctx)
	if dateFrom != nil {
		dbCtx = dbCtx.Where("entry_date >= ?", *dateFrom)
	}
	if dateTo != nil {
		dbCtx = dbCtx.Where("entry_date <= ?", *dateTo)
	}
	if err := dbCtx.Order("entry_date, id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetLedgerEntryByReference looks an entry up by its typed idempotency key
// within the caller's transaction.
func GetLedgerEntryByReference(tx *gorm.DB, refType LedgerReferenceType, refId, subId int) (*LedgerEntry, error) {
	var result LedgerEntry
	err := tx.
		Where("reference_type = ? AND reference_id = ? AND sub_id = ?", refType, refId, subId).
		First(&result).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// GetBalance computes the cash balance over [dateFrom, dateTo].
func GetBalance(ctx context.Context, dateFrom, dateTo time.Time) (*Balance, error) {
	entries, err := GetLedgerEntries(ctx, &dateFrom, &dateTo)
	if err != nil {
		return nil, err
	}
	return BalanceFromEntries(entries), nil
}

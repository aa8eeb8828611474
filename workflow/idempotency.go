package workflow

import (
	"errors"

	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// PostLedgerEntry inserts a posted entry under its typed idempotency key.
// If the key already exists (duplicate insert or concurrent poster), the
// existing entry is returned with skipped=true. That is not an error.
// The uniqueness check and the write commit in the same transaction.
func PostLedgerEntry(tx *gorm.DB, entry *models.LedgerEntry) (*models.LedgerEntry, bool, error) {
	if entry.ReferenceType == nil || entry.ReferenceId == nil || entry.SubId == nil {
		return nil, false, utils.NewValidationError("posted ledger entries require an idempotency key")
	}

	if err := tx.Create(entry).Error; err == nil {
		return entry, false, nil
	} else if !isDuplicateKeyErr(err) {
		return nil, false, err
	}

	existing, err := models.GetLedgerEntryByReference(tx, *entry.ReferenceType, *entry.ReferenceId, *entry.SubId)
	if err != nil {
		return nil, false, err
	}
	return existing, true, nil
}
